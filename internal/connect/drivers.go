package connect

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/rodrigobaldaia/data-onboarding/internal/connstr"
)

func checkPostgres(ctx context.Context, d connstr.Descriptor) error {
	conn, err := pgx.Connect(ctx, d.DriverDSN())
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

func checkSQLServer(ctx context.Context, d connstr.Descriptor) error {
	return pingSQL(ctx, "sqlserver", d.DriverDSN())
}

// checkSQLite opens the file read-only so a missing database is reported
// instead of silently created.
func checkSQLite(ctx context.Context, d connstr.Descriptor) error {
	q := url.Values{}
	for k, v := range d.Params {
		q[k] = append([]string(nil), v...)
	}
	if q.Get("mode") == "" {
		q.Set("mode", "ro")
	}
	d.Params = q
	return pingSQL(ctx, "sqlite", d.DriverDSN())
}

func pingSQL(ctx context.Context, driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

// redactedError hides the password in a driver error's message while
// keeping the chain intact for errors.Is.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// scrub removes the cleartext password from err's message. Some drivers
// echo the DSN back when it fails to parse.
func scrub(err error, d connstr.Descriptor) error {
	pw := d.Password.Reveal()
	if pw == "" {
		return err
	}
	msg := err.Error()
	for _, s := range []string{pw, url.QueryEscape(pw), url.PathEscape(pw)} {
		msg = strings.ReplaceAll(msg, s, "xxxxx")
	}
	if msg == err.Error() {
		return err
	}
	var ctxErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ctxErr = context.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		ctxErr = context.Canceled
	}
	return &redactedError{msg: msg, err: ctxErr}
}
