package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/rodrigobaldaia/data-onboarding/internal/canvas"
	"github.com/rodrigobaldaia/data-onboarding/internal/storage"
)

// Store implements storage.ArtifactStore for Microsoft SQL Server.
//
// The table is created with an IF OBJECT_ID guard because SQL Server has no
// CREATE TABLE IF NOT EXISTS. Payloads are NVARCHAR(MAX) JSON.
type Store struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

const createSQL = `IF OBJECT_ID(N'dbo.onboard_artifacts', N'U') IS NULL
CREATE TABLE dbo.onboard_artifacts (
	id          NVARCHAR(64)  NOT NULL PRIMARY KEY,
	kind        NVARCHAR(32)  NOT NULL,
	source_name NVARCHAR(512) NOT NULL,
	created_at  DATETIMEOFFSET NOT NULL,
	payload     NVARCHAR(MAX) NOT NULL
)`

// New opens cfg.DSN with the "sqlserver" driver, validates connectivity via
// PingContext and ensures the artifacts table.
func New(ctx context.Context, cfg storage.Config) (storage.ArtifactStore, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if _, err := raw.ExecContext(ctx, createSQL); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("mssql: create table onboard_artifacts: %w", err)
	}
	return &Store{db: raw}, nil
}

// Close releases database resources held by this store.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *Store) Save(ctx context.Context, r storage.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dbo.onboard_artifacts (id, kind, source_name, created_at, payload) VALUES (@p1, @p2, @p3, @p4, @p5)`,
		r.ID, string(r.Kind), r.SourceName, r.CreatedAt.UTC(), string(r.Payload))
	if err != nil {
		return fmt.Errorf("mssql: insert %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (storage.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, source_name, created_at, payload FROM dbo.onboard_artifacts WHERE id = @p1`, id)
	if err != nil {
		return storage.Record{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return storage.Record{}, err
		}
		return storage.Record{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return scanRecord(rows)
}

func (s *Store) List(ctx context.Context, opt storage.ListOptions) ([]storage.Record, error) {
	q, args := buildListSQL(opt)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// buildListSQL uses TOP rather than LIMIT and @pN placeholders.
func buildListSQL(opt storage.ListOptions) (string, []any) {
	var b strings.Builder
	var args []any
	b.WriteString(`SELECT `)
	if opt.Limit > 0 {
		args = append(args, opt.Limit)
		fmt.Fprintf(&b, `TOP (@p%d) `, len(args))
	}
	b.WriteString(`id, kind, source_name, created_at, payload FROM dbo.onboard_artifacts`)
	if opt.Kind != "" {
		args = append(args, string(opt.Kind))
		fmt.Fprintf(&b, ` WHERE kind = @p%d`, len(args))
	}
	b.WriteString(` ORDER BY id`)
	return b.String(), args
}

func scanRecord(rows *sql.Rows) (storage.Record, error) {
	var (
		r       storage.Record
		kind    string
		payload string
	)
	if err := rows.Scan(&r.ID, &kind, &r.SourceName, &r.CreatedAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Record{}, storage.ErrNotFound
		}
		return storage.Record{}, err
	}
	r.Kind = canvas.Kind(kind)
	r.CreatedAt = r.CreatedAt.UTC()
	r.Payload = []byte(payload)
	return r, nil
}

// dbConn is the subset of *sql.DB this store uses.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}
