package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rodrigobaldaia/data-onboarding/internal/canvas"
	"github.com/rodrigobaldaia/data-onboarding/internal/storage"
)

// DefaultDSN is used when the config carries no DSN.
const DefaultDSN = "file:onboard.db"

// Store implements storage.ArtifactStore for SQLite.
//
// SQLite has no native timestamp type, so created_at is stored as
// RFC3339Nano text, which also sorts correctly.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

const createSQL = `CREATE TABLE IF NOT EXISTS onboard_artifacts (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	source_name TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	payload     BLOB NOT NULL
)`

// New opens the database at cfg.DSN and creates the artifacts table.
func New(ctx context.Context, cfg storage.Config) (storage.ArtifactStore, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer; modernc serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table onboard_artifacts: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) Save(ctx context.Context, r storage.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO onboard_artifacts (id, kind, source_name, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.SourceName, r.CreatedAt.UTC().Format(time.RFC3339Nano), r.Payload)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (storage.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, source_name, created_at, payload FROM onboard_artifacts WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return r, err
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

// buildListSQL is pure so it can be tested without a database.
func buildListSQL(opt storage.ListOptions) (string, []any) {
	var b strings.Builder
	var args []any
	b.WriteString(`SELECT id, kind, source_name, created_at, payload FROM onboard_artifacts`)
	if opt.Kind != "" {
		b.WriteString(` WHERE kind = ?`)
		args = append(args, string(opt.Kind))
	}
	b.WriteString(` ORDER BY id`)
	if opt.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, opt.Limit)
	}
	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (storage.Record, error) {
	var (
		r       storage.Record
		kind    string
		created string
	)
	if err := row.Scan(&r.ID, &kind, &r.SourceName, &created, &r.Payload); err != nil {
		return storage.Record{}, err
	}
	ts, err := storage.ParseTime(created)
	if err != nil {
		return storage.Record{}, fmt.Errorf("artifact %s: %w", r.ID, err)
	}
	r.Kind = canvas.Kind(kind)
	r.CreatedAt = ts
	return r, nil
}
