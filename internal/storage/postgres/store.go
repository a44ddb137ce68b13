package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodrigobaldaia/data-onboarding/internal/canvas"
	"github.com/rodrigobaldaia/data-onboarding/internal/storage"
)

/*
Store implements storage.ArtifactStore for Postgres.

Payloads are stored as JSONB so committed previews and connections can be
queried in place.
*/
type Store struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

const createSQL = `CREATE TABLE IF NOT EXISTS onboard_artifacts (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	source_name TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
)`

// New creates a pool for cfg.DSN and ensures the artifacts table.
func New(ctx context.Context, cfg storage.Config) (storage.ArtifactStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table onboard_artifacts: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Save(ctx context.Context, r storage.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO onboard_artifacts (id, kind, source_name, created_at, payload) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, string(r.Kind), r.SourceName, r.CreatedAt.UTC(), string(r.Payload))
	return err
}

func (s *Store) Get(ctx context.Context, id string) (storage.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, source_name, created_at, payload::text FROM onboard_artifacts WHERE id = $1`, id)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Record{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return r, err
}

func (s *Store) List(ctx context.Context, opt storage.ListOptions) ([]storage.Record, error) {
	q, args := buildListSQL(opt)
	rows, err := s.pool.Query(ctx, q, args...)
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

// buildListSQL constructs the List query and its args. Placeholders are
// numbered in the order filters are appended.
func buildListSQL(opt storage.ListOptions) (string, []any) {
	var b strings.Builder
	var args []any
	b.WriteString(`SELECT id, kind, source_name, created_at, payload::text FROM onboard_artifacts`)
	if opt.Kind != "" {
		args = append(args, string(opt.Kind))
		fmt.Fprintf(&b, ` WHERE kind = $%d`, len(args))
	}
	b.WriteString(` ORDER BY id`)
	if opt.Limit > 0 {
		args = append(args, opt.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	return b.String(), args
}

func scanRecord(row pgx.Row) (storage.Record, error) {
	var (
		r       storage.Record
		kind    string
		payload string
	)
	if err := row.Scan(&r.ID, &kind, &r.SourceName, &r.CreatedAt, &payload); err != nil {
		return storage.Record{}, err
	}
	r.Kind = canvas.Kind(kind)
	r.CreatedAt = r.CreatedAt.UTC()
	r.Payload = []byte(payload)
	return r, nil
}
