package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rodrigobaldaia/data-onboarding/internal/canvas"
	"github.com/rodrigobaldaia/data-onboarding/internal/connstr"
	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

type fakeStore struct {
	saved   []Record
	saveErr error
	closed  int
}

func (f *fakeStore) Save(_ context.Context, r Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (Record, error) {
	for _, r := range f.saved {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

func (f *fakeStore) List(context.Context, ListOptions) ([]Record, error) { return f.saved, nil }
func (f *fakeStore) Close()                                             { f.closed++ }

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func connection() *canvas.ConnectionArtifact {
	return canvas.NewConnection(connstr.Descriptor{
		Scheme:   connstr.Postgres,
		Host:     "db.example.com",
		Port:     5432,
		Database: "orders",
		Username: "alice",
		Password: "secret",
		Params:   url.Values{"sslmode": {"require"}},
	}, now)
}

func preview() *dataset.Preview {
	return &dataset.Preview{
		Columns: []dataset.Column{
			{Name: "id", Key: "id", Index: 0, InferredType: dataset.Integer},
			{Name: "when", Key: "when", Index: 1, InferredType: dataset.Date, DateLayout: "2006-01-02", SampleNullRate: 0.5},
		},
		Rows:                  [][]*string{{dataset.Cell("1"), dataset.Cell("2024-01-02")}, {dataset.Cell("2"), nil}},
		TotalRowCountEstimate: 2,
		HeaderRowUsed:         true,
		Format:                dataset.FormatDelimited,
		Delimiter:             ',',
		Encoding:              "UTF-8",
	}
}

//
// Registry
//

func TestRegisterPanics(t *testing.T) {
	t.Parallel()

	f := func(context.Context, Config) (ArtifactStore, error) { return &fakeStore{}, nil }
	tests := []struct {
		name string
		kind string
		f    Factory
	}{
		{"empty kind", "", f},
		{"nil factory", "registry-nil", nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Panics(t, func() { Register(tt.kind, tt.f) })
		})
	}

	Register("registry-dup", f)
	require.Panics(t, func() { Register("registry-dup", f) })
}

func TestNew(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	Register("registry-new", func(_ context.Context, cfg Config) (ArtifactStore, error) {
		if cfg.DSN != "mem://x" {
			t.Fatalf("dsn = %q", cfg.DSN)
		}
		return store, nil
	})

	got, err := New(context.Background(), Config{Kind: "registry-new", DSN: "mem://x"})
	require.NoError(t, err)
	require.Same(t, store, got)
	require.Contains(t, Kinds(), "registry-new")

	_, err = New(context.Background(), Config{})
	require.Error(t, err)
	_, err = New(context.Background(), Config{Kind: "nope"})
	require.ErrorContains(t, err, "unsupported storage.kind=nope")
}

//
// Records
//

func TestEncodeDatasetImport(t *testing.T) {
	t.Parallel()

	a := canvas.NewDatasetImport("orders.csv", preview(), now)
	r, err := Encode(a, false)
	require.NoError(t, err)
	require.Equal(t, a.ID, r.ID)
	require.Equal(t, canvas.KindDatasetImport, r.Kind)
	require.Equal(t, "orders.csv", r.SourceName)
	require.True(t, now.Equal(r.CreatedAt))

	back, err := r.Artifact()
	require.NoError(t, err)
	got := back.(*canvas.DatasetImportArtifact)
	require.Equal(t, a.Preview.Fingerprint(), got.Preview.Fingerprint())
	require.Equal(t, dataset.FormatDelimited, got.Preview.Format)
	require.Nil(t, got.Preview.Rows[1][1])
}

func TestEncodeConnectionPasswords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		save bool
		want string
	}{
		{"dropped by default", false, ""},
		{"kept when enabled", true, "secret"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := Encode(connection(), tt.save)
			require.NoError(t, err)
			require.NotContains(t, r.SourceName, "secret")
			if !tt.save && strings.Contains(string(r.Payload), "secret") {
				t.Fatalf("payload leaks password: %s", r.Payload)
			}

			back, err := r.Artifact()
			require.NoError(t, err)
			d := back.(*canvas.ConnectionArtifact).Descriptor
			require.Equal(t, tt.want, d.Password.Reveal())
			require.Equal(t, "db.example.com", d.Host)
			require.Equal(t, "require", d.Params.Get("sslmode"))
		})
	}
}

func TestRecordUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Record{ID: "x", Kind: "widget"}.Artifact()
	require.Error(t, err)
}

func TestSinkFor(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	sink := SinkFor(store, false)
	a := connection()
	require.NoError(t, sink.Emit(context.Background(), a))
	require.Len(t, store.saved, 1)
	require.Equal(t, a.ID, store.saved[0].ID)

	boom := errors.New("disk full")
	store.saveErr = boom
	err := sink.Emit(context.Background(), a)
	require.ErrorIs(t, err, boom)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantUTC string
		wantErr bool
	}{
		{name: "rfc3339nano", in: "2026-01-27T12:17:08.123456789Z", wantUTC: "2026-01-27T12:17:08.123456789Z"},
		{name: "rfc3339 offset", in: "2026-01-27T14:17:08+02:00", wantUTC: "2026-01-27T12:17:08Z"},
		{name: "sqlite space tz", in: "2026-01-27 12:17:08+00:00", wantUTC: "2026-01-27T12:17:08Z"},
		{name: "sqlite no tz assumes utc", in: "2026-01-27 12:17:08", wantUTC: "2026-01-27T12:17:08Z"},
		{name: "empty", in: "", wantErr: true},
		{name: "invalid", in: "not-a-time", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTime(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if s := got.Format(time.RFC3339Nano); s != tt.wantUTC {
				t.Fatalf("ParseTime(%q) = %s, want %s", tt.in, s, tt.wantUTC)
			}
		})
	}
}
