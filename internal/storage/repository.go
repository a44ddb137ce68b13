package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rodrigobaldaia/data-onboarding/internal/canvas"
)

// ErrNotFound is returned by Get when no artifact has the requested ID.
var ErrNotFound = errors.New("artifact not found")

// Config is the minimal configuration needed to open an ArtifactStore.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Record is the stored form of one committed artifact. Payload is the JSON
// encoding produced by Encode; backends persist it opaquely and index the
// remaining fields.
type Record struct {
	ID         string
	Kind       canvas.Kind
	SourceName string
	CreatedAt  time.Time
	Payload    []byte
}

// ListOptions filter List. Zero values mean no filter.
type ListOptions struct {
	Kind  canvas.Kind
	Limit int
}

// ArtifactStore persists committed artifacts outside the session.
//
// Each backend implements these semantics in its own idiomatic way. List
// returns records in ascending ID order, which is creation order for ULIDs.
type ArtifactStore interface {
	// Save inserts r. Saving an ID twice is an error.
	Save(ctx context.Context, r Record) error
	// Get returns the record with id, or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, opt ListOptions) ([]Record, error)
	// Close releases backend resources. Call it once.
	Close()
}

// Factory opens a store for cfg.
type Factory func(ctx context.Context, cfg Config) (ArtifactStore, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
// Call it from an init function in the backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens an ArtifactStore using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (ArtifactStore, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SinkFor adapts a store into a canvas sink. Connection passwords are
// stored only when savePasswords is true.
func SinkFor(s ArtifactStore, savePasswords bool) canvas.Sink {
	return canvas.SinkFunc(func(ctx context.Context, a canvas.Artifact) error {
		r, err := Encode(a, savePasswords)
		if err != nil {
			return err
		}
		if err := s.Save(ctx, r); err != nil {
			return fmt.Errorf("save %s %s: %w", r.Kind, r.ID, err)
		}
		return nil
	})
}
