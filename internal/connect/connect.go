// Package connect verifies that a configured connection is reachable. It is
// an opt-in collaborator for commands; the onboarding session never calls it.
package connect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rodrigobaldaia/data-onboarding/internal/connstr"
)

// DefaultTimeout bounds a Check when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

// ErrNoChecker is returned for schemes without a registered checker.
var ErrNoChecker = errors.New("no connection checker for scheme")

// Checker opens a connection described by d and pings it.
type Checker interface {
	Check(ctx context.Context, d connstr.Descriptor) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, d connstr.Descriptor) error

func (f CheckerFunc) Check(ctx context.Context, d connstr.Descriptor) error { return f(ctx, d) }

// Registry maps schemes to checkers. The zero value is empty; use Default
// for the built-in drivers.
type Registry struct {
	mu       sync.RWMutex
	checkers map[connstr.Scheme]Checker
	timeout  time.Duration
}

// NewRegistry returns an empty registry. A timeout <= 0 means DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{checkers: map[connstr.Scheme]Checker{}, timeout: timeout}
}

// Default returns a registry with the postgres family, sqlserver and sqlite
// checkers.
func Default(timeout time.Duration) *Registry {
	r := NewRegistry(timeout)
	pg := CheckerFunc(checkPostgres)
	for _, s := range []connstr.Scheme{connstr.Postgres, connstr.Redshift, connstr.CockroachDB} {
		r.Register(s, pg)
	}
	r.Register(connstr.SQLServer, CheckerFunc(checkSQLServer))
	r.Register(connstr.SQLite, CheckerFunc(checkSQLite))
	return r
}

// Register installs c for scheme, replacing any previous checker.
func (r *Registry) Register(scheme connstr.Scheme, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checkers == nil {
		r.checkers = map[connstr.Scheme]Checker{}
	}
	r.checkers[scheme] = c
}

// Schemes returns the schemes with a checker, sorted.
func (r *Registry) Schemes() []connstr.Scheme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]connstr.Scheme, 0, len(r.checkers))
	for s := range r.checkers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Check runs the checker registered for d.Scheme under the registry timeout.
// Errors never include the password.
func (r *Registry) Check(ctx context.Context, d connstr.Descriptor) error {
	r.mu.RLock()
	c := r.checkers[d.Scheme]
	timeout := r.timeout
	r.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("%w: %s", ErrNoChecker, d.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.Check(ctx, d); err != nil {
		return fmt.Errorf("check %s: %w", d.Redacted(), scrub(err, d))
	}
	return nil
}
