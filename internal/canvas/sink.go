package canvas

import (
	"context"
	"errors"
	"fmt"
)

// Sink receives committed artifacts. Emit must either accept the artifact
// or return an error; a session treats an error as "not committed".
type Sink interface {
	Emit(ctx context.Context, a Artifact) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, a Artifact) error

func (f SinkFunc) Emit(ctx context.Context, a Artifact) error { return f(ctx, a) }

// ChannelSink delivers artifacts on a channel. Emit blocks until a reader
// takes the artifact or ctx is done.
type ChannelSink struct {
	C chan Artifact
}

// NewChannelSink returns a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan Artifact, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, a Artifact) error {
	select {
	case s.C <- a:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiSink emits to every sink in order and stops at the first error.
// Sinks before the failing one have already received the artifact.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, a Artifact) error {
	for i, s := range m {
		if err := s.Emit(ctx, a); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// ErrNoSink is returned when a commit has nowhere to go.
var ErrNoSink = errors.New("canvas: no sink configured")
