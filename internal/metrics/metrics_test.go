package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type event struct {
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name, value, labels})
}

func (r *recorder) Flush() error { return nil }

func TestOrNop(t *testing.T) {
	t.Parallel()

	if _, ok := OrNop(nil).(Nop); !ok {
		t.Fatalf("OrNop(nil) should be Nop")
	}
	r := &recorder{}
	if OrNop(r) != Backend(r) {
		t.Fatalf("OrNop should return a non-nil backend unchanged")
	}
}

func TestRecordPipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		malformed  int
		wantStatus string
		wantEvents int
	}{
		{name: "ok clean", wantStatus: "ok", wantEvents: 1},
		{name: "ok malformed", malformed: 3, wantStatus: "ok", wantEvents: 2},
		{name: "error", err: errors.New("boom"), wantStatus: "error", wantEvents: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &recorder{}
			RecordPipeline(r, "delimited", tt.err, 1500*time.Millisecond, tt.malformed)
			if len(r.events) != tt.wantEvents {
				t.Fatalf("events = %d, want %d", len(r.events), tt.wantEvents)
			}
			h := r.events[0]
			if h.name != PipelineDurationSeconds || h.value != 1.5 || h.labels["status"] != tt.wantStatus {
				t.Fatalf("histogram = %+v", h)
			}
			if tt.malformed > 0 {
				c := r.events[1]
				if c.name != MalformedRowsTotal || c.value != float64(tt.malformed) || c.labels["format"] != "delimited" {
					t.Fatalf("counter = %+v", c)
				}
			}
		})
	}
}

func TestRecordTransitionAndCommit(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	RecordTransition(r, "Idle", "AwaitingInput")
	RecordCommit(r, "connection", "ok")

	if len(r.events) != 2 {
		t.Fatalf("events = %d, want 2", len(r.events))
	}
	if e := r.events[0]; e.name != TransitionTotal || e.labels["from"] != "Idle" || e.labels["to"] != "AwaitingInput" {
		t.Fatalf("transition = %+v", e)
	}
	if e := r.events[1]; e.name != CommitTotal || e.labels["kind"] != "connection" || e.labels["status"] != "ok" {
		t.Fatalf("commit = %+v", e)
	}
}
