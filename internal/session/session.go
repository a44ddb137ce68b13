// Package session implements the onboarding wizard as a state machine.
//
//	Idle -> AwaitingInput -> Uploading -> Previewing ------------> Committed -> Idle
//	                      \-> LinkEntered -> ConnectionConfiguring -/
//
// A Session is the only mutable entity in the onboarding core. Every
// mutating method takes the session mutex, so one session has a single
// writer; independent sessions share nothing. Commit releases the mutex
// while the sink runs and fences off other edits until it returns. A failed
// operation leaves the session exactly as it was.
package session

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rodrigobaldaia/data-onboarding/internal/canvas"
	"github.com/rodrigobaldaia/data-onboarding/internal/connstr"
	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
	"github.com/rodrigobaldaia/data-onboarding/internal/decode"
	"github.com/rodrigobaldaia/data-onboarding/internal/infer"
	"github.com/rodrigobaldaia/data-onboarding/internal/metrics"
	"github.com/rodrigobaldaia/data-onboarding/internal/pipeline"
)

// Settings are the pipeline settings a session previews with.
type Settings = pipeline.Settings

// Options configure a Session. The zero value is usable: default settings,
// no sink, no metrics, no logging.
type Options struct {
	// Settings start every upload. Zero means pipeline.DefaultSettings().
	Settings *Settings
	// Sink receives committed artifacts. Emit runs outside the session lock,
	// so a slow or blocking sink stalls only the Commit call; reads and
	// Cancel proceed while edits fail with ErrCommitInProgress.
	Sink canvas.Sink
	// Metrics receives transition, commit and pipeline events.
	Metrics metrics.Backend
	// Logger defaults to discarding output.
	Logger *log.Logger
	// OnTransition observes every state change, including transient ones
	// (LinkEntered, Committed). It runs under the session lock and must not
	// call back into the session.
	OnTransition func(from, to State)
	// Now stamps artifacts. Defaults to time.Now.
	Now func() time.Time
}

// payload is the data that belongs to the current state. Exactly one
// variant exists at a time, so a session can never hold an upload, a
// preview and a descriptor at once.
type payload interface{ state() State }

type uploadPayload struct{ u *Upload }

type previewPayload struct {
	raw     pipeline.RawInput
	decoded decode.Text
	preview *dataset.Preview
}

type connectionPayload struct{ desc connstr.Descriptor }

func (uploadPayload) state() State     { return Uploading }
func (previewPayload) state() State    { return Previewing }
func (connectionPayload) state() State { return ConnectionConfiguring }

// Session is one onboarding flow.
type Session struct {
	id string

	sink         canvas.Sink
	metrics      metrics.Backend
	log          *log.Logger
	onTransition func(from, to State)
	now          func() time.Time
	initial      Settings

	mu       sync.Mutex
	state    State
	settings Settings
	payload  payload
	// committing is set while Commit waits on the sink.
	committing bool
	// epoch counts resets, so a commit can tell it was overtaken by Cancel.
	epoch uint64
}

// New returns an Idle session.
func New(opts Options) *Session {
	s := &Session{
		id:           uuid.NewString(),
		sink:         opts.Sink,
		metrics:      metrics.OrNop(opts.Metrics),
		log:          opts.Logger,
		onTransition: opts.OnTransition,
		now:          opts.Now,
		initial:      pipeline.DefaultSettings(),
	}
	if opts.Settings != nil {
		s.initial = *opts.Settings
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.settings = s.initial
	return s
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View is an immutable copy of a session's observable state. Preview is
// shared with the session but never mutated once published.
type View struct {
	ID         string
	State      State
	Progress   int
	SourceName string
	Preview    *dataset.Preview
	Descriptor *connstr.Descriptor
	Settings   Settings
}

// Snapshot returns the current View.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{ID: s.id, State: s.state, Settings: s.settings}
	switch p := s.payload.(type) {
	case uploadPayload:
		v.Progress = p.u.progress
		v.SourceName = p.u.name
	case previewPayload:
		v.Progress = 100
		v.SourceName = p.raw.SourceName
		v.Preview = p.preview
	case connectionPayload:
		d := p.desc
		d.Params = cloneParams(d.Params)
		v.Descriptor = &d
	}
	return v
}

// Open starts the wizard: Idle -> AwaitingInput.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return invalid("open", s.state)
	}
	s.setState(AwaitingInput)
	return nil
}

// Cancel returns the session to Idle from any state, discarding whatever
// was captured. An in-flight upload is cancelled. Cancel on an Idle
// session does nothing.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked("cancel")
}

// Close closes the wizard. It is Cancel under the name UIs use.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked("close")
}

func (s *Session) resetLocked(reason string) {
	if s.state == Idle {
		return
	}
	if up, ok := s.payload.(uploadPayload); ok {
		up.u.cancel()
	}
	s.payload = nil
	s.settings = s.initial
	s.committing = false
	s.epoch++
	s.log.Printf("session=%s reset reason=%s", s.id, reason)
	s.setState(Idle)
}

// setState records a transition. Caller holds s.mu.
func (s *Session) setState(to State) {
	from := s.state
	s.state = to
	metrics.RecordTransition(s.metrics, from.String(), to.String())
	s.log.Printf("session=%s transition from=%s to=%s", s.id, from, to)
	if s.onTransition != nil {
		s.onTransition(from, to)
	}
}

// runPipeline times and records one pipeline pass. Caller holds s.mu.
func (s *Session) runPipeline(run func() (pipeline.Result, error)) (pipeline.Result, error) {
	start := time.Now()
	res, err := run()
	format := "unknown"
	malformed := 0
	if res.Preview != nil {
		format = res.Preview.Format.String()
		malformed = res.Preview.Warnings.MalformedRowCount
	}
	metrics.RecordPipeline(s.metrics, format, err, time.Since(start), malformed)
	if err != nil {
		s.log.Printf("session=%s pipeline error=%q", s.id, err)
		return res, err
	}
	p := res.Preview
	s.log.Printf("session=%s pipeline format=%s columns=%d rows=%d encoding=%s malformed=%d",
		s.id, p.Format, len(p.Columns), p.TotalRowCountEstimate, p.Encoding, malformed)
	return res, nil
}

func cloneParams[M ~map[string][]string](m M) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// UpdateSettings edits the preview settings and re-runs sniff, parse and
// infer. A nil edit re-runs with the current settings. The retained decoded
// text is reused unless the encoding changed.
// The new preview replaces the old one only on success; on error the
// previous preview and settings stay in place.
func (s *Session) UpdateSettings(ctx context.Context, edit func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.payload.(previewPayload)
	if !ok || s.state != Previewing {
		return invalid("update settings", s.state)
	}
	if s.committing {
		return busy("update settings", s.state)
	}

	next := s.settings
	if edit != nil {
		edit(&next)
	}

	redecode := next.Encoding != s.settings.Encoding || cur.preview.Format == dataset.FormatTabularBinary
	res, err := s.runPipeline(func() (pipeline.Result, error) {
		if redecode {
			return pipeline.Run(ctx, cur.raw, next)
		}
		return pipeline.Analyze(ctx, cur.decoded, cur.raw.SourceName, next)
	})
	if err != nil {
		return err
	}

	decoded := cur.decoded
	if redecode {
		decoded = res.Decoded
	}
	s.settings = next
	s.payload = previewPayload{raw: cur.raw, decoded: decoded, preview: res.Preview}
	return nil
}

// OverrideColumnType sets column index to t when every sampled value of the
// column is valid for t.
func (s *Session) OverrideColumnType(index int, t dataset.ColumnType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.payload.(previewPayload)
	if !ok || s.state != Previewing {
		return invalid("override column type", s.state)
	}
	if s.committing {
		return busy("override column type", s.state)
	}
	if index < 0 || index >= len(cur.preview.Columns) {
		_, err := cur.preview.WithColumnType(index, t)
		return err
	}

	values := make([]*string, len(cur.preview.Rows))
	for i, row := range cur.preview.Rows {
		values[i] = row[index]
	}
	layout, err := infer.Check(values, t, infer.Options{SampleSize: s.settings.SampleSize})
	if err != nil {
		return err
	}
	p, err := cur.preview.WithColumnType(index, t)
	if err != nil {
		return err
	}
	p.Columns[index].DateLayout = layout
	cur.preview = p
	s.payload = cur
	s.log.Printf("session=%s column=%d type=%s", s.id, index, t)
	return nil
}

// SubmitLink parses a connection link: AwaitingInput -> LinkEntered ->
// ConnectionConfiguring. On a parse error the session stays in
// AwaitingInput and no transition is emitted.
func (s *Session) SubmitLink(link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingInput {
		return invalid("submit link", s.state)
	}
	d, err := connstr.Parse(link)
	if err != nil {
		s.log.Printf("session=%s link rejected error=%q", s.id, err)
		return err
	}
	s.setState(LinkEntered)
	s.payload = connectionPayload{desc: d}
	s.log.Printf("session=%s link=%s", s.id, d.Redacted())
	s.setState(ConnectionConfiguring)
	return nil
}

// EditConnection replaces one descriptor field. Only that field is
// validated; on error the descriptor is unchanged.
func (s *Session) EditConnection(f connstr.Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.payload.(connectionPayload)
	if !ok || s.state != ConnectionConfiguring {
		return invalid("edit connection", s.state)
	}
	if s.committing {
		return busy("edit connection", s.state)
	}
	d, err := cur.desc.WithField(f, value)
	if err != nil {
		return err
	}
	s.payload = connectionPayload{desc: d}
	s.log.Printf("session=%s edit field=%s link=%s", s.id, f, d.Redacted())
	return nil
}

// Commit emits exactly one artifact to the sink and resets the session to
// Idle. Before a preview or descriptor exists it fails with ErrNotReady.
// If the sink fails the session is unchanged and the commit can be retried.
//
// The sink is called without holding the session lock. A Cancel or Close
// that lands while the sink runs wins: the session stays where the reset
// put it and the commit result is still returned to the caller.
func (s *Session) Commit(ctx context.Context) (canvas.Artifact, error) {
	a, epoch, err := s.beginCommit()
	if err != nil {
		return nil, err
	}

	emitErr := s.sink.Emit(ctx, a)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch {
		s.committing = false
	}

	if emitErr != nil {
		metrics.RecordCommit(s.metrics, string(a.Kind()), "error")
		s.log.Printf("session=%s commit kind=%s error=%q", s.id, a.Kind(), emitErr)
		return nil, emitErr
	}
	metrics.RecordCommit(s.metrics, string(a.Kind()), "ok")
	s.log.Printf("session=%s commit kind=%s artifact=%s", s.id, a.Kind(), a.ArtifactID())

	if s.epoch != epoch {
		s.log.Printf("session=%s commit finished after reset", s.id)
		return a, nil
	}
	s.setState(Committed)
	s.payload = nil
	s.settings = s.initial
	s.setState(Idle)
	return a, nil
}

// beginCommit builds the artifact and marks the session as committing.
func (s *Session) beginCommit() (canvas.Artifact, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Ready() {
		return nil, 0, &TransitionError{Op: "commit", From: s.state, Err: ErrNotReady}
	}
	if s.committing {
		return nil, 0, busy("commit", s.state)
	}
	if s.sink == nil {
		return nil, 0, canvas.ErrNoSink
	}

	var a canvas.Artifact
	switch p := s.payload.(type) {
	case previewPayload:
		a = canvas.NewDatasetImport(p.raw.SourceName, p.preview, s.now())
	case connectionPayload:
		d := p.desc
		d.Params = cloneParams(d.Params)
		a = canvas.NewConnection(d, s.now())
	default:
		return nil, 0, &TransitionError{Op: "commit", From: s.state, Err: ErrNotReady}
	}
	s.committing = true
	return a, s.epoch, nil
}
