package session

import (
	"context"
	"fmt"

	"github.com/rodrigobaldaia/data-onboarding/internal/pipeline"
)

// Upload is an in-flight file upload. It belongs to the session that
// created it and becomes inert once the session leaves Uploading for any
// reason other than its own Complete.
type Upload struct {
	s      *Session
	ctx    context.Context
	cancel context.CancelFunc

	name string
	size int64

	// guarded by s.mu
	progress int
}

// BeginUpload starts an upload: AwaitingInput -> Uploading. Cancelling ctx
// discards the upload and returns the session to AwaitingInput.
//
// A goroutine watches ctx until the upload ends. Callers must finish it with
// Complete, Cancel, or Session.Cancel/Close, or cancel ctx; an upload that is
// simply dropped keeps its watcher alive for as long as ctx lives.
func (s *Session) BeginUpload(ctx context.Context, name string, size int64) (*Upload, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingInput {
		return nil, invalid("begin upload", s.state)
	}
	uctx, cancel := context.WithCancel(ctx)
	u := &Upload{s: s, ctx: uctx, cancel: cancel, name: name, size: size}
	s.payload = uploadPayload{u: u}
	s.log.Printf("session=%s upload begin name=%q size=%d", s.id, name, size)
	s.setState(Uploading)

	go u.watch()
	return u, nil
}

// watch abandons the upload when its context ends while it is still the
// session's current upload.
func (u *Upload) watch() {
	<-u.ctx.Done()
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	u.abandonLocked("context done")
}

// current reports whether u is the session's live upload. Caller holds s.mu.
func (u *Upload) current() bool {
	p, ok := u.s.payload.(uploadPayload)
	return ok && p.u == u && u.s.state == Uploading
}

func (u *Upload) abandonLocked(reason string) {
	if !u.current() {
		return
	}
	u.s.payload = nil
	u.s.log.Printf("session=%s upload discarded name=%q reason=%s", u.s.id, u.name, reason)
	u.s.setState(AwaitingInput)
}

// Name returns the file name given to BeginUpload.
func (u *Upload) Name() string { return u.name }

// Size returns the declared byte size.
func (u *Upload) Size() int64 { return u.size }

// Progress records upload progress in percent. Values must stay within
// 0..100 and never decrease.
func (u *Upload) Progress(p int) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if !u.current() {
		return ErrCancelled
	}
	if p < 0 || p > 100 || p < u.progress {
		return fmt.Errorf("%w: %d after %d", ErrInvalidProgress, p, u.progress)
	}
	u.progress = p
	return nil
}

// Complete hands over the uploaded bytes and runs the pipeline. On success
// the session moves to Previewing. A pipeline error leaves the session in
// Uploading so the caller can retry or cancel.
func (u *Upload) Complete(raw []byte, declaredEncoding string) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if !u.current() {
		return ErrCancelled
	}
	if u.progress != 100 {
		return fmt.Errorf("%w: at %d%%", ErrUploadIncomplete, u.progress)
	}

	in := pipeline.Capture(raw, declaredEncoding, u.name)
	res, err := s.runPipeline(func() (pipeline.Result, error) {
		return pipeline.Run(u.ctx, in, s.settings)
	})
	if err != nil {
		if u.ctx.Err() != nil {
			u.abandonLocked("context done")
			return ErrCancelled
		}
		return err
	}

	s.payload = previewPayload{raw: in, decoded: res.Decoded, preview: res.Preview}
	s.setState(Previewing)
	// The watcher sees a non-current upload and exits.
	u.cancel()
	return nil
}

// Cancel discards the upload and returns the session to AwaitingInput.
// It does nothing once the upload completed or was discarded.
func (u *Upload) Cancel() {
	s := u.s
	s.mu.Lock()
	u.abandonLocked("cancelled")
	s.mu.Unlock()
	u.cancel()
}

// SubmitFile runs a whole upload at once: BeginUpload, Progress(100) and
// Complete. On failure the session returns to AwaitingInput.
func (s *Session) SubmitFile(ctx context.Context, name string, raw []byte, declaredEncoding string) error {
	u, err := s.BeginUpload(ctx, name, int64(len(raw)))
	if err != nil {
		return err
	}
	if err := u.Progress(100); err != nil {
		u.Cancel()
		return err
	}
	if err := u.Complete(raw, declaredEncoding); err != nil {
		u.Cancel()
		return err
	}
	return nil
}
