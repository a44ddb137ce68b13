package session

import (
	"errors"
	"fmt"
)

// State is the wizard step a session is in.
type State int

const (
	Idle State = iota
	AwaitingInput
	Uploading
	Previewing
	LinkEntered
	ConnectionConfiguring
	Committed
)

var stateNames = [...]string{
	Idle:                  "idle",
	AwaitingInput:         "awaiting_input",
	Uploading:             "uploading",
	Previewing:            "previewing",
	LinkEntered:           "link_entered",
	ConnectionConfiguring: "connection_configuring",
	Committed:             "committed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Ready reports whether a commit is possible from s.
func (s State) Ready() bool {
	return s == Previewing || s == ConnectionConfiguring
}

var (
	// ErrInvalidTransition is wrapped by every *TransitionError raised for an
	// operation that the current state does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotReady is returned by Commit before a preview or descriptor exists.
	ErrNotReady = errors.New("not ready to commit")
	// ErrInvalidProgress rejects progress outside 0..100 or going backwards.
	ErrInvalidProgress = errors.New("invalid upload progress")
	// ErrUploadIncomplete is returned by Upload.Complete before progress 100.
	ErrUploadIncomplete = errors.New("upload incomplete")
	// ErrCancelled is returned by an Upload whose session moved on.
	ErrCancelled = errors.New("upload cancelled")
	// ErrCommitInProgress rejects edits and a second Commit while the sink
	// is still receiving an artifact.
	ErrCommitInProgress = errors.New("commit in progress")
)

// TransitionError reports an operation attempted in the wrong state. The
// session is unchanged when one is returned.
type TransitionError struct {
	Op   string
	From State
	// Err is ErrInvalidTransition, ErrNotReady or ErrCommitInProgress.
	Err error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: %s in state %s: %v", e.Op, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func invalid(op string, from State) error {
	return &TransitionError{Op: op, From: from, Err: ErrInvalidTransition}
}

func busy(op string, from State) error {
	return &TransitionError{Op: op, From: from, Err: ErrCommitInProgress}
}
