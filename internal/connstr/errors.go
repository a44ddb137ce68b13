package connstr

import "errors"

var (
	ErrMalformedURI      = errors.New("malformed connection URI")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrMissingDatabase   = errors.New("missing database")
	ErrUnknownField      = errors.New("unknown field")
)

// ParseError describes why a link or a field edit was rejected. It never
// carries the input string, which may contain a password.
type ParseError struct {
	// Kind is one of the package sentinels.
	Kind   error
	Field  Field
	Detail string
}

func newError(kind error, field Field, detail string) *ParseError {
	return &ParseError{Kind: kind, Field: field, Detail: detail}
}

func (e *ParseError) Error() string {
	msg := "connstr: " + e.Kind.Error()
	if e.Field != "" {
		msg += " (" + string(e.Field) + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Kind }
