package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind string

const (
	KindJSON Kind = "json"
	KindHTTP Kind = "http"
	KindURL  Kind = "url"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrJSON = &Error{Kind: KindJSON}
	ErrHTTP = &Error{Kind: KindHTTP}
	ErrURL  = &Error{Kind: KindURL}
)

// Error is a recoverable sync or upload failure with a human-readable cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("invalid %s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("invalid %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("invalid %s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// JSONError wraps a decode or encode failure.
func JSONError(msg string, err error) error {
	return &Error{Kind: KindJSON, Msg: msg, Err: err}
}

// HTTPError wraps a transport failure or an unexpected status.
func HTTPError(msg string, err error) error {
	return &Error{Kind: KindHTTP, Msg: msg, Err: err}
}

// URLError wraps a malformed endpoint.
func URLError(msg string, err error) error {
	return &Error{Kind: KindURL, Msg: msg, Err: err}
}
