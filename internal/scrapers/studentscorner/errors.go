package studentscorner

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// KindNetwork is a transport level failure (dns, connection reset, tls...).
	KindNetwork ErrorKind = "network"
	// KindAuth is a non-success HTTP status from any step of the login flow.
	KindAuth ErrorKind = "auth"
	// KindTimeout is a request or task that ran past its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindUnexpected is anything else.
	KindUnexpected ErrorKind = "unexpected"
)

// Error is the error returned by Client and Portal, Kind makes the cause
// machine readable while Err keeps the original error.
type Error struct {
	Kind ErrorKind
	// Op is the step of the login flow that failed, ex. "fetch login page".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("studentscorner: %s error: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("studentscorner: %s: %s error: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err. Errors that do not wrap an
// *Error are classified as timeouts when they wrap a context deadline and as
// unexpected otherwise.
func KindOf(err error) ErrorKind {
	var scErr *Error
	if errors.As(err, &scErr) {
		return scErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnexpected
}

// StatusError is the cause of a KindAuth error.
type StatusError struct {
	StatusCode int
	Status     string
	Url        string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s from %s", e.Status, e.Url)
}
