// Package zaxerr is the closed set of failure kinds a command can end in,
// plus the one translation from kind to what the caller is allowed to see.
package zaxerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind uint8

const (
	Unexpected Kind = iota
	MalformedRequest
	UnknownSession
	CryptoFailure
	MalformedCommand
	UnknownCommand
	BadRange
)

func (k Kind) String() string {
	switch k {
	case MalformedRequest:
		return "malformed_request"
	case UnknownSession:
		return "unknown_session"
	case CryptoFailure:
		return "crypto_failure"
	case MalformedCommand:
		return "malformed_command"
	case UnknownCommand:
		return "unknown_command"
	case BadRange:
		return "bad_range"
	default:
		return "unexpected"
	}
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrMalformedRequest = &Error{Kind: MalformedRequest}
	ErrUnknownSession   = &Error{Kind: UnknownSession}
	ErrCryptoFailure    = &Error{Kind: CryptoFailure}
	ErrMalformedCommand = &Error{Kind: MalformedCommand}
	ErrUnknownCommand   = &Error{Kind: UnknownCommand}
	ErrBadRange         = &Error{Kind: BadRange}
	ErrUnexpected       = &Error{Kind: Unexpected}
)

type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "envelope.parse".
	Op  string
	Err error
}

func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the kind of the first *Error in err's chain, or Unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unexpected
}

// HTTPStatus is the only status a failed command is allowed to produce.
// Every kind maps to the same value so callers cannot tell failures apart.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return http.StatusPreconditionFailed
}
