package burnerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Result sentinels. They travel as errors but are not failures.
var (
	// ErrNotRunning is returned by a stage that has nothing to do.
	ErrNotRunning = errors.New("not running")
	// ErrNotSupported is returned by a stage that cannot serve the requested action.
	ErrNotSupported = errors.New("not supported")
	// ErrRetry asks the caller to run the same step again.
	ErrRetry = errors.New("retry")
	// ErrNeedReload means the current medium must be swapped before continuing.
	ErrNeedReload = errors.New("medium needs reloading")
	// ErrNotReady is returned by status queries while nothing is running.
	ErrNotReady = errors.New("not ready")
)

// ErrDangerous is returned by a protected cancel while an unsafe write is in progress.
var ErrDangerous = &Error{Kind: KindDangerous, Op: "cancel", Msg: "operation cannot be interrupted safely"}

// Error is a classified burn failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Op, e.Msg)
	if detail == "" {
		detail = e.Kind.String()
	}
	if e.Err != nil {
		return detail + ": " + e.Err.Error()
	}
	return detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind or a bare Kind marker.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind && (t.Op == "" || t.Op == e.Op)
	}
	return false
}

// ErrorKind implements the classifier interface used by the history journal.
func (e *Error) ErrorKind() string { return e.Kind.String() }

// New builds a classified error without a cause.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: strings.TrimSpace(op), Msg: strings.TrimSpace(message)}
}

// Newf is New with a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// Wrap tags err with kind plus the operation that failed. A nil err still
// produces an error so call sites can wrap conditions as well as causes.
func Wrap(kind Kind, op, message string, err error) error {
	return &Error{Kind: kind, Op: strings.TrimSpace(op), Msg: strings.TrimSpace(message), Err: err}
}

// Cancelled builds the distinguished cancellation result.
func Cancelled(op string) error {
	return New(KindCancel, op, "cancelled")
}

// KindOf classifies err. Context cancellation maps to KindCancel and any
// unclassified error to KindGeneral.
func KindOf(err error) Kind {
	if err == nil {
		return KindGeneral
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	if errors.Is(err, context.Canceled) {
		return KindCancel
	}
	return KindGeneral
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// IsCancel reports whether err is a cancellation result.
func IsCancel(err error) bool {
	return Is(err, KindCancel)
}

func buildDetail(op, message string) string {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	return strings.Join(parts, ": ")
}
