// Package taskerr classifies the error kinds that cross the task engine's
// boundaries: the fetch function boundary (Fatal vs non-fatal) and the
// control-operation boundary (not-found, illegal state, validation).
package taskerr

import (
	"errors"
	"fmt"
)

// Kind is a closed set of error classifications used across the Queue Item
// Manager, Task Processor and REST handlers to decide retry, rollback and
// HTTP-status behavior.
type Kind string

const (
	// KindFatal signals a whole-task stopper: credentials blocked, upstream
	// ban, or an internal invariant broken (e.g. batch length mismatch).
	// Queue pops made as part of the current work unit must be rolled back.
	KindFatal Kind = "fatal"

	// KindNonFatal signals a per-item failure; the task as a whole continues.
	KindNonFatal Kind = "non_fatal"

	// KindNotFound signals a control operation addressed a task, queue item,
	// or resource that does not exist.
	KindNotFound Kind = "not_found"

	// KindIllegalState signals a control operation that is not valid given
	// the task's current status (e.g. execute on an already-running task).
	KindIllegalState Kind = "illegal_state"

	// KindValidation signals a malformed request: unknown (data_source,
	// task_type), empty input list, batch size below the minimum, etc.
	KindValidation Kind = "validation"
)

// Error is a taskerr-classified error wrapping an underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is comparisons against the sentinel Kind values below,
// e.g. errors.Is(err, taskerr.Fatal).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && e.Kind == t.Kind
}

// Sentinel values usable with errors.Is(err, taskerr.Fatal).
var (
	Fatal        = &Error{Kind: KindFatal}
	NonFatal     = &Error{Kind: KindNonFatal}
	NotFound     = &Error{Kind: KindNotFound}
	IllegalState = &Error{Kind: KindIllegalState}
	Validation   = &Error{Kind: KindValidation}
)

// NewFatal wraps err (or constructs a new error from msg) as Fatal.
func NewFatal(msg string, err error) error {
	return &Error{Kind: KindFatal, Msg: msg, Err: err}
}

// NewNonFatal wraps err as non-fatal.
func NewNonFatal(msg string, err error) error {
	return &Error{Kind: KindNonFatal, Msg: msg, Err: err}
}

// NewNotFound constructs a not-found error.
func NewNotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// NewIllegalState constructs an illegal-state error.
func NewIllegalState(msg string) error {
	return &Error{Kind: KindIllegalState, Msg: msg}
}

// NewValidation constructs a validation error.
func NewValidation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// IsFatal reports whether err is classified Fatal.
func IsFatal(err error) bool { return errors.Is(err, Fatal) }

// IsNonFatal reports whether err is classified non-fatal.
func IsNonFatal(err error) bool { return errors.Is(err, NonFatal) }

// IsNotFound reports whether err is classified not-found.
func IsNotFound(err error) bool { return errors.Is(err, NotFound) }

// IsIllegalState reports whether err is classified illegal-state.
func IsIllegalState(err error) bool { return errors.Is(err, IllegalState) }

// IsValidation reports whether err is classified validation.
func IsValidation(err error) bool { return errors.Is(err, Validation) }

// KindOf returns the Kind of err if it is a *Error, and ok=true; otherwise
// the zero Kind and ok=false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
