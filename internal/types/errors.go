package types

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a referenced entity is absent.
var ErrNotFound = errors.New("not found")

// ErrOrderKeyExhausted reports that the order key space between two
// neighbours could not be bisected. This is an internal error, not a
// user-visible one; it indicates duplicate sibling keys or pathological
// key growth.
var ErrOrderKeyExhausted = errors.New("order key space exhausted")

// MsgNotFoundOrInactive is the literal phrase clients parse whenever
// inactivity is the cause of a lookup failure.
const MsgNotFoundOrInactive = "not found or is inactive"

// ValidationError reports an input that violates a structural or
// semantic precondition. It surfaces to clients as an invalid-params
// error carrying the exact message.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundOrInactive builds the canonical validation error for a work
// item that is missing or soft-deleted.
func NotFoundOrInactive(what, id string) error {
	return &ValidationError{Msg: fmt.Sprintf("%s %s %s", what, id, MsgNotFoundOrInactive)}
}

// ConflictError reports an operation that contradicts current state,
// such as deleting a root project via delete_task.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// IsUserError reports whether err should surface to the client as an
// invalid-params error (validation, not-found, conflict) rather than
// an internal one.
func IsUserError(err error) bool {
	var ve *ValidationError
	var ce *ConflictError
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.Is(err, ErrNotFound)
}
