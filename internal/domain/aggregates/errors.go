package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies matching-engine failures.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeInvariantViolation ErrorCode = "invariant_violation"
	CodePreconditionFailed ErrorCode = "precondition_failed"
	CodeRetryable          ErrorCode = "retryable"
	CodeInternal           ErrorCode = "internal"
)

// Error is the canonical aggregate error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with code unless it is nil.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf returns the outermost aggregate code in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Code
}

// Disposition is what a queue worker does with a failed seeker evaluation.
type Disposition string

const (
	// DispositionRetry puts the work item back on the queue with backoff.
	DispositionRetry Disposition = "retry"
	// DispositionDrop marks the work item dead; retrying cannot help.
	DispositionDrop Disposition = "drop"
	// DispositionSkip leaves the seeker unmatched this sweep and completes the item.
	DispositionSkip Disposition = "skip"
)

// DispositionOf maps an error onto the transient / permanent / invariant split.
// Uncoded errors are treated as transient.
func DispositionOf(err error) Disposition {
	switch CodeOf(err) {
	case CodeValidation, CodeNotFound, CodePreconditionFailed:
		return DispositionDrop
	case CodeInvariantViolation:
		return DispositionSkip
	default:
		return DispositionRetry
	}
}
