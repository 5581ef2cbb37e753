package cloudsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/ekaya-inc/survey-engine/pkg/retry"
)

// ErrOperationDropped is delivered to a queued operation that kept failing while draining.
var ErrOperationDropped = errors.New("queued sync operation dropped after repeated failures")

// Code is the store-independent category of a remote failure.
type Code string

const (
	CodeUnknown           Code = "unknown"
	CodeResourceExhausted Code = "resource-exhausted"
	CodeUnavailable       Code = "unavailable"
	CodeDeadlineExceeded  Code = "deadline-exceeded"
	CodePermissionDenied  Code = "permission-denied"
	CodeUnauthenticated   Code = "unauthenticated"
	CodeNotFound          Code = "not-found"
	CodeInvalidArgument   Code = "invalid-argument"
	CodeAlreadyExists     Code = "already-exists"
)

// StoreError is a remote failure tagged with its Code.
type StoreError struct {
	Op   string
	Code Code
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError tags err with code.
func NewStoreError(op string, code Code, err error) error {
	return &StoreError{Op: op, Code: code, Err: err}
}

// CodeOf extracts the Code of err, falling back to context and message inspection.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeDeadlineExceeded
	}
	if retry.IsRetryable(err) {
		return CodeUnavailable
	}
	return CodeUnknown
}

// classifyError maps a remote failure to its retry budget.
// Unknown failures are retried like network errors; request errors are not.
func classifyError(err error) retry.Class {
	if errors.Is(err, context.Canceled) {
		return retry.Permanent
	}
	switch CodeOf(err) {
	case CodeResourceExhausted:
		return retry.Throttled
	case CodePermissionDenied, CodeUnauthenticated, CodeNotFound, CodeInvalidArgument, CodeAlreadyExists:
		return retry.Permanent
	default:
		return retry.Transient
	}
}
