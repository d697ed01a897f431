package errors

import (
	"context"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	CodeAborted       = "aborted"
	CodeStoreNotFound = "store-not-found"
	CodeEmptyDB       = "empty-db"
	CodeDataError     = "data-error"
	CodeClosed        = "closed"
)

// AbortedError is returned when the cancellation of an export or import has been observed.
// Records written so far are not rolled back.
type AbortedError struct {
	cause error
}

// NewAbortedError wraps the context cancellation cause.
func NewAbortedError(ctx context.Context) AbortedError {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return AbortedError{cause: cause}
}

func (AbortedError) ErrorName() string {
	return CodeAborted
}

func (e AbortedError) Unwrap() error {
	return e.cause
}

func (e AbortedError) Error() string {
	return "operation aborted: " + e.cause.Error()
}

func (e AbortedError) ErrorUserMessage() string {
	return "The operation has been aborted: " + errors.Format(e.cause, errors.FormatAsSentences())
}
