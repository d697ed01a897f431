// Package errors contains expected, user-facing errors.
// Each error has a machine-readable code, see ErrorName, and a human message, see ErrorUserMessage.
package errors

import (
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// WithName is an expected error with a machine-readable code.
type WithName interface {
	error
	ErrorName() string
}

type WithUserMessage interface {
	error
	ErrorUserMessage() string
}

// Code returns the code of the first expected error in the chain, or an empty string.
func Code(err error) string {
	var named WithName
	if errors.As(err, &named) {
		return named.ErrorName()
	}
	return ""
}

// IsExpected returns true, if the error chain contains an error from the closed taxonomy.
// Other errors are unexpected and should be reported with the full chain.
func IsExpected(err error) bool {
	switch Code(err) {
	case CodeAborted, CodeStoreNotFound, CodeEmptyDB, CodeDataError, CodeClosed:
		return true
	default:
		return false
	}
}

// UserMessage returns the user message of the first expected error, or the formatted error.
func UserMessage(err error) string {
	var v WithUserMessage
	if errors.As(err, &v) {
		return v.ErrorUserMessage()
	}
	return errors.Format(err, errors.FormatAsSentences())
}
