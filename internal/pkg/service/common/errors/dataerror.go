package errors

import (
	"fmt"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// DataError is returned when an artifact or a serialized value cannot be decoded.
type DataError struct {
	err  error
	line int
}

func NewDataError(err error) DataError {
	return DataError{err: err}
}

// NewDataErrorAtLine adds the 1-based artifact line number to the error.
func NewDataErrorAtLine(err error, line int) DataError {
	return DataError{err: err, line: line}
}

func (DataError) ErrorName() string {
	return CodeDataError
}

func (e DataError) Line() int {
	return e.line
}

func (e DataError) Unwrap() error {
	return e.err
}

func (e DataError) Error() string {
	if e.line > 0 {
		return fmt.Sprintf("invalid data at line %d: %s", e.line, e.err.Error())
	}
	return "invalid data: " + e.err.Error()
}

func (e DataError) ErrorUserMessage() string {
	msg := errors.Format(e.err, errors.FormatAsSentences())
	if e.line > 0 {
		return fmt.Sprintf("Invalid data at line %d: %s", e.line, msg)
	}
	return "Invalid data: " + msg
}
