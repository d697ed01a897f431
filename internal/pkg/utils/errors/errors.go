// Package errors is the project-wide errors package.
// It wraps the standard library, adds stack traces, multi errors, nested errors and a formatter.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

const stackDepth = 32

// StackTrace is a list of program counters, the first one is the place where the error was created.
type StackTrace []uintptr

type stackTracer interface {
	StackTrace() StackTrace
}

type withStack struct {
	error
	trace StackTrace
}

type wrappedError struct {
	msg   string
	err   error
	trace StackTrace
}

// chain is used by the nested error to expose the main error and all sub errors to errors.Is/As.
type chain []error

func (c chain) Error() string {
	return fmt.Sprintf("%v", []error(c))
}

func (c chain) Unwrap() []error {
	return c
}

func New(msg string) error {
	return &withStack{error: errors.New(msg), trace: callers()}
}

// Errorf formats the message, the "%w" verb is supported.
func Errorf(format string, a ...any) error {
	return &withStack{error: fmt.Errorf(format, a...), trace: callers()} // nolint: forbidigo
}

// Wrap returns a new error with the message, the original error is accessible via Unwrap.
// The message of the original error is not part of the Error() output, use Format with FormatWithUnwrap option.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{msg: msg, err: err, trace: callers()}
}

func Wrapf(err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	return &wrappedError{msg: fmt.Sprintf(format, a...), err: err, trace: callers()}
}

// WithStack adds the stack trace to an error, if it has no one.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var tracer stackTracer
	if As(err, &tracer) {
		return err
	}
	return &withStack{error: err, trace: callers()}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func (e *withStack) Unwrap() error {
	return e.error
}

func (e *withStack) StackTrace() StackTrace {
	return e.trace
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

func (e *wrappedError) StackTrace() StackTrace {
	return e.trace
}

func callers() StackTrace {
	var pcs [stackDepth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}
