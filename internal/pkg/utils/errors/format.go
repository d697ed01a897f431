package errors

import (
	"fmt"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"
)

type FormatOption func(c *FormatConfig)

type FormatConfig struct {
	// WithStack adds "[file:line]" to each message, if the stack trace is present.
	WithStack bool
	// WithUnwrap writes also errors wrapped by Wrap/Wrapf, as a sub-list.
	WithUnwrap bool
	// AsSentences starts each message with a capital letter and ends it with a period.
	AsSentences bool
}

// MessageFormatter formats each error message, see DefaultMessageFormatter.
type MessageFormatter func(msg string, trace StackTrace, config FormatConfig) string

// PrefixFormatter formats a prefix followed by a list of errors, see DefaultPrefixFormatter.
type PrefixFormatter func(prefix string) string

func FormatWithStack() FormatOption {
	return func(c *FormatConfig) {
		c.WithStack = true
	}
}

func FormatWithUnwrap() FormatOption {
	return func(c *FormatConfig) {
		c.WithUnwrap = true
	}
}

func FormatAsSentences() FormatOption {
	return func(c *FormatConfig) {
		c.AsSentences = true
	}
}

// Format error to a string, multi and nested errors are written as a bullet list.
func Format(err error, opts ...FormatOption) string {
	w := NewWriter(DefaultMessageFormatter(), DefaultPrefixFormatter(), opts...)
	w.WriteError(err)
	return w.String()
}

func DefaultMessageFormatter() MessageFormatter {
	return func(msg string, trace StackTrace, config FormatConfig) string {
		if config.AsSentences {
			msg = asSentence(msg)
		}
		if config.WithStack && len(trace) > 0 {
			frame := trace[0] - 1
			if fn := runtime.FuncForPC(frame); fn != nil {
				file, line := fn.FileLine(frame)
				msg = fmt.Sprintf("%s [%s:%d]", msg, file, line)
			}
		}
		return msg
	}
}

func DefaultPrefixFormatter() PrefixFormatter {
	return func(prefix string) string {
		return strings.TrimRight(prefix, ".,:") + ":"
	}
}

func asSentence(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return msg
	}

	r, size := utf8.DecodeRuneInString(msg)
	msg = string(unicode.ToUpper(r)) + msg[size:]

	switch msg[len(msg)-1] {
	case '.', '!', '?', ':':
		return msg
	default:
		return msg + "."
	}
}
