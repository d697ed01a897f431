package log

import (
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

// NewLogFormat parses the --log-format value, console is used with an error on an invalid value.
func NewLogFormat(format string) (LogFormat, error) {
	logFormat := LogFormat(format)

	switch logFormat {
	case LogFormatConsole, LogFormatJSON:
		return logFormat, nil
	default:
		return LogFormatConsole, errors.New(`log format must be "console" or "json"`)
	}
}
