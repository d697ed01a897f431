// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewCliLogger creates the logger for the command line.
// Info messages (and debug messages in the verbose mode) go to stdout, warnings and errors go to stderr.
// The log file, if any, receives all levels in JSON.
func NewCliLogger(stdout io.Writer, stderr io.Writer, logFile *File, format LogFormat, verbose bool) Logger {
	var cores []zapcore.Core

	if logFile != nil {
		cores = append(cores, fileCore(logFile))
	}

	cores = append(cores, stdoutCore(stdout, format, verbose), stderrCore(stderr, format, verbose))

	return loggerFromZapCore(zapcore.NewTee(cores...))
}

func stdoutCore(stdout io.Writer, format LogFormat, verbose bool) zapcore.Core {
	minLevel := InfoLevel
	if verbose {
		minLevel = DebugLevel
	}
	levels := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel && l < WarnLevel
	})
	return zapcore.NewCore(consoleEncoder(format, verbose), zapcore.AddSync(stdout), levels)
}

func stderrCore(stderr io.Writer, format LogFormat, verbose bool) zapcore.Core {
	levels := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= WarnLevel
	})
	return zapcore.NewCore(consoleEncoder(format, verbose), zapcore.AddSync(stderr), levels)
}

func consoleEncoder(format LogFormat, verbose bool) zapcore.Encoder {
	if format == LogFormatJSON {
		return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:     "time",
			LevelKey:    "level",
			MessageKey:  "message",
			EncodeLevel: zapcore.LowercaseLevelEncoder,
			EncodeTime:  zapcore.ISO8601TimeEncoder,
		})
	}

	// Message only, the level prefix is written in the verbose mode
	cfg := zapcore.EncoderConfig{MessageKey: "msg", ConsoleSeparator: "\t"}
	if verbose {
		cfg.LevelKey = "level"
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return &messageOnlyEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}
