// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"go.uber.org/zap/zapcore"
)

// fileCore writes all levels to the log file, as JSON with the attributes.
func fileCore(logFile *File) zapcore.Core {
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "time",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeTime:  zapcore.ISO8601TimeEncoder,
	})
	return zapcore.NewCore(encoder, zapcore.AddSync(logFile.File()), DebugLevel)
}
