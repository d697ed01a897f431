// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// messageOnlyEncoder drops structured fields, the CLI output contains only the formatted messages.
type messageOnlyEncoder struct {
	zapcore.Encoder
}

func (e *messageOnlyEncoder) Clone() zapcore.Encoder {
	return &messageOnlyEncoder{Encoder: e.Encoder.Clone()}
}

func (e *messageOnlyEncoder) EncodeEntry(entry zapcore.Entry, _ []zapcore.Field) (*buffer.Buffer, error) {
	return e.Encoder.EncodeEntry(entry, nil)
}
