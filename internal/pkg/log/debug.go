// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/dbsnap/internal/pkg/encoding/json"
)

// debugLogger stores all records in memory, as JSON lines, see DebugLogger interface.
type debugLogger struct {
	*zapLogger
	out *memoryWriter
}

type memoryWriter struct {
	lock      sync.Mutex
	buf       bytes.Buffer
	connected []io.Writer
}

func NewDebugLogger() DebugLogger {
	out := &memoryWriter{}
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "time",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeTime:  zapcore.ISO8601TimeEncoder,
	})
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), DebugLevel)
	return &debugLogger{zapLogger: loggerFromZapCore(core), out: out}
}

// ConnectTo copies all following records also to the writer, for example to os.Stdout while debugging a test.
func (l *debugLogger) ConnectTo(writer io.Writer) {
	l.out.lock.Lock()
	defer l.out.lock.Unlock()
	l.out.connected = append(l.out.connected, writer)
}

func (l *debugLogger) Truncate() {
	l.out.lock.Lock()
	defer l.out.lock.Unlock()
	l.out.buf.Reset()
}

func (l *debugLogger) AllMessages() string {
	l.out.lock.Lock()
	defer l.out.lock.Unlock()
	return l.out.buf.String()
}

func (l *debugLogger) DebugMessages() string {
	return l.messages(DebugLevel)
}

func (l *debugLogger) InfoMessages() string {
	return l.messages(InfoLevel)
}

func (l *debugLogger) WarnMessages() string {
	return l.messages(WarnLevel)
}

func (l *debugLogger) WarnAndErrorMessages() string {
	return l.messages(WarnLevel, ErrorLevel)
}

func (l *debugLogger) ErrorMessages() string {
	return l.messages(ErrorLevel)
}

func (l *debugLogger) CompareJSONMessages(expected string) error {
	return CompareJSONMessages(expected, l.AllMessages())
}

func (l *debugLogger) AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool {
	return AssertJSONMessages(t, expected, l.AllMessages(), msgAndArgs...)
}

func (l *debugLogger) messages(levels ...zapcore.Level) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(l.AllMessages()))
	for scanner.Scan() {
		var record struct {
			Level string `json:"level"`
		}
		if err := json.DecodeString(scanner.Text(), &record); err != nil {
			continue
		}
		for _, level := range levels {
			if record.Level == level.String() {
				out.WriteString(scanner.Text())
				out.WriteString("\n")
			}
		}
	}
	return out.String()
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	for _, c := range w.connected {
		_, _ = c.Write(p)
	}
	return w.buf.Write(p)
}
