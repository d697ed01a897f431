// nolint: forbidigo
package log

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestCliLogger_File(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	filePath := filepath.Join(t.TempDir(), "log-file.txt")
	file, err := NewLogFile(filePath)
	require.NoError(t, err)
	assert.False(t, file.IsTemp())

	var stdout, stderr bytes.Buffer
	logger := NewCliLogger(&stdout, &stderr, file, LogFormatConsole, false)

	logger.Debug(ctx, "Debug msg")
	logger.Info(ctx, "Info msg")
	logger.Warn(ctx, "Warn msg")
	logger.Error(ctx, "Error msg")
	file.TearDown(false)

	// All levels are logged to the file
	expected := `
{"level":"debug","time":"%s","message":"Debug msg"}
{"level":"info","time":"%s","message":"Info msg"}
{"level":"warn","time":"%s","message":"Warn msg"}
{"level":"error","time":"%s","message":"Error msg"}
`

	content, err := os.ReadFile(filePath)
	require.NoError(t, err)
	wildcards.Assert(t, expected, string(content))
}

func TestCliLogger_VerboseFalse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	logger := NewCliLogger(&stdout, &stderr, nil, LogFormatConsole, false).With(attribute.String("store", "users"))

	logger.Debug(ctx, "Debug msg")
	logger.Info(ctx, "Info msg <store>")
	logger.Warn(ctx, "Warn msg")
	logger.Error(ctx, "Error msg")

	// info      -> stdout
	// warn, err -> stderr
	assert.Equal(t, "Info msg users\n", stdout.String())
	assert.Equal(t, "Warn msg\nError msg\n", stderr.String())
}

func TestCliLogger_VerboseTrue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	logger := NewCliLogger(&stdout, &stderr, nil, LogFormatConsole, true)

	logger.Debug(ctx, "Debug msg")
	logger.Info(ctx, "Info msg")
	logger.Warn(ctx, "Warn msg")
	logger.Error(ctx, "Error msg")

	// debug (verbose), info -> stdout
	// warn, err             -> stderr
	assert.Equal(t, "DEBUG\tDebug msg\nINFO\tInfo msg\n", stdout.String())
	assert.Equal(t, "WARN\tWarn msg\nERROR\tError msg\n", stderr.String())
}

func TestCliLogger_JSON(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	logger := NewCliLogger(&stdout, &stderr, nil, LogFormatJSON, false)
	logger.Info(context.Background(), "Info msg")

	AssertJSONMessages(t, `{"level":"info","message":"Info msg","time":"%s"}`, stdout.String())
	assert.Empty(t, stderr.String())
}

func TestNewLogFormat(t *testing.T) {
	t.Parallel()

	format, err := NewLogFormat("json")
	require.NoError(t, err)
	assert.Equal(t, LogFormatJSON, format)

	format, err = NewLogFormat("foo")
	require.Error(t, err)
	assert.Equal(t, LogFormatConsole, format)
}
