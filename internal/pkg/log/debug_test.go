package log

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/dbsnap/internal/pkg/ctxattr"
)

func TestDebugLogger_Levels(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	logger := NewDebugLogger()
	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Errorf(ctx, "error %d", 123)

	logger.AssertJSONMessages(t, `
{"level":"debug","message":"debug"}
{"level":"info","message":"info"}
{"level":"warn","message":"warn"}
{"level":"error","message":"error 123"}
`)
	assert.Equal(t, 1, strings.Count(logger.DebugMessages(), "\n"))
	assert.Contains(t, logger.InfoMessages(), `"message":"info"`)
	assert.Contains(t, logger.WarnMessages(), `"message":"warn"`)
	assert.Contains(t, logger.ErrorMessages(), `"message":"error 123"`)
	assert.Equal(t, 2, strings.Count(logger.WarnAndErrorMessages(), "\n"))

	logger.Truncate()
	assert.Empty(t, logger.AllMessages())
}

func TestDebugLogger_Attributes(t *testing.T) {
	t.Parallel()

	ctx := ctxattr.ContextWith(context.Background(), attribute.String("db.name", "users"), attribute.String("key1", "ctx"))

	logger := NewDebugLogger()
	withAttrs := logger.
		WithComponent("c1").
		With(attribute.String("key1", "value1"), attribute.String("key2", "value2")).
		WithComponent("c2").
		WithDuration(123 * time.Second)

	withAttrs.Info(ctx, `Exported database "<db.name>".`)
	logger.Info(context.Background(), "Plain message.")

	logger.AssertJSONMessages(t, `
{"level":"info","message":"Exported database \"users\".","component":"c1.c2","duration":"2m3s","db.name":"users","key1":"value1","key2":"value2"}
{"level":"info","message":"Plain message."}
`)
}
