package log

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/dbsnap/internal/pkg/ctxattr"
)

const (
	componentKey = "component"
	durationKey  = "duration"
)

// zapLogger is the default implementation of the Logger interface.
type zapLogger struct {
	core   zapcore.Core
	logger *zap.Logger
	attrs  attribute.Set
}

func loggerFromZapCore(core zapcore.Core) *zapLogger {
	return &zapLogger{core: core, logger: zap.New(core), attrs: attribute.NewSet()}
}

func (l *zapLogger) ZapCore() zapcore.Core {
	return l.core
}

func (l *zapLogger) With(attrs ...attribute.KeyValue) Logger {
	clone := *l
	clone.attrs = attribute.NewSet(append(l.attrs.ToSlice(), attrs...)...)
	return &clone
}

// WithComponent appends the component name, nested components are separated by a dot.
func (l *zapLogger) WithComponent(component string) Logger {
	if v, ok := l.attrs.Value(componentKey); ok && v.AsString() != "" {
		component = v.AsString() + "." + component
	}
	return l.With(attribute.String(componentKey, component))
}

func (l *zapLogger) WithDuration(v time.Duration) Logger {
	return l.With(attribute.String(durationKey, v.String()))
}

func (l *zapLogger) Debug(ctx context.Context, message string) {
	l.log(ctx, DebugLevel, message)
}

func (l *zapLogger) Info(ctx context.Context, message string) {
	l.log(ctx, InfoLevel, message)
}

func (l *zapLogger) Warn(ctx context.Context, message string) {
	l.log(ctx, WarnLevel, message)
}

func (l *zapLogger) Error(ctx context.Context, message string) {
	l.log(ctx, ErrorLevel, message)
}

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
	l.log(ctx, DebugLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
	l.log(ctx, InfoLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
	l.log(ctx, WarnLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
	l.log(ctx, ErrorLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *zapLogger) log(ctx context.Context, level zapcore.Level, message string) {
	if !l.core.Enabled(level) {
		return
	}

	// Context attributes have lower priority than the logger attributes
	all := attribute.NewSet(append(ctxattr.Attributes(ctx).ToSlice(), l.attrs.ToSlice()...)...)

	fields := make([]zap.Field, 0, all.Len())
	replacements := make([]string, 0, all.Len()*2)
	for iter := all.Iter(); iter.Next(); {
		kv := iter.Attribute()
		key := string(kv.Key)
		fields = append(fields, zap.String(key, kv.Value.Emit()))
		replacements = append(replacements, "<"+key+">", kv.Value.Emit())
	}

	if len(replacements) > 0 {
		message = strings.NewReplacer(replacements...).Replace(message)
	}

	if ce := l.logger.Check(level, message); ce != nil {
		ce.Write(fields...)
	}
}
