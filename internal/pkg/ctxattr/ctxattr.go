// Package ctxattr stores OpenTelemetry attributes in the context.
// The logger adds them to each record, see the log package.
package ctxattr

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type ctxKey string

const attributesCtxKey = ctxKey("attributes")

// ContextWith returns a new context with the attributes merged to the existing ones.
// A new value of an existing key replaces the old one.
func ContextWith(ctx context.Context, attrs ...attribute.KeyValue) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	existing := Attributes(ctx).ToSlice()
	merged := attribute.NewSet(append(existing, attrs...)...)
	return context.WithValue(ctx, attributesCtxKey, &merged)
}

// Attributes returns all attributes stored in the context.
func Attributes(ctx context.Context) *attribute.Set {
	if set, ok := ctx.Value(attributesCtxKey).(*attribute.Set); ok {
		return set
	}
	empty := attribute.NewSet()
	return &empty
}
