package telemetry

import (
	"context"
)

type ctxKey string

const disabledTracingCtxKey = ctxKey("disabled-tracing")

// ContextWithDisabledTracing disables spans for all operations using the context, for example in a hot loop.
func ContextWithDisabledTracing(ctx context.Context) context.Context {
	return context.WithValue(ctx, disabledTracingCtxKey, true)
}

func IsTracingDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(disabledTracingCtxKey).(bool)
	return v
}
