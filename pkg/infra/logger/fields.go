// Package logger 在 context 中携带请求级日志字段（request_id、session_id、
// route、trace_id 等），GetLogger 返回附带这些字段的 kart-io/logger 实例。
package logger

import (
	"context"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{ name string }

var (
	fieldsKey = ctxKey{"fields"}
	loggerKey = ctxKey{"logger"}
)

// pairs 为 key/value 交替的切片，视为不可变：写入时总是复制。
type pairs []any

func fieldsOf(ctx context.Context) pairs {
	p, _ := ctx.Value(fieldsKey).(pairs)
	return p
}

// with 复制已有字段后写入；已存在的 key 原位覆盖，保持首次出现的顺序。
func (p pairs) with(kv ...any) pairs {
	out := make(pairs, len(p), len(p)+len(kv))
	copy(out, p)

next:
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		for j := 0; j < len(out); j += 2 {
			if out[j] == key {
				out[j+1] = kv[i+1]
				continue next
			}
		}
		out = append(out, key, kv[i+1])
	}
	return out
}

// WithFields stores key/value pairs on ctx. A trailing key without value
// and non-string keys are dropped.
func WithFields(ctx context.Context, keysAndValues ...any) context.Context {
	if len(keysAndValues) < 2 {
		return ctx
	}
	return context.WithValue(ctx, fieldsKey, fieldsOf(ctx).with(keysAndValues...))
}

func withNonEmpty(ctx context.Context, key, value string) context.Context {
	if value == "" {
		return ctx
	}
	return WithFields(ctx, key, value)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return withNonEmpty(ctx, "request_id", id)
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return withNonEmpty(ctx, "session_id", id)
}

// WithRoute records the handler the query was dispatched to.
func WithRoute(ctx context.Context, route string) context.Context {
	return withNonEmpty(ctx, "route", route)
}

// ExtractOpenTelemetryFields copies trace_id and span_id of the active span.
func ExtractOpenTelemetryFields(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ctx
	}
	return WithFields(ctx,
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	)
}

// GetContextFields returns the stored pairs, or nil.
func GetContextFields(ctx context.Context) []any {
	p := fieldsOf(ctx)
	if len(p) == 0 {
		return nil
	}
	return append([]any(nil), p...)
}

// GetLogger returns the logger stored by WithLogger, otherwise the global
// logger with the context fields attached.
func GetLogger(ctx context.Context) core.Logger {
	if l, ok := ctx.Value(loggerKey).(core.Logger); ok {
		return l
	}
	if fields := GetContextFields(ctx); fields != nil {
		return logger.Global().With(fields...)
	}
	return logger.Global()
}

func WithLogger(ctx context.Context, l core.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}
