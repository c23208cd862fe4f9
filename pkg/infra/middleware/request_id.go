package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	infralogger "github.com/kart-io/finrouter/pkg/infra/logger"
	"github.com/kart-io/finrouter/pkg/utils/id"
	"github.com/kart-io/finrouter/pkg/utils/response"
)

type requestIDConfig struct {
	header   string
	generate func() string
}

// RequestIDOption customizes RequestID.
type RequestIDOption func(*requestIDConfig)

// WithHeader reads and echoes the id under a header other than X-Request-ID.
func WithHeader(name string) RequestIDOption {
	return func(c *requestIDConfig) { c.header = name }
}

// WithGenerator replaces the UUID v4 generator.
func WithGenerator(fn func() string) RequestIDOption {
	return func(c *requestIDConfig) { c.generate = fn }
}

// RequestID reuses the inbound request id or generates one, echoes it on the
// response and stores it in the gin context, the request context and the
// context logger fields. trace_id/span_id are attached when a span is active.
func RequestID(opts ...RequestIDOption) gin.HandlerFunc {
	cfg := requestIDConfig{header: HeaderXRequestID, generate: id.NewUUID}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		rid := c.GetHeader(cfg.header)
		if rid == "" {
			rid = cfg.generate()
		}
		c.Header(cfg.header, rid)
		c.Set(response.ContextKeyRequestID, rid)

		ctx := context.WithValue(c.Request.Context(), requestIDKey{}, rid)
		ctx = infralogger.ExtractOpenTelemetryFields(infralogger.WithRequestID(ctx, rid))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
