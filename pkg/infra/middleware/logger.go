package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/kart-io/finrouter/pkg/infra/logger"
)

// Logger writes one access line per request, at error level for 5xx.
func Logger(skipPaths ...string) gin.HandlerFunc {
	skip := newPathSet(skipPaths)

	return func(c *gin.Context) {
		if skip.has(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", status,
			"client_ip", c.ClientIP(),
			"bytes", c.Writer.Size(),
			"latency_ms", elapsed.Milliseconds(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			kv = append(kv, "errors", errs.String())
		}

		log := infralogger.GetLogger(c.Request.Context())
		if status >= 500 {
			log.Errorw("request served", kv...)
		} else {
			log.Infow("request served", kv...)
		}
	}
}
