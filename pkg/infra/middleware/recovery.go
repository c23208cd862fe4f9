package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"

	infralogger "github.com/kart-io/finrouter/pkg/infra/logger"
	"github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/utils/response"
)

// Recovery turns a handler panic into an ErrInternal envelope. onPanic, when
// set, runs after the stack is logged and before the response is written.
func Recovery(onPanic func(c *gin.Context, recovered any)) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			infralogger.GetLogger(c.Request.Context()).Errorw("handler panicked",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			if onPanic != nil {
				onPanic(c, r)
			}
			response.NewWriter(c).Abort(errors.ErrInternal.WithMessagef("panic: %v", r))
		}()
		c.Next()
	}
}
