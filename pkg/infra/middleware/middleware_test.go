package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/kart-io/finrouter/pkg/infra/logger"
	"github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/utils/id"
	"github.com/kart-io/finrouter/pkg/utils/json"
	"github.com/kart-io/finrouter/pkg/utils/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDGeneratesUUID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())

	var fromCtx, fromGin string
	var fields []interface{}
	r.GET("/test", func(c *gin.Context) {
		fromCtx = GetRequestID(c.Request.Context())
		fromGin = c.GetString(response.ContextKeyRequestID)
		fields = infralogger.GetContextFields(c.Request.Context())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	requestID := w.Header().Get(HeaderXRequestID)
	assert.True(t, id.IsValidUUID(requestID))
	assert.Equal(t, requestID, fromCtx)
	assert.Equal(t, requestID, fromGin)
	assert.Equal(t, []interface{}{"request_id", requestID}, fields)
}

func TestRequestIDPreservesExistingID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(_ *gin.Context) {})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderXRequestID, "existing-request-id-12345")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "existing-request-id-12345", w.Header().Get(HeaderXRequestID))
}

func TestRequestIDCustomHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(WithHeader("X-Custom-Request-ID"), WithGenerator(func() string { return "fixed" })))
	r.GET("/test", func(_ *gin.Context) {})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, "fixed", w.Header().Get("X-Custom-Request-ID"))
	assert.Empty(t, w.Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	var handled bool
	r := gin.New()
	r.Use(RequestID(), Recovery(func(_ *gin.Context, _ any) { handled = true }))
	r.GET("/panic", func(_ *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.True(t, handled)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrInternal.Code, resp.Code)
	assert.Contains(t, resp.Message, "kaboom")
	assert.Equal(t, w.Header().Get(HeaderXRequestID), resp.RequestID)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(time.Minute, "/skip"))

	var hasDeadline, skippedHasDeadline bool
	r.GET("/work", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
	})
	r.GET("/skip", func(c *gin.Context) {
		_, skippedHasDeadline = c.Request.Context().Deadline()
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/work", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/skip", nil))

	assert.True(t, hasDeadline)
	assert.False(t, skippedHasDeadline)
}

func TestLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Logger("/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
