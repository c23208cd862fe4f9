// Package handler provides HTTP handlers for the finrouter service.
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/finrouter/internal/finrouter/biz"
	"github.com/kart-io/finrouter/internal/finrouter/metrics"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/utils/id"
	"github.com/kart-io/finrouter/pkg/utils/response"
	"github.com/kart-io/finrouter/pkg/utils/validator"
)

// Handler handles finrouter HTTP requests.
type Handler struct {
	service biz.Service
	metrics *metrics.Metrics
	checks  []Check
}

// Check is a dependency probe reported by /readyz.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// readyTimeout bounds all probes of one /readyz request.
const readyTimeout = 3 * time.Second

// NewHandler creates a new Handler.
func NewHandler(service biz.Service, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.Get()
	}
	return &Handler{service: service, metrics: m}
}

// QueryRequest represents a query request.
type QueryRequest struct {
	Question string `json:"question" validate:"required,notblank"`
	// Handler forces a route: structured, retrieval or web (sql and rag are accepted).
	Handler   string `json:"handler" validate:"omitempty,routename"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
	// UseMemory defaults to true.
	UseMemory *bool `json:"use_memory"`
}

// QueryResponse is the agent result plus the session it ran in.
type QueryResponse struct {
	*biz.AgentResult
	SessionID string `json:"session_id"`
	Label     string `json:"label"`
	SQL       string `json:"sql,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// Query routes and answers a question. Handler failures are reported inside
// the result; the envelope only fails on malformed requests.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBindOrValidation(c, err)
		return
	}
	if verr := validator.Struct(&req); verr != nil {
		response.NewWriter(c).FailWithValidation(verr)
		return
	}

	q := biz.Query{
		Text:      req.Question,
		SessionID: req.SessionID,
		UseMemory: req.UseMemory == nil || *req.UseMemory,
	}
	if q.SessionID == "" {
		q.SessionID = id.NewUUID()
	}
	if req.Handler != "" {
		route, err := biz.ParseRoute(req.Handler)
		if err != nil {
			response.Fail(c, apierrors.ErrInvalidParam.WithMessage(err.Error()))
			return
		}
		q.Override = &route
	}

	result := h.service.Query(c.Request.Context(), q)
	resp := &QueryResponse{
		AgentResult: result,
		SessionID:   q.SessionID,
		Label:       result.Label(),
		SQL:         result.SQL(),
	}
	if result.Err != nil {
		e := apierrors.FromError(result.Err)
		resp.Error = e.Detail()
		resp.ErrorCode = e.Code
	}
	response.OK(c, resp)
}

// IngestRequest represents an ingest request.
type IngestRequest struct {
	// Directory is a subdirectory of the configured documents directory.
	// Empty selects the documents directory itself.
	Directory   string `json:"directory"`
	ForceReload bool   `json:"force_reload"`
	Generation  string `json:"generation" validate:"omitempty,max=64"`
}

// Ingest indexes the documents directory.
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBindOrValidation(c, err)
		return
	}
	if verr := validator.Struct(&req); verr != nil {
		response.NewWriter(c).FailWithValidation(verr)
		return
	}
	if err := biz.CheckSubdir(req.Directory); err != nil {
		response.FailWithError(c, err)
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), req.Directory, biz.IngestOptions{
		ForceReload: req.ForceReload,
		Generation:  req.Generation,
	})
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, result)
}

// History returns the turns of a session.
func (h *Handler) History(c *gin.Context) {
	sessionID := c.Param("id")
	turns, err := h.service.History(c.Request.Context(), sessionID)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	if turns == nil {
		turns = []biz.Turn{}
	}
	response.OK(c, gin.H{"session_id": sessionID, "turns": turns})
}

// ClearMemory truncates the memory of a session.
func (h *Handler) ClearMemory(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.service.ClearMemory(c.Request.Context(), sessionID); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": sessionID, "cleared": true})
}

// StatsResponse is the index and session statistics plus query counters.
type StatsResponse struct {
	*biz.Stats
	Metrics map[string]interface{} `json:"metrics"`
}

// Stats returns index and session statistics.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, &StatsResponse{Stats: stats, Metrics: h.metrics.Stats()})
}

// Metrics serves the Prometheus exposition.
func (h *Handler) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// WithChecks adds readiness probes.
func (h *Handler) WithChecks(checks ...Check) *Handler {
	h.checks = append(h.checks, checks...)
	return h
}

// Readyz runs every probe and answers 503 with the per-dependency results
// when any of them fails.
func (h *Handler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for _, chk := range h.checks {
		if err := chk.Probe(ctx); err != nil {
			results[chk.Name] = err.Error()
			ready = false
			continue
		}
		results[chk.Name] = "ok"
	}

	if !ready {
		response.NewWriter(c).FailWithData(apierrors.ErrServiceUnavailable, results)
		return
	}
	response.OK(c, results)
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}
