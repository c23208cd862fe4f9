package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/finrouter/internal/finrouter/biz"
	"github.com/kart-io/finrouter/internal/finrouter/handler"
	"github.com/kart-io/finrouter/internal/finrouter/metrics"
	"github.com/kart-io/finrouter/pkg/infra/server"
	httpopts "github.com/kart-io/finrouter/pkg/options/http"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

type fakeService struct {
	lastQuery  biz.Query
	lastIngest biz.IngestOptions
	lastDir    string
	result     *biz.AgentResult
	cleared    string
}

func (f *fakeService) Query(_ context.Context, q biz.Query) *biz.AgentResult {
	f.lastQuery = q
	if f.result != nil {
		return f.result
	}
	return &biz.AgentResult{
		Answer:      "answer",
		HandlerUsed: biz.RouteRetrieval,
		Decision:    biz.RoutingDecision{Route: biz.RouteRetrieval, Source: biz.SourceClassifier},
		Sources:     []biz.SourceRef{biz.DocumentSource("travel_policy.txt")},
	}
}

func (f *fakeService) Ingest(_ context.Context, dir string, opts biz.IngestOptions) (*biz.IngestResult, error) {
	f.lastDir, f.lastIngest = dir, opts
	if dir == "missing" {
		return nil, apierrors.ErrIndexFailure.WithMessage("documents directory missing")
	}
	return &biz.IngestResult{Chunks: 3, Generation: "01J0000000000000000000000A"}, nil
}

func (f *fakeService) History(_ context.Context, sessionID string) ([]biz.Turn, error) {
	if sessionID != "s1" {
		return nil, apierrors.ErrSessionNotFound
	}
	return []biz.Turn{{Question: "q", Answer: "a"}}, nil
}

func (f *fakeService) ClearMemory(_ context.Context, sessionID string) error {
	f.cleared = sessionID
	return nil
}

func (f *fakeService) Stats(context.Context) (*biz.Stats, error) {
	return &biz.Stats{Chunks: 3, Generation: "g1", Collection: "policies", Store: "memory", Sessions: 2}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *fakeService) {
	t.Helper()
	opts := httpopts.NewOptions()
	opts.Mode = gin.TestMode

	mgr := server.NewManager(opts)
	svc := &fakeService{}
	require.NoError(t, Register(mgr, handler.NewHandler(svc, metrics.New())))
	return mgr.HTTPServer().Engine(), svc
}

func do(t *testing.T, engine *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestQuery(t *testing.T) {
	engine, svc := setup(t)

	w, env := do(t, engine, http.MethodPost, "/v1/query", `{"question":"What's our travel policy?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "answer", data["answer"])
	assert.Equal(t, "RETRIEVAL", data["handler_used"])
	assert.Equal(t, "Policy Documents (RAG)", data["label"])
	assert.NotEmpty(t, data["session_id"])

	assert.True(t, svc.lastQuery.UseMemory)
	assert.Nil(t, svc.lastQuery.Override)
	assert.Equal(t, data["session_id"], svc.lastQuery.SessionID)
}

func TestQueryOverrideAndSession(t *testing.T) {
	engine, svc := setup(t)

	w, _ := do(t, engine, http.MethodPost, "/v1/query",
		`{"question":"Show revenue","handler":"SQL","session_id":"s1","use_memory":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, svc.lastQuery.Override)
	assert.Equal(t, biz.RouteStructured, *svc.lastQuery.Override)
	assert.Equal(t, "s1", svc.lastQuery.SessionID)
	assert.False(t, svc.lastQuery.UseMemory)
}

func TestQueryReportsHandlerError(t *testing.T) {
	engine, svc := setup(t)
	svc.result = &biz.AgentResult{
		Answer:      apierrors.ErrSearchNotConfigured.MessageEN,
		HandlerUsed: biz.RouteWeb,
		Sources:     []biz.SourceRef{},
		Err:         apierrors.ErrSearchNotConfigured,
	}

	w, env := do(t, engine, http.MethodPost, "/v1/query", `{"question":"Latest inflation news"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.EqualValues(t, apierrors.ErrSearchNotConfigured.Code, data["error_code"])
	assert.Contains(t, data["answer"], "TAVILY_API_KEY")
}

func TestQueryValidation(t *testing.T) {
	engine, _ := setup(t)

	tests := []struct {
		name string
		body string
	}{
		{"blank question", `{"question":"   "}`},
		{"missing question", `{}`},
		{"unknown handler", `{"question":"q","handler":"graph"}`},
		{"malformed", `{"question":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, engine, http.MethodPost, "/v1/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotZero(t, env.Code)
		})
	}
}

func TestIngest(t *testing.T) {
	engine, svc := setup(t)

	w, env := do(t, engine, http.MethodPost, "/v1/ingest", `{"force_reload":true,"generation":"g7"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, biz.IngestOptions{ForceReload: true, Generation: "g7"}, svc.lastIngest)
	assert.Empty(t, svc.lastDir)

	var res biz.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 3, res.Chunks)

	w, env = do(t, engine, http.MethodPost, "/v1/ingest", `{"directory":"missing"}`)
	assert.Equal(t, apierrors.ErrIndexFailure.HTTPStatus(), w.Code)
	assert.Equal(t, apierrors.ErrIndexFailure.Code, env.Code)
}

func TestIngestRejectsDirectoryOutsideDocuments(t *testing.T) {
	engine, svc := setup(t)

	for _, dir := range []string{"/home/x", "../etc", "2024/../../etc"} {
		t.Run(dir, func(t *testing.T) {
			svc.lastDir = ""
			w, env := do(t, engine, http.MethodPost, "/v1/ingest", `{"directory":"`+dir+`"}`)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apierrors.ErrInvalidParam.Code, env.Code)
			assert.Empty(t, svc.lastDir)
		})
	}
}

func TestSessions(t *testing.T) {
	engine, svc := setup(t)

	w, env := do(t, engine, http.MethodGet, "/v1/sessions/s1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"question":"q"`)

	w, env = do(t, engine, http.MethodGet, "/v1/sessions/nope/history", "")
	assert.Equal(t, apierrors.ErrSessionNotFound.HTTPStatus(), w.Code)
	assert.Equal(t, apierrors.ErrSessionNotFound.Code, env.Code)

	w, _ = do(t, engine, http.MethodDelete, "/v1/sessions/s1/memory", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", svc.cleared)
}

func TestStatsMetricsHealthz(t *testing.T) {
	engine, _ := setup(t)

	w, env := do(t, engine, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.EqualValues(t, 3, stats["chunks"])
	assert.Equal(t, "policies", stats["collection"])
	assert.Contains(t, stats, "metrics")

	w, _ = do(t, engine, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "finrouter_")

	w, _ = do(t, engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyz(t *testing.T) {
	opts := httpopts.NewOptions()
	opts.Mode = gin.TestMode
	mgr := server.NewManager(opts)

	dbUp := true
	h := handler.NewHandler(&fakeService{}, metrics.New()).WithChecks(
		handler.Check{Name: "database", Probe: func(context.Context) error {
			if dbUp {
				return nil
			}
			return errors.New("connection refused")
		}},
	)
	require.NoError(t, Register(mgr, h))
	engine := mgr.HTTPServer().Engine()

	w, env := do(t, engine, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"database":"ok"}`, string(env.Data))

	dbUp = false
	w, env = do(t, engine, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, apierrors.ErrServiceUnavailable.Code, env.Code)
	assert.JSONEq(t, `{"database":"connection refused"}`, string(env.Data))
}
