package biz

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/finrouter/internal/finrouter/memory"
	"github.com/kart-io/finrouter/internal/finrouter/store"
	"github.com/kart-io/finrouter/internal/finrouter/structured"
	"github.com/kart-io/finrouter/pkg/infra/pool"
	"github.com/kart-io/finrouter/pkg/llm"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/websearch"
)

type fakeTables struct {
	table *structured.Table
	sql   []string
}

func (f *fakeTables) Schema(context.Context) (string, error) {
	return "\nTable: companies\nColumns: name (TEXT), revenue (REAL)", nil
}

func (f *fakeTables) Execute(_ context.Context, sql string) (*structured.Table, error) {
	f.sql = append(f.sql, sql)
	return f.table, nil
}

type fixture struct {
	orch   *Orchestrator
	tables *fakeTables
	vs     *store.MemoryStore
	emb    *keywordEmbedder
}

// newFixture wires an orchestrator whose classifier uses classify and whose
// handlers use answer.
func newFixture(classify, answer llm.ChatProvider, searcher websearch.Searcher) *fixture {
	emb := &keywordEmbedder{}
	vs := newIndexedStore(emb)
	tables := &fakeTables{table: &structured.Table{
		Columns: []string{"name", "revenue"},
		Rows:    [][]any{{"Acme", 1200.5}, {"Globex", 800.0}},
	}}
	orch := NewOrchestrator(
		NewClassifier(classify),
		structured.NewHandler(tables, answer),
		NewRetriever(vs, emb, answer, memory.NewLocalStore(16, 0), 0),
		NewWebHandler(searcher, answer, 0),
	)
	return &fixture{orch: orch, tables: tables, vs: vs, emb: emb}
}

func TestOrchestratorFallbackToStructured(t *testing.T) {
	answer := &fakeChat{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "SQL query:") || strings.Contains(prompt, "SQLite") {
			return "```sql\nSELECT name, revenue FROM companies ORDER BY revenue DESC LIMIT 5;\n```", nil
		}
		return "Acme leads with 1200.5.", nil
	}}
	f := newFixture(failingChat(), answer, nil)

	res := f.orch.Handle(context.Background(), Query{Text: "Show top 5 companies by revenue"})
	require.NoError(t, res.Err)
	assert.Equal(t, RouteStructured, res.HandlerUsed)
	assert.Equal(t, RoutingDecision{Route: RouteStructured, Source: SourceFallback}, res.Decision)
	assert.Equal(t, "SQL Database", res.Label())
	assert.Equal(t, "SELECT name, revenue FROM companies ORDER BY revenue DESC LIMIT 5", res.SQL())
	assert.Equal(t, []string{res.SQL()}, f.tables.sql)
	assert.Equal(t, "Acme leads with 1200.5.", res.Answer)
	assert.NotNil(t, res.Sources)

	payload, ok := res.RawPayload.(*StructuredPayload)
	require.True(t, ok)
	assert.Equal(t, 2, payload.Table.Len())
}

func TestOrchestratorRoutesPolicyQuestion(t *testing.T) {
	f := newFixture(replyWith("RAG"), replyWith("CFO approval is required."), nil)

	res := f.orch.Handle(context.Background(), Query{Text: "What's our expense approval policy?", SessionID: "s1", UseMemory: true})
	require.NoError(t, res.Err)
	assert.Equal(t, RouteRetrieval, res.HandlerUsed)
	assert.Equal(t, SourceClassifier, res.Decision.Source)
	assert.Equal(t, "Policy Documents (RAG)", res.Label())
	require.NotEmpty(t, res.Sources)
	assert.Equal(t, DocumentSource("expense_policy.txt"), res.Sources[0])

	payload, ok := res.RawPayload.(*RetrievalPayload)
	require.True(t, ok)
	assert.NotEmpty(t, payload.Chunks)

	turns, err := f.orch.Retriever().History(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestOrchestratorWebNotConfigured(t *testing.T) {
	f := newFixture(replyWith("WEB"), replyWith("unused"), nil)

	res := f.orch.Handle(context.Background(), Query{Text: "Latest news about inflation"})
	assert.Equal(t, RouteWeb, res.HandlerUsed)
	assert.ErrorIs(t, res.Err, apierrors.ErrSearchNotConfigured)
	assert.NotEmpty(t, res.Answer)
	assert.Empty(t, res.Sources)
}

func TestOrchestratorOverrideSkipsClassifier(t *testing.T) {
	classify := replyWith("SQL")
	searcher := &fakeSearcher{hits: []websearch.Hit{{Title: "t", URL: "https://example.com", Content: "c"}}}
	f := newFixture(classify, replyWith("web answer"), searcher)

	route := RouteWeb
	res := f.orch.Handle(context.Background(), Query{Text: "Show revenue", Override: &route})
	require.NoError(t, res.Err)
	assert.Equal(t, RoutingDecision{Route: RouteWeb, Source: SourceOverride}, res.Decision)
	assert.Equal(t, []SourceRef{WebSource("t", "https://example.com")}, res.Sources)
	assert.Empty(t, classify.Calls())
	assert.Equal(t, 1, searcher.calls)
}

func TestOrchestratorUnknownRoute(t *testing.T) {
	f := newFixture(replyWith("SQL"), replyWith("unused"), nil)

	route := Route(99)
	res := f.orch.Handle(context.Background(), Query{Text: "anything", Override: &route})
	assert.Equal(t, RouteNone, res.HandlerUsed)
	assert.Equal(t, "None", res.Label())
	assert.Equal(t, UnknownHandlerAnswer, res.Answer)
	assert.ErrorIs(t, res.Err, apierrors.ErrUnknownHandler)
}

func TestOrchestratorHandlerErrorPassesThrough(t *testing.T) {
	f := newFixture(replyWith("SQL"), failingChat(), nil)

	res := f.orch.Handle(context.Background(), Query{Text: "Show revenue"})
	assert.Equal(t, RouteStructured, res.HandlerUsed)
	assert.ErrorIs(t, res.Err, apierrors.ErrGenerationFailure)
	assert.True(t, strings.HasPrefix(res.Answer, "I encountered an error: "))
}

func TestOrchestratorWithPool(t *testing.T) {
	p, err := pool.NewPool(pool.QueryPool, pool.DefaultQueryPoolConfig())
	require.NoError(t, err)
	defer p.Release()

	f := newFixture(replyWith("RAG"), replyWith("pooled"), nil)
	f.orch.WithPool(p)

	res := f.orch.Handle(context.Background(), Query{Text: "travel policy?"})
	require.NoError(t, res.Err)
	assert.Equal(t, "pooled", res.Answer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = f.orch.Handle(ctx, Query{Text: "travel policy?"})
	assert.Error(t, res.Err)
	assert.True(t, strings.HasPrefix(res.Answer, "I encountered an error: "))
}

func TestAgentResultJSON(t *testing.T) {
	res := &AgentResult{
		Answer:      "a",
		HandlerUsed: RouteWeb,
		Decision:    RoutingDecision{Route: RouteWeb, Source: SourceOverride},
		Sources:     []SourceRef{WebSource("t", "u")},
		Err:         apierrors.ErrSearchFailure,
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"answer": "a",
		"handler_used": "WEB",
		"decision": {"route": "WEB", "source": "OVERRIDE"},
		"sources": [{"kind": "web", "title": "t", "url": "u"}]
	}`, string(data))
}

func TestRouterService(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc1.txt"), []byte("Travel note."), 0o600))

	f := newFixture(replyWith("RAG"), replyWith("ok"), nil)
	svc := NewRouterService(f.orch, NewIndexer(f.vs, f.emb, nil), f.vs, &ServiceConfig{DocumentsDir: dir, Collection: "policies"})

	// 已有索引时跳过
	res, err := svc.Ingest(ctx, "", IngestOptions{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 2, res.Chunks)

	res, err = svc.Ingest(ctx, "", IngestOptions{ForceReload: true, Generation: "g2"})
	require.NoError(t, err)
	assert.Equal(t, &IngestResult{Chunks: 1, Generation: "g2"}, res)

	_, err = svc.Ingest(ctx, "missing", IngestOptions{ForceReload: true})
	assert.ErrorIs(t, err, apierrors.ErrIndexFailure)

	out := svc.Query(ctx, Query{Text: "travel?", SessionID: "s1", UseMemory: true})
	require.NoError(t, out.Err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Chunks: 1, Generation: "g2", Collection: "policies", Store: "memory", Sessions: 1}, stats)

	turns, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
	require.NoError(t, svc.ClearMemory(ctx, "s1"))
	turns, err = svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRouterServiceIngestStaysInDocumentsDir(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	root := filepath.Join(base, "docs")
	outside := filepath.Join(base, "private")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024"), 0o700))
	require.NoError(t, os.MkdirAll(outside, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024", "travel.txt"), []byte("Travel note."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("Secret."), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	f := newFixture(replyWith("RAG"), replyWith("ok"), nil)
	svc := NewRouterService(f.orch, NewIndexer(f.vs, f.emb, nil), f.vs, &ServiceConfig{DocumentsDir: root, Collection: "policies"})

	for _, dir := range []string{outside, "../private", "2024/../../private", "link"} {
		_, err := svc.Ingest(ctx, dir, IngestOptions{ForceReload: true})
		assert.ErrorIs(t, err, apierrors.ErrInvalidParam, dir)
	}
	n, err := f.vs.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	res, err := svc.Ingest(ctx, "2024", IngestOptions{ForceReload: true, Generation: "g3"})
	require.NoError(t, err)
	assert.Equal(t, &IngestResult{Chunks: 1, Generation: "g3"}, res)
}
