package biz

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kart-io/finrouter/internal/finrouter/memory"
	"github.com/kart-io/finrouter/internal/finrouter/store"
	"github.com/kart-io/finrouter/pkg/llm"
	"github.com/kart-io/finrouter/pkg/websearch"
)

var errBoom = errors.New("boom")

type call struct {
	prompt string
	opts   llm.GenerateOptions
}

// fakeChat answers by prompt through reply; a nil reply always fails.
type fakeChat struct {
	mu    sync.Mutex
	reply func(prompt string) (string, error)
	calls []call
}

func replyWith(text string) *fakeChat {
	return &fakeChat{reply: func(string) (string, error) { return text, nil }}
}

func failingChat() *fakeChat {
	return &fakeChat{}
}

func (f *fakeChat) Name() string { return "fake" }

func (f *fakeChat) Generate(_ context.Context, prompt string, opts llm.GenerateOptions) (*llm.GenerateResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{prompt: prompt, opts: opts})
	f.mu.Unlock()

	if f.reply == nil {
		return nil, llm.NewGatewayError("fake", "generate", errBoom)
	}
	text, err := f.reply(prompt)
	if err != nil {
		return nil, llm.NewGatewayError("fake", "generate", err)
	}
	return &llm.GenerateResponse{Text: text, Model: "fake-model"}, nil
}

func (f *fakeChat) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// keywordEmbedder embeds text as keyword counts plus a bias dimension.
type keywordEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

var embedKeywords = []string{"travel", "expense", "revenue"}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(embedKeywords)+1)
	for i, k := range embedKeywords {
		v[i] = float32(strings.Count(lower, k))
	}
	v[len(embedKeywords)] = 0.1
	return v
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, texts)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *keywordEmbedder) Name() string { return "keyword" }

func (e *keywordEmbedder) Batches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches)
}

const embedDim = 4

type fakeSearcher struct {
	hits  []websearch.Hit
	err   error
	calls int
	max   int
}

func (s *fakeSearcher) Name() string { return "fake" }

func (s *fakeSearcher) Search(_ context.Context, _ string, maxResults int) ([]websearch.Hit, error) {
	s.calls++
	s.max = maxResults
	return s.hits, s.err
}

var policyDocs = []Document{
	{Name: "travel_policy.txt", Stem: "travel_policy", Text: "Travel must be booked in economy class. Travel over $5,000 needs VP approval."},
	{Name: "expense_policy.txt", Stem: "expense_policy", Text: "Any expense over $10,000 requires CFO approval. Expense reports are due monthly."},
}

// newIndexedStore returns a memory store holding policyDocs.
func newIndexedStore(emb *keywordEmbedder) *store.MemoryStore {
	vs := store.NewMemoryStore(embedDim)
	idx := NewIndexer(vs, emb, nil)
	if _, err := idx.Ingest(context.Background(), policyDocs, IngestOptions{}); err != nil {
		panic(err)
	}
	return vs
}

func newTestRetriever(vs store.VectorStore, emb llm.EmbeddingProvider, chat llm.ChatProvider) *Retriever {
	return NewRetriever(vs, emb, chat, memory.NewLocalStore(16, 0), 0)
}
