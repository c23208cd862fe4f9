package biz

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/finrouter/internal/finrouter/memory"
	"github.com/kart-io/finrouter/internal/finrouter/store"
	"github.com/kart-io/finrouter/pkg/llm"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

func TestRetrieverStateless(t *testing.T) {
	emb := &keywordEmbedder{}
	vs := newIndexedStore(emb)
	chat := replyWith("  Expenses over $10,000 need CFO approval.  ")
	r := newTestRetriever(vs, emb, chat)

	ans, err := r.Answer(context.Background(), "What is the expense approval threshold?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Expenses over $10,000 need CFO approval.", ans.Answer)
	require.NotEmpty(t, ans.Chunks)
	assert.Equal(t, "expense_policy.txt", ans.Chunks[0].Source)
	assert.Equal(t, []SourceRef{DocumentSource("expense_policy.txt"), DocumentSource("travel_policy.txt")}, ans.Sources)

	calls := chat.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, answerMaxTokens, calls[0].opts.MaxTokens)
	assert.Contains(t, calls[0].prompt, "From expense_policy.txt:\nAny expense over $10,000")
	assert.Contains(t, calls[0].prompt, "\n\n---\n\n")
	assert.NotContains(t, calls[0].prompt, "Conversation History:")
}

func TestRetrieverEmptyIndexSkipsGeneration(t *testing.T) {
	emb := &keywordEmbedder{}
	chat := replyWith("unused")
	r := newTestRetriever(store.NewMemoryStore(embedDim), emb, chat)

	ans, err := r.Query(context.Background(), "What's our travel policy?", "s1", true)
	require.NoError(t, err)
	assert.Equal(t, NoDocumentsAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, chat.Calls())

	// 空结果不写入记忆
	turns, err := r.History(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRetrieverConversational(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	vs := newIndexedStore(emb)
	chat := &fakeChat{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Standalone question:") {
			return "What is the travel approval threshold?", nil
		}
		return "answer", nil
	}}
	r := newTestRetriever(vs, emb, chat)

	_, err := r.Query(ctx, "What's the expense approval threshold?", "s1", true)
	require.NoError(t, err)
	// 首轮没有历史，不做问题改写
	require.Len(t, chat.Calls(), 1)

	ans, err := r.Query(ctx, "What about travel?", "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "What is the travel approval threshold?", ans.StandaloneQuestion)
	assert.Equal(t, "travel_policy.txt", ans.Chunks[0].Source)

	calls := chat.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, condenseMaxTokens, calls[1].opts.MaxTokens)
	assert.Contains(t, calls[1].prompt, "Human: What's the expense approval threshold?\nAssistant: answer")
	assert.Contains(t, calls[1].prompt, "Follow Up Input: What about travel?")
	assert.Contains(t, calls[2].prompt, "Conversation History:")
	assert.Contains(t, calls[2].prompt, "User Question: What about travel?")

	turns, err := r.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "What about travel?", turns[1].Question)
}

func TestRetrieverMemoryIsolationAfterClear(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	chat := replyWith("answer")
	r := newTestRetriever(newIndexedStore(emb), emb, chat)

	_, err := r.Query(ctx, "expense threshold?", "s1", true)
	require.NoError(t, err)
	_, err = r.Query(ctx, "travel threshold?", "s2", true)
	require.NoError(t, err)

	require.NoError(t, r.ClearMemory(ctx, "s1"))

	turns, err := r.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
	turns, err = r.History(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	// 清空后的下一问不再改写
	before := len(chat.Calls())
	_, err = r.Query(ctx, "What about capital expenditures?", "s1", true)
	require.NoError(t, err)
	calls := chat.Calls()[before:]
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].prompt, "Conversation History:")

	// 索引不受影响
	count, err := r.store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestRetrieverStatelessIgnoresMemory(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	r := newTestRetriever(newIndexedStore(emb), emb, replyWith("answer"))

	_, err := r.Query(ctx, "expense threshold?", "s1", false)
	require.NoError(t, err)

	_, err = r.History(ctx, "s1")
	assert.ErrorIs(t, err, apierrors.ErrSessionNotFound)
	assert.Equal(t, 0, r.Sessions())
}

func TestRetrieverFailures(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	vs := newIndexedStore(emb)

	ans, err := newTestRetriever(vs, emb, failingChat()).Query(ctx, "expense?", "s1", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrGenerationFailure)
	assert.ErrorIs(t, err, llm.ErrGateway)
	assert.True(t, strings.HasPrefix(ans.Answer, "I encountered an error: "))
	assert.NotEmpty(t, ans.Chunks)

	ans, err = newTestRetriever(vs, &keywordEmbedder{err: errBoom}, replyWith("x")).Answer(ctx, "expense?", nil)
	assert.ErrorIs(t, err, apierrors.ErrEmbeddingFailure)
	assert.NotEmpty(t, ans.Answer)

	// 生成失败不记录对话
	r := newTestRetriever(vs, emb, failingChat())
	_, _ = r.Query(ctx, "expense?", "s9", true)
	turns, err := r.History(ctx, "s9")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRetrieverSerialisesSession(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	r := newTestRetriever(newIndexedStore(emb), emb, replyWith("answer"))
	conv := memory.NewConversation("shared")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Answer(ctx, "expense threshold?", conv)
		}()
	}
	wg.Wait()

	turns, err := conv.Turns(ctx)
	require.NoError(t, err)
	assert.Len(t, turns, 8)
}

func TestRetrieverClearDuringAnswer(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	started := make(chan struct{})
	release := make(chan struct{})
	chat := &fakeChat{reply: func(string) (string, error) {
		close(started)
		<-release
		return "answer built on stale history", nil
	}}
	r := newTestRetriever(newIndexedStore(emb), emb, chat)

	answered := make(chan error, 1)
	go func() {
		_, err := r.Query(ctx, "expense threshold?", "s1", true)
		answered <- err
	}()
	<-started

	cleared := make(chan error, 1)
	go func() { cleared <- r.ClearMemory(ctx, "s1") }()

	select {
	case <-cleared:
		t.Fatal("ClearMemory returned before the in-flight answer finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-answered)
	require.NoError(t, <-cleared)

	turns, err := r.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
