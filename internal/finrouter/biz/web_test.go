package biz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/websearch"
)

func TestWebHandlerNotConfigured(t *testing.T) {
	chat := replyWith("unused")
	for _, searcher := range []websearch.Searcher{nil, &fakeSearcher{err: websearch.ErrNotConfigured}} {
		res := NewWebHandler(searcher, chat, 0).Handle(context.Background(), "Latest news about inflation")
		assert.ErrorIs(t, res.Err, apierrors.ErrSearchNotConfigured)
		assert.Equal(t, "Web search is not configured. Please add TAVILY_API_KEY to your .env file. You can get a free API key at https://tavily.com", res.Answer)
		assert.Empty(t, res.Sources)
	}
	assert.Empty(t, chat.Calls())
}

func TestWebHandlerSearchFailure(t *testing.T) {
	searcher := &fakeSearcher{err: fmt.Errorf("tavily search: %w", errBoom)}
	res := NewWebHandler(searcher, replyWith("unused"), 0).Handle(context.Background(), "q")

	assert.ErrorIs(t, res.Err, apierrors.ErrSearchFailure)
	assert.NotErrorIs(t, res.Err, apierrors.ErrSearchNotConfigured)
	assert.Equal(t, "I encountered an error while searching: tavily search: boom", res.Answer)
}

func TestWebHandlerNoHits(t *testing.T) {
	chat := replyWith("unused")
	res := NewWebHandler(&fakeSearcher{}, chat, 0).Handle(context.Background(), "q")
	require.NoError(t, res.Err)
	assert.Equal(t, NoWebResultsAnswer, res.Answer)
	assert.Empty(t, chat.Calls())
}

func TestWebHandlerSummarisesHits(t *testing.T) {
	searcher := &fakeSearcher{hits: []websearch.Hit{
		{Title: "Inflation cools", URL: "https://example.com/a", Content: "CPI fell to 2.9%."},
		{URL: "https://example.com/b"},
	}}
	chat := replyWith("Inflation is easing [1].")
	res := NewWebHandler(searcher, chat, 0).Handle(context.Background(), "Latest news about inflation")

	require.NoError(t, res.Err)
	assert.Equal(t, "Inflation is easing [1].", res.Answer)
	assert.Equal(t, DefaultMaxResults, searcher.max)
	assert.Equal(t, []SourceRef{
		WebSource("Inflation cools", "https://example.com/a"),
		WebSource("No title", "https://example.com/b"),
	}, res.Sources)
	assert.Len(t, res.Hits, 2)

	calls := chat.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].prompt,
		"[1] Inflation cools\nURL: https://example.com/a\nContent: CPI fell to 2.9%.\n\n[2] No title\nURL: https://example.com/b\nContent: No content\n")
	assert.Equal(t, answerMaxTokens, calls[0].opts.MaxTokens)
}

func TestWebHandlerGenerationFailure(t *testing.T) {
	searcher := &fakeSearcher{hits: []websearch.Hit{{Title: "t", URL: "u", Content: "c"}}}
	res := NewWebHandler(searcher, failingChat(), 3).Handle(context.Background(), "q")

	assert.ErrorIs(t, res.Err, apierrors.ErrGenerationFailure)
	assert.Contains(t, res.Answer, "I encountered an error: ")
	assert.Equal(t, 3, searcher.max)
	assert.Len(t, res.Hits, 1)
}
