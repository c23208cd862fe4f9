package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/finrouter/internal/finrouter/metrics"
	"github.com/kart-io/finrouter/pkg/llm"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/websearch"
)

// NoWebResultsAnswer 搜索无结果时的回答。
const NoWebResultsAnswer = "I couldn't find any relevant information on the web for your query."

// DefaultMaxResults 每个问题请求的搜索结果数。
const DefaultMaxResults = 5

// WebResult 一次网络搜索问答的结果。
type WebResult struct {
	Answer  string
	Sources []SourceRef
	Hits    []websearch.Hit
	Err     error
}

// WebHandler 基于实时网络搜索结果回答问题。
type WebHandler struct {
	searcher   websearch.Searcher
	chat       llm.ChatProvider
	maxResults int
}

// NewWebHandler 创建网络搜索处理器，searcher 为 nil 时视为未配置。
func NewWebHandler(searcher websearch.Searcher, chat llm.ChatProvider, maxResults int) *WebHandler {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &WebHandler{searcher: searcher, chat: chat, maxResults: maxResults}
}

// Handle 搜索问题并总结结果。
func (h *WebHandler) Handle(ctx context.Context, question string) *WebResult {
	if h.searcher == nil {
		metrics.Get().RecordSearch(websearch.ErrNotConfigured)
		return notConfigured()
	}

	hits, err := h.searcher.Search(ctx, question, h.maxResults)
	metrics.Get().RecordSearch(err)
	if err != nil {
		if errors.Is(err, websearch.ErrNotConfigured) {
			return notConfigured()
		}
		logger.Warnw("web search failed", "provider", h.searcher.Name(), "error", err.Error())
		return &WebResult{
			Answer: fmt.Sprintf("I encountered an error while searching: %v", err),
			Err:    apierrors.ErrSearchFailure.WithCause(err),
		}
	}
	if len(hits) == 0 {
		return &WebResult{Answer: NoWebResultsAnswer}
	}

	resp, err := h.chat.Generate(ctx, webPrompt(formatHits(hits), question), llm.GenerateOptions{
		MaxTokens:   answerMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		e := apierrors.ErrGenerationFailure.WithCause(err)
		return &WebResult{
			Answer: "I encountered an error: " + e.Detail(),
			Hits:   hits,
			Err:    e,
		}
	}

	sources := make([]SourceRef, len(hits))
	for i, hit := range hits {
		sources[i] = WebSource(orDefault(hit.Title, "No title"), orDefault(hit.URL, "N/A"))
	}
	return &WebResult{
		Answer:  strings.TrimSpace(resp.Text),
		Sources: sources,
		Hits:    hits,
	}
}

func notConfigured() *WebResult {
	return &WebResult{
		Answer: apierrors.ErrSearchNotConfigured.MessageEN,
		Err:    apierrors.ErrSearchNotConfigured,
	}
}

// formatHits 从 1 开始为结果编号，供 [n] 引用。
func formatHits(hits []websearch.Hit) string {
	blocks := make([]string, len(hits))
	for i, hit := range hits {
		blocks[i] = fmt.Sprintf("[%d] %s\nURL: %s\nContent: %s\n",
			i+1,
			orDefault(hit.Title, "No title"),
			orDefault(hit.URL, "N/A"),
			orDefault(hit.Content, "No content"),
		)
	}
	return strings.Join(blocks, "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
