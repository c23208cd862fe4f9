package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/finrouter/internal/finrouter/memory"
	"github.com/kart-io/finrouter/internal/finrouter/metrics"
	"github.com/kart-io/finrouter/internal/finrouter/store"
	infralogger "github.com/kart-io/finrouter/pkg/infra/logger"
	"github.com/kart-io/finrouter/pkg/llm"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

// NoDocumentsAnswer 索引没有命中任何片段时的回答。
const NoDocumentsAnswer = "I couldn't find any relevant information in the policy documents."

// DefaultTopK 每个问题检索的片段数。
const DefaultTopK = 5

// RetrievalAnswer 一次检索问答的结果。
type RetrievalAnswer struct {
	Answer string
	// StandaloneQuestion 改写后用于检索的独立问题。
	StandaloneQuestion string
	Chunks             []*store.SearchResult
	Sources            []SourceRef
}

// Retriever 基于政策文档索引回答问题，可按会话携带对话记忆。
type Retriever struct {
	store    store.VectorStore
	embedder llm.EmbeddingProvider
	chat     llm.ChatProvider
	sessions memory.Store
	topK     int
}

// NewRetriever 创建检索器，topK <= 0 时使用 DefaultTopK。
func NewRetriever(vs store.VectorStore, embedder llm.EmbeddingProvider, chat llm.ChatProvider, sessions memory.Store, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		store:    vs,
		embedder: embedder,
		chat:     chat,
		sessions: sessions,
		topK:     topK,
	}
}

// Query 在会话中回答问题。useMemory 为 false 或没有会话 ID 时无状态回答。
func (r *Retriever) Query(ctx context.Context, question, sessionID string, useMemory bool) (*RetrievalAnswer, error) {
	if !useMemory || sessionID == "" {
		return r.Answer(ctx, question, nil)
	}
	conv, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorAnswer(apierrors.ErrInternal.WithCause(err))
	}
	return r.Answer(ctx, question, conv)
}

// Answer 回答问题。conv 为 nil 时无状态回答；否则整个周期持有会话锁，
// 成功后追加一轮。
func (r *Retriever) Answer(ctx context.Context, question string, conv *memory.Conversation) (*RetrievalAnswer, error) {
	if conv == nil {
		return r.answer(ctx, question, nil)
	}

	conv.Lock()
	defer conv.Unlock()

	turns, err := conv.Turns(ctx)
	if err != nil {
		return errorAnswer(apierrors.ErrInternal.WithCause(err))
	}

	ans, err := r.answer(ctx, question, turns)
	if err != nil || len(ans.Chunks) == 0 {
		return ans, err
	}

	if err := conv.Append(ctx, Turn{Question: question, Answer: ans.Answer, Timestamp: time.Now()}); err != nil {
		infralogger.GetLogger(ctx).Warnw("failed to record conversation turn",
			"session_id", conv.ID(),
			"error", err.Error(),
		)
	}
	return ans, nil
}

func (r *Retriever) answer(ctx context.Context, question string, turns []Turn) (*RetrievalAnswer, error) {
	standalone := question
	if len(turns) > 0 {
		condensed, err := r.condense(ctx, turns, question)
		if err != nil {
			return errorAnswer(apierrors.ErrGenerationFailure.WithCause(err))
		}
		standalone = condensed
	}

	chunks, errno := r.retrieve(ctx, standalone)
	if errno != nil {
		return errorAnswer(errno)
	}
	if len(chunks) == 0 {
		return &RetrievalAnswer{Answer: NoDocumentsAnswer, StandaloneQuestion: standalone}, nil
	}

	passages := buildContext(chunks)
	prompt := retrievalPrompt(passages, question)
	if len(turns) > 0 {
		prompt = conversationalPrompt(formatHistory(turns), passages, question)
	}

	resp, err := r.chat.Generate(ctx, prompt, llm.GenerateOptions{
		MaxTokens:   answerMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		ans, errno := errorAnswer(apierrors.ErrGenerationFailure.WithCause(err))
		ans.Chunks = chunks
		ans.StandaloneQuestion = standalone
		return ans, errno
	}

	return &RetrievalAnswer{
		Answer:             strings.TrimSpace(resp.Text),
		StandaloneQuestion: standalone,
		Chunks:             chunks,
		Sources:            documentSources(chunks),
	}, nil
}

func (r *Retriever) condense(ctx context.Context, turns []Turn, question string) (string, error) {
	resp, err := r.chat.Generate(ctx, condensePrompt(formatHistory(turns), question), llm.GenerateOptions{
		MaxTokens:   condenseMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if s := strings.TrimSpace(resp.Text); s != "" {
		return s, nil
	}
	return question, nil
}

func (r *Retriever) retrieve(ctx context.Context, question string) ([]*store.SearchResult, *apierrors.Errno) {
	embedding, err := r.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, apierrors.ErrEmbeddingFailure.WithCause(err)
	}
	chunks, err := r.store.Search(ctx, embedding, r.topK)
	if err != nil {
		return nil, apierrors.ErrIndexFailure.WithCause(err)
	}
	metrics.Get().RecordRetrieval(len(chunks) == 0)
	return chunks, nil
}

// ClearMemory 清空会话记忆，等待进行中的问答结束，不影响索引。
func (r *Retriever) ClearMemory(ctx context.Context, sessionID string) error {
	return r.sessions.Clear(ctx, sessionID)
}

// History 返回会话的问答记录，按时间先后排列。
func (r *Retriever) History(ctx context.Context, sessionID string) ([]Turn, error) {
	conv, err := r.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return conv.Turns(ctx)
}

// Sessions 返回存活会话数。
func (r *Retriever) Sessions() int {
	return r.sessions.Len()
}

func errorAnswer(e *apierrors.Errno) (*RetrievalAnswer, error) {
	return &RetrievalAnswer{Answer: "I encountered an error: " + e.Detail()}, e
}

// buildContext 将片段渲染为 "From {source}:\n{text}" 块。
func buildContext(chunks []*store.SearchResult) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("From %s:\n%s", c.Source, c.Text)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// documentSources 按文档名去重，保留首次出现的顺序。
func documentSources(chunks []*store.SearchResult) []SourceRef {
	seen := make(map[string]struct{}, len(chunks))
	var refs []SourceRef
	for _, c := range chunks {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		refs = append(refs, DocumentSource(c.Source))
	}
	return refs
}

func formatHistory(turns []Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Human: %s\nAssistant: %s", t.Question, t.Answer)
	}
	return sb.String()
}
