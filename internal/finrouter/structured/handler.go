package structured

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/finrouter/pkg/llm"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

// NoResultsAnswer is returned when a statement yields no rows.
const NoResultsAnswer = "No results found for your query."

// DefaultSchemaTTL bounds how long a loaded schema is reused.
const DefaultSchemaTTL = 5 * time.Minute

// Result is the outcome of one structured query.
type Result struct {
	Answer string
	// Query is the cleaned statement, empty when generation failed.
	Query string
	Table *Table
	Err   error
}

// Handler turns a question into SQL, runs it and narrates the rows.
type Handler struct {
	store Store
	chat  llm.ChatProvider

	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	schema   string
	loadedAt time.Time
}

// NewHandler creates a structured-query handler caching the schema for
// DefaultSchemaTTL.
func NewHandler(store Store, chat llm.ChatProvider) *Handler {
	return &Handler{store: store, chat: chat, ttl: DefaultSchemaTTL, now: time.Now}
}

// WithSchemaTTL sets the schema cache lifetime. ttl <= 0 reloads the schema
// for every question.
func (h *Handler) WithSchemaTTL(ttl time.Duration) *Handler {
	h.ttl = ttl
	return h
}

// Schema returns the schema description, reloading it once the cached copy
// is older than the TTL or after a failed statement.
func (h *Handler) Schema(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.schema != "" && h.ttl > 0 && h.now().Sub(h.loadedAt) < h.ttl {
		return h.schema, nil
	}
	schema, err := h.store.Schema(ctx)
	if err != nil {
		return "", err
	}
	h.schema, h.loadedAt = schema, h.now()
	return schema, nil
}

// invalidate drops the cached schema so the next question reloads it.
func (h *Handler) invalidate() {
	h.mu.Lock()
	h.schema = ""
	h.mu.Unlock()
}

// Handle answers question against the relational store.
func (h *Handler) Handle(ctx context.Context, question string) *Result {
	schema, err := h.Schema(ctx)
	if err != nil {
		return failed("", apierrors.ErrQueryExecution.WithCause(err))
	}

	resp, err := h.chat.Generate(ctx, sqlPrompt(schema, question), llm.GenerateOptions{
		MaxTokens:   sqlMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return failed("", apierrors.ErrGenerationFailure.WithCause(err))
	}

	query := CleanSQL(resp.Text)
	if query == "" {
		return failed("", apierrors.ErrGenerationFailure.WithMessage("model returned an empty statement"))
	}
	logger.Debugw("generated sql", "sql", query)

	table, err := h.store.Execute(ctx, query)
	if err != nil {
		logger.Warnw("sql execution failed", "sql", query, "error", err.Error())
		// 表结构可能已变更
		h.invalidate()
		return failed(query, apierrors.ErrQueryExecution.WithCause(err))
	}

	if table.Len() == 0 {
		return &Result{Answer: NoResultsAnswer, Query: query, Table: table}
	}

	narration, err := h.chat.Generate(ctx, narrationPrompt(question, table.String()), llm.GenerateOptions{
		MaxTokens:   narrationMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		r := failed(query, apierrors.ErrGenerationFailure.WithCause(err))
		r.Table = table
		return r
	}

	return &Result{Answer: narration.Text, Query: query, Table: table}
}

func failed(query string, e *apierrors.Errno) *Result {
	return &Result{
		Answer: "I encountered an error: " + e.Detail(),
		Query:  query,
		Err:    e,
	}
}

// CleanSQL strips a markdown fence and trailing semicolons from a model reply.
func CleanSQL(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimRight(strings.TrimSpace(s), ";")
}
