// Package websearch defines the web search provider abstraction.
package websearch

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by providers that have no credential.
var ErrNotConfigured = errors.New("web search is not configured")

// Hit is one web search result.
type Hit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Searcher runs a web search.
type Searcher interface {
	// Search returns at most maxResults hits for query.
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
	// Name returns the provider name.
	Name() string
}
