// Package tavily implements websearch.Searcher on the Tavily search API.
package tavily

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	opts "github.com/kart-io/finrouter/pkg/options/websearch"
	"github.com/kart-io/finrouter/pkg/utils/httpclient"
	"github.com/kart-io/finrouter/pkg/websearch"
)

const (
	// DefaultBaseURL is the public Tavily endpoint.
	DefaultBaseURL = "https://api.tavily.com"

	providerName = "tavily"
)

// Client is a Tavily API client.
type Client struct {
	baseURL     string
	apiKey      string
	searchDepth string
	maxResults  int
	http        *httpclient.Client
}

// New creates a client from options. A missing API key yields a client whose
// Search returns websearch.ErrNotConfigured.
func New(o *opts.Options) *Client {
	if o == nil {
		o = opts.NewOptions()
	}
	baseURL := strings.TrimRight(o.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      o.APIKey,
		searchDepth: o.SearchDepth,
		maxResults:  o.MaxResults,
		http:        httpclient.NewClient(o.Timeout, 1),
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth,omitempty"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Search posts query to /search. maxResults <= 0 uses the configured default.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]websearch.Hit, error) {
	if !c.Configured() {
		return nil, websearch.ErrNotConfigured
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	req := searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: c.searchDepth,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp searchResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/search", headers, req, &resp); err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	hits := make([]websearch.Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(hits) >= maxResults {
			break
		}
		hits = append(hits, websearch.Hit{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}

	logger.Debugw("tavily search completed", "results", len(hits), "depth", c.searchDepth)
	return hits, nil
}

var _ websearch.Searcher = (*Client)(nil)
