package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mockProvider
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.mockProvider.Embed(ctx, texts)
}

func TestCachedEmbeddingPassthroughWithoutRedis(t *testing.T) {
	inner := &countingEmbedder{mockProvider: mockProvider{name: "ollama"}}
	c := NewCachedEmbeddingProvider(inner, nil, nil)

	out, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, inner.calls)

	vec, err := c.EmbedSingle(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "ollama-cached", c.Name())
}

func TestCacheKeyIncludesProvider(t *testing.T) {
	a := NewCachedEmbeddingProvider(&mockProvider{name: "ollama"}, nil, nil)
	b := NewCachedEmbeddingProvider(&mockProvider{name: "openai"}, nil, nil)

	ka, kb := a.cacheKey("travel policy"), b.cacheKey("travel policy")
	assert.NotEqual(t, ka, kb)
	assert.True(t, strings.HasPrefix(ka, "finrouter:emb:ollama:"))
	assert.Equal(t, ka, a.cacheKey("travel policy"))
}
