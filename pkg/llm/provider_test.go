package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (m *mockProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ GenerateOptions) (*GenerateResponse, error) {
	return &GenerateResponse{Text: "echo: " + prompt}, nil
}

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("test-full", func(config map[string]any) (Provider, error) {
		name := "test-full"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	chat, err := NewChatProvider("test-full", map[string]any{"name": "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", chat.Name())

	resp, err := chat.Generate(context.Background(), "hi", GenerateOptions{MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Text)

	emb, err := NewEmbeddingProvider("test-full", nil)
	require.NoError(t, err)
	vec, err := emb.EmbedSingle(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestDedicatedFactoryWins(t *testing.T) {
	RegisterProvider("test-both", func(map[string]any) (Provider, error) {
		return &mockProvider{name: "full"}, nil
	})
	RegisterChatProvider("test-both", func(map[string]any) (ChatProvider, error) {
		return &mockProvider{name: "chat-only"}, nil
	})

	p, err := NewChatProvider("test-both", nil)
	require.NoError(t, err)
	assert.Equal(t, "chat-only", p.Name())

	e, err := NewEmbeddingProvider("test-both", nil)
	require.NoError(t, err)
	assert.Equal(t, "full", e.Name())

	assert.Contains(t, ListProviders(), "test-both")
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewChatProvider("does-not-exist", nil)
	assert.EqualError(t, err, "unknown chat provider: does-not-exist")

	_, err = NewEmbeddingProvider("does-not-exist", nil)
	assert.EqualError(t, err, "unknown embedding provider: does-not-exist")
}

func TestGatewayError(t *testing.T) {
	assert.NoError(t, NewGatewayError("anthropic", "generate", nil))

	cause := context.DeadlineExceeded
	err := NewGatewayError("anthropic", "generate", cause)
	assert.True(t, errors.Is(err, ErrGateway))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "anthropic generate: context deadline exceeded", err.Error())

	wrapped := fmt.Errorf("classify: %w", err)
	var ge *GatewayError
	require.ErrorAs(t, wrapped, &ge)
	assert.Equal(t, "anthropic", ge.Provider)
}
