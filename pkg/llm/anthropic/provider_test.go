package anthropic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/finrouter/pkg/llm"
	"github.com/kart-io/finrouter/pkg/utils/json"
)

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(map[string]any{})
	require.Error(t, err)

	p, err := llm.NewChatProvider(ProviderName, map[string]any{"api_key": "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, DefaultModel, req["model"])
		assert.EqualValues(t, 10, req["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": " structured\n"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	p := NewProviderWithConfig(&Config{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		ChatModel: DefaultModel,
	})

	resp, err := p.Generate(context.Background(), "classify this", llm.GenerateOptions{MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, " structured\n", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
}

func TestGenerateFailureIsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	p := NewProviderWithConfig(&Config{APIKey: "k", BaseURL: srv.URL, ChatModel: DefaultModel})
	_, err := p.Generate(context.Background(), "x", llm.GenerateOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrGateway))
}
