// Package anthropic 提供基于 Anthropic Messages API 的文本生成供应商。
//
// 该供应商只实现 llm.ChatProvider，Embedding 需要另配供应商（如 ollama）。
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kart-io/finrouter/pkg/llm"
)

// ProviderName 是 Anthropic 供应商的名称标识符。
const ProviderName = "anthropic"

// DefaultModel 默认模型。
const DefaultModel = "claude-sonnet-4-20250514"

func init() {
	llm.RegisterChatProvider(ProviderName, NewProvider)
}

// Config Anthropic 供应商配置。
type Config struct {
	APIKey     string        `json:"api_key" mapstructure:"api_key"`
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	ChatModel  string        `json:"chat_model" mapstructure:"chat_model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		ChatModel:  DefaultModel,
		Timeout:    120 * time.Second,
		MaxRetries: 2,
	}
}

// Provider Anthropic 供应商实现。
type Provider struct {
	config *Config
	client anthropic.Client
}

// NewProvider 从配置 map 创建 Anthropic 供应商。
func NewProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()
	if err := llm.DecodeConfig(configMap, cfg); err != nil {
		return nil, err
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api_key 是必需的")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 Anthropic 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Provider{
		config: cfg,
		client: anthropic.NewClient(opts...),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

// Generate 发送单条用户消息并拼接返回的文本块。
func (p *Provider) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (*llm.GenerateResponse, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.ChatModel),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(opts.Temperature),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, llm.NewGatewayError(ProviderName, "generate", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &llm.GenerateResponse{
		Text:       sb.String(),
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: llm.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}
