// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/llm/resilience"
	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（anthropic, openai, ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥，为空时从供应商对应的环境变量读取。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	// BreakerMaxFailures 熔断阈值，0 表示关闭熔断与重试包装。
	BreakerMaxFailures int `json:"breaker-max-failures" mapstructure:"breaker-max-failures"`

	// BreakerTimeout 熔断打开后的冷却时间。
	BreakerTimeout time.Duration `json:"breaker-timeout" mapstructure:"breaker-timeout"`
}

// apiKeyEnv 各供应商默认读取的环境变量。
var apiKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// NewProviderOptions 创建默认 LLM 供应商配置。
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:           "ollama",
		BaseURL:            "http://localhost:11434",
		Timeout:            120 * time.Second,
		MaxRetries:         3,
		BreakerMaxFailures: 5,
		BreakerTimeout:     60 * time.Second,
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "all-minilm"
	return opts
}

// NewChatOptions 创建默认 Chat 供应商配置。
func NewChatOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Provider = "anthropic"
	opts.BaseURL = ""
	opts.Model = "claude-sonnet-4-20250514"
	return opts
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// RetryConfig 返回重试配置，nil 表示不启用韧性包装。
func (o *ProviderOptions) RetryConfig() *resilience.RetryConfig {
	if o.BreakerMaxFailures <= 0 {
		return nil
	}
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = o.MaxRetries
	return cfg
}

// CircuitBreakerConfig 返回熔断配置。
func (o *ProviderOptions) CircuitBreakerConfig() *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.MaxFailures = o.BreakerMaxFailures
	if o.BreakerTimeout > 0 {
		cfg.Timeout = o.BreakerTimeout
	}
	return cfg
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "LLM provider (anthropic, openai, ollama).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "LLM API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "LLM API key (prefer ANTHROPIC_API_KEY / OPENAI_API_KEY).")
	fs.StringVar(&o.Model, p+"model", o.Model, "LLM model name.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "LLM maximum number of attempts.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "LLM organization ID (optional).")
	fs.IntVar(&o.BreakerMaxFailures, p+"breaker-max-failures", o.BreakerMaxFailures, "Consecutive failures that open the circuit breaker (0 disables).")
	fs.DurationVar(&o.BreakerTimeout, p+"breaker-timeout", o.BreakerTimeout, "Circuit breaker cool-down before a probe call.")
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("provider is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	if o.Provider == "ollama" && o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base-url is required for ollama provider"))
	}
	if env, ok := apiKeyEnv[o.Provider]; ok && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for %s provider (set %s)", o.Provider, env))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errs
}

// Complete completes the LLM provider options with defaults.
func (o *ProviderOptions) Complete() error {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.APIKey == "" {
		if env, ok := apiKeyEnv[o.Provider]; ok {
			o.APIKey = os.Getenv(env)
		}
	}
	return nil
}
