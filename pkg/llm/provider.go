// Package llm 提供统一的 LLM 供应商抽象层。
// 支持 Embedding 和文本生成使用不同供应商的模型。
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入，返回顺序与输入一致。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// ChatProvider 定义文本生成供应商接口。
//
// Generate 是无状态的单轮调用：要么返回文本，要么返回包装了 ErrGateway 的错误。
type ChatProvider interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResponse, error)

	// Name 返回供应商名称。
	Name() string
}

// Provider 同时支持 Embedding 和文本生成的完整供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// GenerateOptions 单次生成调用的参数。
type GenerateOptions struct {
	// MaxTokens 最大生成 token 数，0 表示使用供应商默认值。
	MaxTokens int
	// Temperature 采样温度。
	Temperature float64
	// System 可选的系统提示。
	System string
}

// TokenUsage token 用量。
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse 生成结果。
type GenerateResponse struct {
	Text       string     `json:"text"`
	Model      string     `json:"model"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      TokenUsage `json:"usage"`
}

// ErrGateway 所有供应商调用失败都可以用 errors.Is(err, ErrGateway) 识别。
var ErrGateway = errors.New("llm gateway failure")

// GatewayError 供应商调用失败。
type GatewayError struct {
	Provider string
	Op       string
	Err      error
}

// NewGatewayError 包装供应商错误。err 为 nil 时返回 nil。
func NewGatewayError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Provider: provider, Op: op, Err: err}
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrGateway) 成立。
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

// EmbeddingProviderFactory Embedding 供应商工厂函数类型。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

// ChatProviderFactory 文本生成供应商工厂函数类型。
type ChatProviderFactory func(config map[string]any) (ChatProvider, error)

// factories 为按名称注册的工厂表；每种能力一张。
type factories[F any] struct {
	mu sync.RWMutex
	m  map[string]F
}

func (f *factories[F]) set(name string, fn F) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = make(map[string]F)
	}
	f.m[name] = fn
}

func (f *factories[F]) get(name string) (F, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.m[name]
	return fn, ok
}

func (f *factories[F]) names(into map[string]struct{}) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for name := range f.m {
		into[name] = struct{}{}
	}
}

var (
	fullFactories  factories[ProviderFactory]
	embedFactories factories[EmbeddingProviderFactory]
	chatFactories  factories[ChatProviderFactory]
)

// RegisterProvider 注册同时提供 Embedding 与生成能力的供应商。
func RegisterProvider(name string, factory ProviderFactory) { fullFactories.set(name, factory) }

func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	embedFactories.set(name, factory)
}

func RegisterChatProvider(name string, factory ChatProviderFactory) { chatFactories.set(name, factory) }

// NewEmbeddingProvider 优先使用专用 Embedding 工厂，其次是完整供应商工厂。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	if fn, ok := embedFactories.get(name); ok {
		return fn(config)
	}
	if fn, ok := fullFactories.get(name); ok {
		return fn(config)
	}
	return nil, fmt.Errorf("unknown embedding provider: %s", name)
}

// NewChatProvider 优先使用专用 Chat 工厂，其次是完整供应商工厂。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	if fn, ok := chatFactories.get(name); ok {
		return fn(config)
	}
	if fn, ok := fullFactories.get(name); ok {
		return fn(config)
	}
	return nil, fmt.Errorf("unknown chat provider: %s", name)
}

// ListProviders returns every registered name, sorted.
func ListProviders() []string {
	seen := make(map[string]struct{})
	fullFactories.names(seen)
	embedFactories.names(seen)
	chatFactories.names(seen)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
