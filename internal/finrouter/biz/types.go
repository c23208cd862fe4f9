package biz

import (
	"github.com/kart-io/finrouter/internal/finrouter/memory"
	"github.com/kart-io/finrouter/internal/finrouter/store"
	"github.com/kart-io/finrouter/internal/finrouter/structured"
	"github.com/kart-io/finrouter/pkg/websearch"
)

// Turn 会话中的一次问答。
type Turn = memory.Turn

// Query 一次查询。
type Query struct {
	Text string
	// Override 强制指定路由，跳过分类。
	Override *Route
	// SessionID 对话记忆的作用域，为空表示一次性会话。
	SessionID string
	// UseMemory 启用多轮检索。
	UseMemory bool
}

// DecisionSource 记录路由的来源。
type DecisionSource int

const (
	SourceClassifier DecisionSource = iota
	SourceFallback
	SourceOverride
)

func (s DecisionSource) String() string {
	switch s {
	case SourceClassifier:
		return "CLASSIFIER"
	case SourceFallback:
		return "FALLBACK"
	case SourceOverride:
		return "OVERRIDE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText 编码来源名称。
func (s DecisionSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RoutingDecision 一次路由的结果。
type RoutingDecision struct {
	Route  Route          `json:"route"`
	Source DecisionSource `json:"source"`
}

// SourceKind 区分引用类型。
type SourceKind int

const (
	SourceDocument SourceKind = iota
	SourceWebPage
)

func (k SourceKind) String() string {
	if k == SourceWebPage {
		return "web"
	}
	return "document"
}

// MarshalText 编码类型名称。
func (k SourceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// SourceRef 引用政策文档或网页。
type SourceRef struct {
	Kind  SourceKind `json:"kind"`
	Name  string     `json:"name,omitempty"`
	Title string     `json:"title,omitempty"`
	URL   string     `json:"url,omitempty"`
}

// DocumentSource 按文件名引用政策文档。
func DocumentSource(name string) SourceRef {
	return SourceRef{Kind: SourceDocument, Name: name}
}

// WebSource 引用网页。
func WebSource(title, url string) SourceRef {
	return SourceRef{Kind: SourceWebPage, Title: title, URL: url}
}

// String 返回引用的展示形式。
func (s SourceRef) String() string {
	if s.Kind == SourceDocument {
		return s.Name
	}
	if s.Title == "" {
		return s.URL
	}
	return s.Title
}

// StructuredPayload 生成的语句及其结果行。
type StructuredPayload struct {
	SQL   string            `json:"sql,omitempty"`
	Table *structured.Table `json:"table,omitempty"`
}

// RetrievalPayload 检索到的片段。
type RetrievalPayload struct {
	StandaloneQuestion string                `json:"standalone_question,omitempty"`
	Chunks             []*store.SearchResult `json:"chunks"`
}

// WebPayload 原始搜索结果。
type WebPayload struct {
	Hits []websearch.Hit `json:"hits"`
}

// AgentResult 所有查询统一返回的结果。
type AgentResult struct {
	Answer      string          `json:"answer"`
	HandlerUsed Route           `json:"handler_used"`
	Decision    RoutingDecision `json:"decision"`
	Sources     []SourceRef     `json:"sources"`
	// RawPayload 为 *StructuredPayload、*RetrievalPayload 或 *WebPayload 之一。
	RawPayload any `json:"raw_payload,omitempty"`
	// Err 处理器错误。无论成败 Answer 都可读。
	Err error `json:"-"`
}

// Label 返回所用处理器的展示名称。
func (r *AgentResult) Label() string {
	return r.HandlerUsed.Label()
}

// SQL 返回结构化结果中生成的语句。
func (r *AgentResult) SQL() string {
	if p, ok := r.RawPayload.(*StructuredPayload); ok {
		return p.SQL
	}
	return ""
}
