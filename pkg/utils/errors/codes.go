package errors

import (
	"fmt"
	"net/http"
	"sync"
)

// 服务号 AA
const (
	ServiceCommon    = 0
	ServiceFinRouter = 21
)

// 类别号 BB，1-6 为客户端错误，7-12 为服务端错误。
const (
	CategoryRequest   = 1
	CategoryResource  = 4
	CategoryRateLimit = 6
	CategoryInternal  = 7
	CategoryDatabase  = 8
	CategoryNetwork   = 10
	CategoryTimeout   = 11
	CategoryConfig    = 12
)

// MakeCode composes an AABBCCC code.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode splits an AABBCCC code.
func ParseCode(code int) (service, category, sequence int) {
	return code / 100000, code / 1000 % 100, code % 1000
}

// IsClientError reports whether code is in a 4xx category.
func IsClientError(code int) bool {
	_, c, _ := ParseCode(code)
	return c >= CategoryRequest && c <= CategoryRateLimit
}

// IsServerError reports whether code is in a 5xx category.
func IsServerError(code int) bool {
	_, c, _ := ParseCode(code)
	return c >= CategoryInternal && c <= CategoryConfig
}

var registry sync.Map // int -> *Errno

// Register records e, panicking if its code is taken.
func Register(e *Errno) *Errno {
	if prev, loaded := registry.LoadOrStore(e.Code, e); loaded {
		panic(fmt.Sprintf("errno %d already registered as %q", e.Code, prev.(*Errno).MessageEN))
	}
	return e
}

// Lookup returns the registered error for code.
func Lookup(code int) (*Errno, bool) {
	v, ok := registry.Load(code)
	if !ok {
		return nil, false
	}
	return v.(*Errno), true
}

func define(service, category, seq, status int, en, zh string) *Errno {
	return Register(&Errno{
		Code:      MakeCode(service, category, seq),
		HTTP:      status,
		MessageEN: en,
		MessageZH: zh,
	})
}

// 通用错误
var (
	OK                    = define(ServiceCommon, 0, 0, http.StatusOK, "Success", "成功")
	ErrInvalidParam       = define(ServiceCommon, CategoryRequest, 1, http.StatusBadRequest, "Invalid parameter", "参数无效")
	ErrValidationFailed   = define(ServiceCommon, CategoryRequest, 4, http.StatusBadRequest, "Validation failed", "验证失败")
	ErrRouteNotFound      = define(ServiceCommon, CategoryResource, 1, http.StatusNotFound, "Route not found", "路由不存在")
	ErrInternal           = define(ServiceCommon, CategoryInternal, 0, http.StatusInternalServerError, "Internal server error", "服务器内部错误")
	ErrServiceUnavailable = define(ServiceCommon, CategoryNetwork, 0, http.StatusServiceUnavailable, "Service unavailable", "服务不可用")
)

// 查询路由错误
var (
	// ErrUnknownHandler 路由结果没有对应的处理器。
	ErrUnknownHandler = define(ServiceFinRouter, CategoryRequest, 1, http.StatusBadRequest,
		"I couldn't determine how to handle your query. Please try rephrasing.",
		"无法确定如何处理该查询，请换一种说法")
	// ErrSessionNotFound 会话不存在或已被淘汰。
	ErrSessionNotFound = define(ServiceFinRouter, CategoryResource, 1, http.StatusNotFound,
		"Session not found", "会话不存在")
	// ErrClassificationFailure 分类调用失败，路由器会退回关键词规则。
	ErrClassificationFailure = define(ServiceFinRouter, CategoryInternal, 1, http.StatusInternalServerError,
		"Query classification failed", "查询分类失败")
	ErrIndexFailure = define(ServiceFinRouter, CategoryInternal, 2, http.StatusInternalServerError,
		"Document indexing failed", "文档索引失败")
	ErrQueryExecution = define(ServiceFinRouter, CategoryDatabase, 1, http.StatusInternalServerError,
		"Error executing query", "查询执行失败")
	ErrGenerationFailure = define(ServiceFinRouter, CategoryNetwork, 1, http.StatusBadGateway,
		"Text generation failed", "文本生成失败")
	ErrSearchFailure = define(ServiceFinRouter, CategoryNetwork, 2, http.StatusBadGateway,
		"Web search failed", "网络搜索失败")
	ErrEmbeddingFailure = define(ServiceFinRouter, CategoryNetwork, 3, http.StatusBadGateway,
		"Embedding failed", "向量化失败")
	// ErrSearchNotConfigured 未设置 TAVILY_API_KEY。
	ErrSearchNotConfigured = define(ServiceFinRouter, CategoryConfig, 1, http.StatusServiceUnavailable,
		"Web search is not configured. Please add TAVILY_API_KEY to your .env file. You can get a free API key at https://tavily.com",
		"未配置网络搜索，请在 .env 中设置 TAVILY_API_KEY")
)
