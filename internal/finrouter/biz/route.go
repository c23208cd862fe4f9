package biz

import (
	"fmt"
	"strings"
)

// Route 标识查询被分发到的处理器。
type Route int

const (
	// RouteNone 不会由分类器或 ParseRoute 产生。
	RouteNone Route = iota
	RouteStructured
	RouteRetrieval
	RouteWeb
)

// Routes 列出所有可分发的路由。
var Routes = []Route{RouteStructured, RouteRetrieval, RouteWeb}

// String 返回路由对应的分类令牌。
func (r Route) String() string {
	switch r {
	case RouteStructured:
		return "STRUCTURED"
	case RouteRetrieval:
		return "RETRIEVAL"
	case RouteWeb:
		return "WEB"
	default:
		return "NONE"
	}
}

// Label 返回展示给用户的名称。
func (r Route) Label() string {
	switch r {
	case RouteStructured:
		return "SQL Database"
	case RouteRetrieval:
		return "Policy Documents (RAG)"
	case RouteWeb:
		return "Web Search"
	default:
		return "None"
	}
}

// Valid 报告 r 是否可分发。
func (r Route) Valid() bool {
	return r >= RouteStructured && r <= RouteWeb
}

// MarshalText 以分类令牌编码路由。
func (r Route) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRoute 解析覆盖路由名，接受路由令牌与简写别名（sql、rag），不区分大小写。
func ParseRoute(s string) (Route, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "sql":
		return RouteStructured, nil
	case "retrieval", "rag":
		return RouteRetrieval, nil
	case "web":
		return RouteWeb, nil
	}
	return RouteNone, fmt.Errorf("unknown handler %q", s)
}

// parseToken 将分类回复映射为路由，只接受完全匹配的令牌。
func parseToken(token string) (Route, bool) {
	switch token {
	case "STRUCTURED", "SQL":
		return RouteStructured, true
	case "RETRIEVAL", "RAG":
		return RouteRetrieval, true
	case "WEB":
		return RouteWeb, true
	}
	return RouteNone, false
}
