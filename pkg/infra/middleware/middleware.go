// Package middleware 提供 HTTP 服务使用的 gin 中间件链：
// Recovery -> RequestID -> Logger -> Timeout。
package middleware

import "context"

// HeaderXRequestID carries the request id in both directions.
const HeaderXRequestID = "X-Request-ID"

type requestIDKey struct{}

// GetRequestID returns the id stored by the RequestID middleware, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// pathSet 用于跳过 /healthz、/metrics 等高频探测路径。
type pathSet map[string]struct{}

func newPathSet(paths []string) pathSet {
	s := make(pathSet, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

func (s pathSet) has(path string) bool {
	_, ok := s[path]
	return ok
}
