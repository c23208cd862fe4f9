package biz

import (
	"context"
	"strings"

	"github.com/kart-io/finrouter/internal/finrouter/metrics"
	infralogger "github.com/kart-io/finrouter/pkg/infra/logger"
	"github.com/kart-io/finrouter/pkg/llm"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

var (
	structuredKeywords = []string{
		"show", "list", "compare", "average", "sum", "count", "revenue",
		"profit", "margin", "companies", "ratio", "financial", "metric",
	}
	policyKeywords = []string{
		"policy", "approval", "procedure", "guideline", "process",
		"requirement", "should we", "how to", "recognize",
	}
)

// Classifier 为查询选择路由：先询问模型，模型失败或答非所问时回退到关键词规则。
type Classifier struct {
	chat llm.ChatProvider
}

// NewClassifier 创建分类器。
func NewClassifier(chat llm.ChatProvider) *Classifier {
	return &Classifier{chat: chat}
}

// Route 对查询分类，不会失败。
func (c *Classifier) Route(ctx context.Context, query string) RoutingDecision {
	log := infralogger.GetLogger(ctx)

	resp, err := c.chat.Generate(ctx, classifierPrompt(query), llm.GenerateOptions{
		MaxTokens:   classifierMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		log.Warnw("classification failed, using keyword fallback",
			"error", apierrors.ErrClassificationFailure.WithCause(err).Error(),
		)
		return c.fallback(query)
	}

	token := strings.ToUpper(strings.TrimSpace(resp.Text))
	if route, ok := parseToken(token); ok {
		metrics.Get().RecordRouting(route.String(), SourceClassifier.String())
		return RoutingDecision{Route: route, Source: SourceClassifier}
	}

	log.Warnw("unrecognised classifier reply, using keyword fallback", "reply", token)
	return c.fallback(query)
}

func (c *Classifier) fallback(query string) RoutingDecision {
	route := KeywordRoute(query)
	metrics.Get().RecordRouting(route.String(), SourceFallback.String())
	return RoutingDecision{Route: route, Source: SourceFallback}
}

// KeywordRoute 在小写化的查询中做子串匹配。
// 结构化关键词优先于政策关键词，其余一律走网络搜索。
func KeywordRoute(query string) Route {
	q := strings.ToLower(query)
	if containsAny(q, structuredKeywords) {
		return RouteStructured
	}
	if containsAny(q, policyKeywords) {
		return RouteRetrieval
	}
	return RouteWeb
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
