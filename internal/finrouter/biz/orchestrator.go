package biz

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/finrouter/internal/finrouter/metrics"
	"github.com/kart-io/finrouter/internal/finrouter/structured"
	infralogger "github.com/kart-io/finrouter/pkg/infra/logger"
	"github.com/kart-io/finrouter/pkg/infra/pool"
	"github.com/kart-io/finrouter/pkg/infra/tracing"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

// UnknownHandlerAnswer 路由没有对应处理器时的回答。
const UnknownHandlerAnswer = "I couldn't determine how to handle your query. Please try rephrasing."

// Orchestrator 持有三个处理器，每个查询只分发给其中一个。
type Orchestrator struct {
	classifier *Classifier
	structured *structured.Handler
	retriever  *Retriever
	web        *WebHandler

	// pool 为空时在调用方 goroutine 中执行
	pool *pool.Pool
}

// NewOrchestrator 创建编排器。
func NewOrchestrator(classifier *Classifier, sh *structured.Handler, retriever *Retriever, web *WebHandler) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		structured: sh,
		retriever:  retriever,
		web:        web,
	}
}

// WithPool 在 p 中执行查询，调用方仍同步等待结果。
func (o *Orchestrator) WithPool(p *pool.Pool) *Orchestrator {
	o.pool = p
	return o
}

// Retriever 返回检索处理器。
func (o *Orchestrator) Retriever() *Retriever {
	return o.retriever
}

// Handle 路由并回答 q。结果总带有可读的回答，处理器错误放在 Err 中。
func (o *Orchestrator) Handle(ctx context.Context, q Query) *AgentResult {
	if o.pool == nil {
		return o.handle(ctx, q)
	}

	res, err := pool.Do(ctx, o.pool, func(ctx context.Context) *AgentResult {
		return o.handle(ctx, q)
	})
	if err != nil {
		e := apierrors.ErrServiceUnavailable.WithCause(err)
		metrics.Get().RecordQuery(RouteNone.String(), e)
		return &AgentResult{
			Answer:  "I encountered an error: " + e.Detail(),
			Sources: []SourceRef{},
			Err:     e,
		}
	}
	return res
}

func (o *Orchestrator) handle(ctx context.Context, q Query) *AgentResult {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "finrouter.query", attribute.Bool("finrouter.use_memory", q.UseMemory))
	if q.SessionID != "" {
		ctx = infralogger.WithSessionID(ctx, q.SessionID)
	}

	var decision RoutingDecision
	if q.Override != nil {
		decision = RoutingDecision{Route: *q.Override, Source: SourceOverride}
	} else {
		decision = o.classifier.Route(ctx, q.Text)
	}
	ctx = infralogger.WithRoute(ctx, decision.Route.String())
	log := infralogger.GetLogger(ctx)
	log.Infow("query routed", "source", decision.Source.String())
	span.SetAttributes(
		attribute.String("finrouter.route", decision.Route.String()),
		attribute.String("finrouter.decision_source", decision.Source.String()),
	)

	res := o.dispatch(ctx, decision.Route, q)
	res.Decision = decision
	if res.Sources == nil {
		res.Sources = []SourceRef{}
	}

	metrics.Get().RecordQuery(res.HandlerUsed.String(), res.Err)
	tracing.End(span, res.Err)
	if res.Err != nil {
		log.Warnw("query failed", "error", res.Err.Error(), "elapsed", time.Since(start))
	} else {
		log.Infow("query answered", "sources", len(res.Sources), "elapsed", time.Since(start))
	}
	return res
}

func (o *Orchestrator) dispatch(ctx context.Context, route Route, q Query) *AgentResult {
	switch route {
	case RouteStructured:
		r := o.structured.Handle(ctx, q.Text)
		return &AgentResult{
			Answer:      r.Answer,
			HandlerUsed: route,
			RawPayload:  &StructuredPayload{SQL: r.Query, Table: r.Table},
			Err:         r.Err,
		}

	case RouteRetrieval:
		r, err := o.retriever.Query(ctx, q.Text, q.SessionID, q.UseMemory)
		return &AgentResult{
			Answer:      r.Answer,
			HandlerUsed: route,
			Sources:     r.Sources,
			RawPayload:  &RetrievalPayload{StandaloneQuestion: r.StandaloneQuestion, Chunks: r.Chunks},
			Err:         err,
		}

	case RouteWeb:
		r := o.web.Handle(ctx, q.Text)
		return &AgentResult{
			Answer:      r.Answer,
			HandlerUsed: route,
			Sources:     r.Sources,
			RawPayload:  &WebPayload{Hits: r.Hits},
			Err:         r.Err,
		}

	default:
		return &AgentResult{
			Answer:      UnknownHandlerAnswer,
			HandlerUsed: RouteNone,
			Err:         apierrors.ErrUnknownHandler.WithMessagef("unknown route %d", int(route)),
		}
	}
}
