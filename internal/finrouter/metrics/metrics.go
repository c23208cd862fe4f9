// Package metrics 收集查询路由服务的业务指标，以 Prometheus 格式导出。
package metrics

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/kart-io/finrouter/pkg/infra/pool"
)

// Namespace prefixes every finrouter metric.
const Namespace = "finrouter"

// counterVec pairs a vector with its label order for Stats keys.
type counterVec struct {
	key    string
	vec    *prometheus.CounterVec
	labels []string
}

// Metrics 查询路由业务指标，每个实例持有独立的 registry。
type Metrics struct {
	reg   *prometheus.Registry
	start time.Time

	queries     *prometheus.CounterVec // route, outcome
	routing     *prometheus.CounterVec // route, source
	llmCalls    *prometheus.CounterVec // provider, outcome
	llmDuration *prometheus.HistogramVec
	searches    *prometheus.CounterVec // outcome
	retrievals  *prometheus.CounterVec // result
	ingests     *prometheus.CounterVec // outcome
	chunks      prometheus.Counter

	vecs []counterVec

	mu    sync.Mutex
	pools []func() pool.Stats
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Get 获取全局指标实例。
func Get() *Metrics {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// New creates a collector with its own registry, including Go runtime and
// process metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Name: name, Help: help}, labels)
	}

	m := &Metrics{
		reg:        reg,
		start:      time.Now(),
		queries:    counter("queries_total", "Queries by route and outcome.", "route", "outcome"),
		routing:    counter("routing_decisions_total", "Routing decisions by route and source.", "route", "source"),
		llmCalls:   counter("llm_calls_total", "Generation calls by provider and outcome.", "provider", "outcome"),
		searches:   counter("web_searches_total", "Web searches by outcome.", "outcome"),
		retrievals: counter("retrievals_total", "Document retrievals by result.", "result"),
		ingests:    counter("ingest_runs_total", "Ingest runs by outcome.", "outcome"),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Generation call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		chunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector index.",
		}),
	}
	m.vecs = []counterVec{
		{"queries", m.queries, []string{"route", "outcome"}},
		{"routing", m.routing, []string{"route", "source"}},
		{"llm", m.llmCalls, []string{"provider", "outcome"}},
		{"searches", m.searches, []string{"outcome"}},
		{"retrieval", m.retrievals, []string{"result"}},
		{"ingest", m.ingests, []string{"outcome"}},
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the collector was created.",
	}, func() float64 { return time.Since(m.start).Seconds() })
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordQuery 记录一次完整查询。
func (m *Metrics) RecordQuery(route string, err error) {
	m.queries.WithLabelValues(route, outcome(err)).Inc()
}

// RecordRouting 记录路由决策来源。
func (m *Metrics) RecordRouting(route, source string) {
	m.routing.WithLabelValues(route, source).Inc()
}

// RecordLLMCall 记录一次生成调用。
func (m *Metrics) RecordLLMCall(provider string, d time.Duration, err error) {
	m.llmCalls.WithLabelValues(provider, outcome(err)).Inc()
	m.llmDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordRetrieval 记录一次检索，empty 表示未命中任何片段。
func (m *Metrics) RecordRetrieval(empty bool) {
	result := "hit"
	if empty {
		result = "empty"
	}
	m.retrievals.WithLabelValues(result).Inc()
}

// RecordSearch 记录一次网络搜索。
func (m *Metrics) RecordSearch(err error) {
	m.searches.WithLabelValues(outcome(err)).Inc()
}

// RecordIngest 记录一次索引。
func (m *Metrics) RecordIngest(chunks int, skipped bool, err error) {
	switch {
	case err != nil:
		m.ingests.WithLabelValues("error").Inc()
	case skipped:
		m.ingests.WithLabelValues("skipped").Inc()
	default:
		m.ingests.WithLabelValues("indexed").Inc()
		m.chunks.Add(float64(chunks))
	}
}

// ObservePool exports the pool's counters, labelled by pool name.
func (m *Metrics) ObservePool(p *pool.Pool) {
	labels := prometheus.Labels{"pool": p.Name()}
	gauge := func(name, help string, v func(pool.Stats) float64) {
		m.register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "pool", Name: name, Help: help, ConstLabels: labels,
		}, func() float64 { return v(p.Stats()) }))
	}
	count := func(name, help string, v func(pool.Stats) float64) {
		m.register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "pool", Name: name, Help: help, ConstLabels: labels,
		}, func() float64 { return v(p.Stats()) }))
	}

	gauge("capacity", "Worker capacity.", func(s pool.Stats) float64 { return float64(s.Capacity) })
	gauge("running", "Busy workers.", func(s pool.Stats) float64 { return float64(s.Running) })
	count("tasks_completed_total", "Tasks run to completion.", func(s pool.Stats) float64 { return float64(s.Completed) })
	count("tasks_rejected_total", "Tasks rejected because the pool was saturated.", func(s pool.Stats) float64 { return float64(s.Rejected) })
	count("panics_total", "Tasks that panicked.", func(s pool.Stats) float64 { return float64(s.Panics) })

	m.mu.Lock()
	m.pools = append(m.pools, p.Stats)
	m.mu.Unlock()
}

// register 同名 pool 重复注册时保留先注册的采集器。
func (m *Metrics) register(c prometheus.Collector) {
	if err := m.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			logger.Warnw("failed to register collector", "error", err.Error())
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Stats summarises the counters for the JSON stats endpoint. Vector keys
// join label values with "/" in declaration order, e.g. "STRUCTURED/ok".
func (m *Metrics) Stats() map[string]interface{} {
	out := map[string]interface{}{
		"uptime_seconds": time.Since(m.start).Seconds(),
		"chunks_indexed": counterValue(m.chunks),
	}
	for _, cv := range m.vecs {
		out[cv.key] = vecValues(cv)
	}

	m.mu.Lock()
	pools := make([]pool.Stats, 0, len(m.pools))
	for _, stats := range m.pools {
		pools = append(pools, stats())
	}
	m.mu.Unlock()
	out["pools"] = pools
	return out
}

func vecValues(cv counterVec) map[string]float64 {
	values := map[string]float64{}
	ch := make(chan prometheus.Metric)
	go func() {
		cv.vec.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		var pb dto.Metric
		if err := metric.Write(&pb); err != nil {
			continue
		}
		byName := make(map[string]string, len(pb.GetLabel()))
		for _, lp := range pb.GetLabel() {
			byName[lp.GetName()] = lp.GetValue()
		}
		parts := make([]string, len(cv.labels))
		for i, l := range cv.labels {
			parts[i] = byName[l]
		}
		values[strings.Join(parts, "/")] = pb.GetCounter().GetValue()
	}
	return values
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
