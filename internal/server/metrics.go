package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/ragcore-go/internal/perf"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// Metric label values shared across registrations.
const (
	// namespace prefixes every metric name.
	namespace = "ragcore"

	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// retrievalsTotal counts query, search and hybrid requests, partitioned
	// by kind ("vector", "keyword", "hybrid") and outcome ("ok", "error").
	retrievalsTotal *prometheus.CounterVec

	// upsertedDocuments counts documents written through the API.
	upsertedDocuments prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default;
// this keeps unit tests hermetic.
//
// Cache and pool state is exported through gauge functions read at scrape
// time, and the store's performance monitor through a perf.Collector.
func newServerMetrics(reg prometheus.Registerer, deps Deps) *serverMetrics {
	factory := promauto.With(reg)

	m := &serverMetrics{
		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of retrieval requests, partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),

		upsertedDocuments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "upserted_documents_total",
			Help:      "Documents written through the upsert endpoint.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}

	if deps.Monitor != nil {
		reg.MustRegister(perf.NewCollector(namespace, deps.Monitor, prometheus.Labels{"component": "vectorstore"}))
	}

	if deps.Keyword != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keyword_cache",
			Name:      "entries",
			Help:      "BM25 retrievers currently cached.",
		}, func() float64 { return float64(deps.Keyword.CacheStats().CurrentSize) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keyword_cache",
			Name:      "hit_rate",
			Help:      "Fraction of keyword searches that found a cached BM25 retriever.",
		}, func() float64 { return deps.Keyword.CacheStats().HitRate })
	}

	if inst, ok := deps.Store.(*vectorstore.Instrumented); ok {
		if _, enabled := inst.CacheStats(); enabled {
			factory.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "query_cache",
				Name:      "entries",
				Help:      "Query results currently cached.",
			}, func() float64 {
				cs, _ := inst.CacheStats()
				return float64(cs.CurrentSize)
			})
			factory.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "query_cache",
				Name:      "hit_rate",
				Help:      "Fraction of vector queries answered from the cache.",
			}, func() float64 {
				cs, _ := inst.CacheStats()
				return cs.HitRate
			})
		}
	}

	if ps, ok := poolOf(deps.Store); ok {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active_connections",
			Help:      "Backend connections currently checked out.",
		}, func() float64 { return float64(ps.PoolStats().ActiveConnections) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_connections",
			Help:      "Backend connections idle in the pool.",
		}, func() float64 { return float64(ps.PoolStats().IdleConnections) })
	}

	return m
}

// observeRetrieval counts one retrieval request.
func (m *serverMetrics) observeRetrieval(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.retrievalsTotal.WithLabelValues(kind, outcome).Inc()
}
