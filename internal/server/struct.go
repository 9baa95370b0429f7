package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/perf"
	"github.com/54b3r/ragcore-go/internal/rag"
	"github.com/54b3r/ragcore-go/internal/similarity"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps request bodies. Defaults to 32 MiB if zero.
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Deps are the retrieval components the server exposes.
type Deps struct {
	// Store is the vector index store. Required.
	Store vectorstore.Store
	// Keyword serves BM25 search over stored content. Required.
	Keyword *rag.KeywordIndexes
	// Embedder embeds hybrid query text. Nil disables POST .../hybrid.
	Embedder rag.Embedder
	// Hybrid holds the default fusion parameters.
	Hybrid rag.HybridConfig
	// Monitor times store operations. It is reported by /api/stats and
	// exported on /metrics.
	Monitor *perf.Monitor
}

// Server is the HTTP server that exposes the vector store and retrievers.
type Server struct {
	// deps holds the retrieval components behind every handler.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// createIndexRequest is the JSON body for POST /api/indexes.
type createIndexRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	// Metric is cosine, euclidean or dot_product. Defaults to cosine.
	Metric string `json:"metric"`
}

// upsertRequest is the JSON body for POST /api/indexes/{name}/vectors.
// Either Documents or the column form (Vectors with optional IDs and
// Metadata) is set.
type upsertRequest struct {
	Documents []vectorstore.Document `json:"documents,omitempty"`
	Vectors   [][]float32            `json:"vectors,omitempty"`
	IDs       []string               `json:"ids,omitempty"`
	Metadata  []filter.Metadata      `json:"metadata,omitempty"`
}

// upsertResponse is the JSON response for POST /api/indexes/{name}/vectors.
type upsertResponse struct {
	IDs []string `json:"ids"`
}

// updateRequest is the JSON body for PATCH /api/indexes/{name}/vectors/{id}.
// Omitted fields are left unchanged.
type updateRequest struct {
	Vector   []float32       `json:"vector,omitempty"`
	Metadata filter.Metadata `json:"metadata,omitempty"`
}

// getDocumentsRequest is the JSON body for POST /api/indexes/{name}/documents.
type getDocumentsRequest struct {
	IDs            []string `json:"ids"`
	IncludeVectors bool     `json:"include_vectors,omitempty"`
}

// retrievalRequest is the JSON body for the search and hybrid routes.
type retrievalRequest struct {
	Query  string            `json:"query"`
	TopK   int               `json:"top_k,omitempty"`
	Filter *filter.Condition `json:"filter,omitempty"`
	// Strategy overrides the configured fusion strategy on hybrid requests.
	Strategy rag.Strategy `json:"strategy,omitempty"`
	// MaxTokens drops the lowest-ranked results until the estimated token
	// count of their content fits. Zero means no budget.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// listIndexesResponse is the JSON response for GET /api/indexes.
type listIndexesResponse struct {
	Indexes []string `json:"indexes"`
}

// resultsResponse wraps query hits.
type resultsResponse struct {
	Results []vectorstore.Result `json:"results"`
}

// documentsResponse wraps stored documents.
type documentsResponse struct {
	Documents []vectorstore.Document `json:"documents"`
}

// retrievalResponse wraps retrieved documents.
type retrievalResponse struct {
	Results []rag.Document `json:"results"`
}

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	Backend     vectorstore.BackendInfo `json:"backend"`
	Performance perf.Metrics            `json:"performance"`
	// QueryCache is absent when the query cache is disabled.
	QueryCache   any `json:"query_cache,omitempty"`
	KeywordCache any `json:"keyword_cache"`
	// Pool is absent for backends without a connection pool.
	Pool any `json:"pool,omitempty"`
	// BM25 holds the corpus statistics of every index, keyed by name.
	BM25 map[string]any `json:"bm25,omitempty"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// parseMetric accepts the metric names of similarity.ParseMetric, with
// cosine as the default.
func parseMetric(s string) (similarity.Metric, error) {
	if s == "" {
		return similarity.Cosine, nil
	}
	return similarity.ParseMetric(s)
}
