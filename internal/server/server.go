// Package server implements the HTTP API over the vector index store and the
// keyword and hybrid retrievers. The server is started by the `ragcore serve`
// CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/ragcore-go/internal/embedder"
	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/rag"
	"github.com/54b3r/ragcore-go/internal/similarity"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// New constructs a Server over deps.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("server: store must not be nil")
	}
	if deps.Keyword == nil {
		return nil, fmt.Errorf("server: keyword indexes must not be nil")
	}
	if err := deps.Hybrid.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry, deps),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: API key not set, authentication disabled")
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the handler tree. Health, readiness and metrics are open;
// every other /api route requires the API key, and routes that write or
// score the corpus are rate limited.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	type route struct {
		pattern string
		name    string
		handler http.HandlerFunc
		limited bool
	}
	routes := []route{
		{"GET /api/indexes", "list_indexes", s.handleListIndexes, false},
		{"POST /api/indexes", "create_index", s.handleCreateIndex, true},
		{"GET /api/indexes/{name}", "describe_index", s.handleDescribeIndex, false},
		{"DELETE /api/indexes/{name}", "delete_index", s.handleDeleteIndex, true},
		{"POST /api/indexes/{name}/vectors", "upsert", s.handleUpsert, true},
		{"PATCH /api/indexes/{name}/vectors/{id}", "update", s.handleUpdate, true},
		{"DELETE /api/indexes/{name}/vectors/{id}", "delete_vector", s.handleDeleteVector, true},
		{"POST /api/indexes/{name}/documents", "get_documents", s.handleGetDocuments, false},
		{"POST /api/indexes/{name}/query", "query", s.handleQuery, true},
		{"POST /api/indexes/{name}/search", "search", s.handleSearch, true},
		{"POST /api/indexes/{name}/hybrid", "hybrid", s.handleHybrid, true},
		{"GET /api/stats", "stats", s.handleStats, false},
	}

	protected := http.NewServeMux()
	for _, r := range routes {
		var h http.Handler = r.handler
		if r.limited {
			h = rl.middleware(h)
		}
		protected.Handle(r.pattern, s.instrument(r.name, h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	mux.Handle("/api/", authMiddleware(s.cfg.APIKey, protected))

	return requestLogger(s.log, mux)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server: stopped")
		return nil
	}
}

// decode reads a JSON body into v, bounded by MaxBodyBytes.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, fmt.Errorf("%w: request body: %w", vectorstore.ErrInvalidInput, err))
		return false
	}
	return true
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError maps err onto a status code and a stable error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Debug("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, r, status, errorResponse{Error: err.Error(), Code: code})
}

// classify returns the HTTP status and error code for err.
func classify(err error) (int, string) {
	var (
		maxBytes *http.MaxBytesError
		upstream *embedder.StatusError
	)
	switch {
	case errors.Is(err, vectorstore.ErrIndexNotFound):
		return http.StatusNotFound, "index_not_found"
	case errors.Is(err, vectorstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, vectorstore.ErrIndexAlreadyExists):
		return http.StatusConflict, "index_already_exists"
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		return http.StatusBadRequest, "dimension_mismatch"
	case errors.Is(err, vectorstore.ErrInvalidDimension):
		return http.StatusBadRequest, "invalid_dimension"
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, vectorstore.ErrInvalidInput),
		errors.Is(err, filter.ErrInvalidFilter),
		errors.Is(err, similarity.ErrUnknownMetric),
		errors.Is(err, rag.ErrUnknownStrategy):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, errEmbedderUnavailable):
		return http.StatusNotImplemented, "embedder_unavailable"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "embedder_error"
	case errors.Is(err, vectorstore.ErrConnectionFailed),
		errors.Is(err, embedder.ErrUnavailable):
		return http.StatusServiceUnavailable, "connection_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
