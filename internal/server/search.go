package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/54b3r/ragcore-go/internal/budget"
	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/pool"
	"github.com/54b3r/ragcore-go/internal/rag"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// handleSearch handles POST /api/indexes/{name}/search, a BM25 search over
// the stored content of the index. Unlike hybrid search an empty query is
// not an error.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req retrievalRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.MaxTokens < 0 {
		writeError(w, r, fmt.Errorf("%w: max_tokens must not be negative", vectorstore.ErrInvalidInput))
		return
	}

	// A query without terms matches nothing and answers an empty list.
	docs, err := s.deps.Keyword.Search(r.Context(), r.PathValue("name"), rag.Request{
		Query:  req.Query,
		TopK:   req.TopK,
		Filter: req.Filter,
	})
	s.metrics.observeRetrieval("keyword", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRetrieval(w, r, budget.Fit(docs, req.MaxTokens))
}

// handleHybrid handles POST /api/indexes/{name}/hybrid. The query text is
// embedded for the vector leg and scored with BM25 for the keyword leg.
func (s *Server) handleHybrid(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req retrievalRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.deps.Embedder == nil {
		writeError(w, r, errEmbedderUnavailable)
		return
	}
	if req.Query == "" {
		writeError(w, r, fmt.Errorf("%w: query is required", vectorstore.ErrInvalidInput))
		return
	}
	if req.MaxTokens < 0 {
		writeError(w, r, fmt.Errorf("%w: max_tokens must not be negative", vectorstore.ErrInvalidInput))
		return
	}

	cfg := s.deps.Hybrid
	if req.Strategy != "" {
		st, err := rag.ParseStrategy(string(req.Strategy))
		if err != nil {
			writeError(w, r, err)
			return
		}
		cfg.Strategy = st
	}

	vector, err := rag.NewVectorRetriever(s.deps.Embedder, s.deps.Store, name, rag.DefaultTopK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hybrid, err := rag.NewHybridRetriever(vector, s.deps.Keyword.For(name), cfg, logging.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	docs, err := hybrid.Retrieve(r.Context(), rag.Request{Query: req.Query, TopK: req.TopK, Filter: req.Filter})
	s.metrics.observeRetrieval("hybrid", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRetrieval(w, r, budget.Fit(docs, req.MaxTokens))
}

func writeRetrieval(w http.ResponseWriter, r *http.Request, docs []rag.Document) {
	if docs == nil {
		docs = []rag.Document{}
	}
	writeJSON(w, r, http.StatusOK, retrievalResponse{Results: docs})
}

// poolStatter is implemented by backends that draw connections from a pool.
type poolStatter interface {
	PoolStats() pool.Stats
}

// unwrapper is implemented by store decorators.
type unwrapper interface {
	Unwrap() vectorstore.Store
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	store := s.deps.Store

	resp := statsResponse{
		Backend:      store.BackendInfo(),
		Performance:  s.deps.Monitor.Metrics(),
		KeywordCache: s.deps.Keyword.CacheStats(),
	}
	if inst, ok := store.(*vectorstore.Instrumented); ok {
		if cs, ok := inst.CacheStats(); ok {
			resp.QueryCache = cs
		}
	}
	if ps, ok := poolOf(store); ok {
		resp.Pool = ps.PoolStats()
	}

	names, err := store.ListIndexes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.BM25 = make(map[string]any, len(names))
	for _, name := range names {
		st, err := s.deps.Keyword.Stats(r.Context(), name)
		if errors.Is(err, vectorstore.ErrIndexNotFound) {
			continue // deleted concurrently
		}
		if err != nil {
			log.Warn("stats: bm25 stats unavailable", slog.String("index", name), slog.Any("error", err))
			continue
		}
		resp.BM25[name] = st
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// poolOf finds a pooled backend behind any number of decorators.
func poolOf(store vectorstore.Store) (poolStatter, bool) {
	for store != nil {
		if ps, ok := store.(poolStatter); ok {
			return ps, true
		}
		u, ok := store.(unwrapper)
		if !ok {
			return nil, false
		}
		store = u.Unwrap()
	}
	return nil, false
}
