package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// handleListIndexes handles GET /api/indexes.
func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Store.ListIndexes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, r, http.StatusOK, listIndexesResponse{Indexes: names})
}

// handleCreateIndex handles POST /api/indexes.
func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	metric, err := parseMetric(req.Metric)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg := vectorstore.IndexConfig{Name: req.Name, Dimension: req.Dimension, Metric: metric}
	if err := s.deps.Store.CreateIndex(r.Context(), cfg); err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Keyword.Invalidate(req.Name)

	logging.FromContext(r.Context()).Info("index created",
		slog.String("index", cfg.Name),
		slog.Int("dimension", cfg.Dimension),
		slog.String("metric", cfg.Metric.String()),
	)

	stats, err := s.deps.Store.DescribeIndex(r.Context(), cfg.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, stats)
}

// handleDescribeIndex handles GET /api/indexes/{name}.
func (s *Server) handleDescribeIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.DescribeIndex(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleDeleteIndex handles DELETE /api/indexes/{name}.
func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.deps.Store.DeleteIndex(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Keyword.Invalidate(name)
	logging.FromContext(r.Context()).Info("index deleted", slog.String("index", name))
	w.WriteHeader(http.StatusNoContent)
}

// handleUpsert handles POST /api/indexes/{name}/vectors.
func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req upsertRequest
	if !s.decode(w, r, &req) {
		return
	}

	docs := req.Documents
	switch {
	case len(docs) > 0 && (req.Vectors != nil || req.IDs != nil || req.Metadata != nil):
		writeError(w, r, fmt.Errorf("%w: send either documents or vector columns, not both", vectorstore.ErrInvalidInput))
		return
	case len(docs) == 0:
		var err error
		docs, err = vectorstore.FromColumns(req.Vectors, req.IDs, req.Metadata)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	if len(docs) == 0 {
		writeError(w, r, fmt.Errorf("%w: no documents to upsert", vectorstore.ErrInvalidInput))
		return
	}

	ids, err := s.deps.Store.Upsert(r.Context(), name, docs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Keyword.Invalidate(name)
	s.metrics.upsertedDocuments.Add(float64(len(ids)))
	writeJSON(w, r, http.StatusOK, upsertResponse{IDs: ids})
}

// handleUpdate handles PATCH /api/indexes/{name}/vectors/{id}.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Vector == nil && req.Metadata == nil {
		writeError(w, r, fmt.Errorf("%w: nothing to update", vectorstore.ErrInvalidInput))
		return
	}
	if err := s.deps.Store.UpdateByID(r.Context(), name, id, req.Vector, req.Metadata); err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Keyword.Invalidate(name)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteVector handles DELETE /api/indexes/{name}/vectors/{id}.
func (s *Server) handleDeleteVector(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	if err := s.deps.Store.DeleteByID(r.Context(), name, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Keyword.Invalidate(name)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDocuments handles POST /api/indexes/{name}/documents.
func (s *Server) handleGetDocuments(w http.ResponseWriter, r *http.Request) {
	var req getDocumentsRequest
	if !s.decode(w, r, &req) {
		return
	}
	docs, err := s.deps.Store.GetDocuments(r.Context(), r.PathValue("name"), req.IDs, req.IncludeVectors)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []vectorstore.Document{}
	}
	writeJSON(w, r, http.StatusOK, documentsResponse{Documents: docs})
}

// handleQuery handles POST /api/indexes/{name}/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q vectorstore.Query
	if !s.decode(w, r, &q) {
		return
	}
	results, err := s.deps.Store.Query(r.Context(), r.PathValue("name"), q)
	s.metrics.observeRetrieval("vector", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []vectorstore.Result{}
	}
	writeJSON(w, r, http.StatusOK, resultsResponse{Results: results})
}

// errEmbedderUnavailable is returned by text routes that need an embedder
// when none is configured.
var errEmbedderUnavailable = errors.New("server: no embedder configured")
