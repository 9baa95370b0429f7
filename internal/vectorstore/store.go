// Package vectorstore defines the vector index store contract and its
// backends: an in-process memory store, an embedded SQLite store, Qdrant and
// PostgreSQL with pgvector.
//
// Every backend ranks with the metrics in package similarity, so a larger
// score is always a better match; Euclidean results are negated distances.
// Callers hold the Store interface, never a concrete backend.
package vectorstore

import (
	"context"
	"time"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

// Document is a stored record: an id unique within its index, optional text
// content, a vector of the index dimension and scalar metadata.
type Document struct {
	// ID is unique within an index. Upsert generates one when empty.
	ID string `json:"id"`

	// Content is the source text. It may be empty for pure-vector records.
	Content string `json:"content,omitempty"`

	// Vector must have exactly the index dimension.
	Vector []float32 `json:"vector,omitempty"`

	// Metadata holds the filterable attributes of the document.
	Metadata filter.Metadata `json:"metadata,omitempty"`
}

// IndexConfig describes an index at creation time.
type IndexConfig struct {
	// Name is unique within the store.
	Name string `json:"name"`

	// Dimension is the fixed length of every vector in the index.
	Dimension int `json:"dimension"`

	// Metric ranks query results.
	Metric similarity.Metric `json:"metric"`
}

// IndexStats is the derived state of an index reported by DescribeIndex.
type IndexStats struct {
	Name           string            `json:"name"`
	Dimension      int               `json:"dimension"`
	Metric         similarity.Metric `json:"metric"`
	VectorCount    int               `json:"vector_count"`
	IndexSizeBytes int64             `json:"index_size_bytes"`
	CreatedAt      time.Time         `json:"created_at,omitzero"`
	UpdatedAt      time.Time         `json:"updated_at,omitzero"`
}

// Query is a similarity search request.
type Query struct {
	// Vector is compared against every document in the index.
	Vector []float32 `json:"vector"`

	// TopK bounds the number of results. It must be positive.
	TopK int `json:"top_k"`

	// Filter, when set, restricts candidates to documents whose metadata
	// matches. It narrows the candidate set and never changes scores.
	Filter *filter.Condition `json:"filter,omitempty"`

	// IncludeVectors returns each result's stored vector.
	IncludeVectors bool `json:"include_vectors,omitempty"`
}

// Result is one ranked query hit.
type Result struct {
	ID       string          `json:"id"`
	Score    float32         `json:"score"`
	Content  string          `json:"content,omitempty"`
	Metadata filter.Metadata `json:"metadata,omitempty"`
	Vector   []float32       `json:"vector,omitempty"`
}

// BackendInfo describes a backend and what it supports.
type BackendInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	// Persistent is true when data survives a process restart.
	Persistent bool `json:"persistent"`

	// NativeFiltering is true when metadata filters are evaluated by the
	// backend itself rather than in process.
	NativeFiltering bool `json:"native_filtering"`

	// Pooled is true when backend connections come from a connection pool.
	Pooled bool `json:"pooled"`
}

// Store is the vector index store contract. Implementations must be safe for
// concurrent use: reads of an index run concurrently, while writes to an
// index exclude reads and other writes of that same index.
type Store interface {
	// CreateIndex creates an empty index. It fails with ErrIndexAlreadyExists
	// if the name is taken and ErrInvalidDimension if the dimension is not
	// positive.
	CreateIndex(ctx context.Context, cfg IndexConfig) error

	// DescribeIndex returns the index configuration and derived statistics.
	DescribeIndex(ctx context.Context, name string) (IndexStats, error)

	// ListIndexes returns every index name in lexical order.
	ListIndexes(ctx context.Context) ([]string, error)

	// DeleteIndex removes an index and all of its documents. A missing index
	// is ErrIndexNotFound.
	DeleteIndex(ctx context.Context, name string) error

	// Upsert inserts documents or replaces those whose id already exists and
	// returns the ids in input order. Every vector is validated before any
	// write, so a dimension mismatch leaves the index unchanged.
	Upsert(ctx context.Context, index string, docs []Document) ([]string, error)

	// Query returns at most q.TopK results ordered best first. Equal scores
	// keep insertion order.
	Query(ctx context.Context, index string, q Query) ([]Result, error)

	// GetDocuments returns the documents for the ids that exist, in request
	// order. Unknown ids are skipped.
	GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]Document, error)

	// UpdateByID replaces the vector and/or the metadata of an existing
	// document. A nil argument leaves that field unchanged. Missing ids are
	// ErrNotFound.
	UpdateByID(ctx context.Context, index, id string, vector []float32, metadata filter.Metadata) error

	// DeleteByID removes one document. Missing ids are ErrNotFound.
	DeleteByID(ctx context.Context, index, id string) error

	// Scan calls fn for every document of the index in insertion order,
	// vectors included, stopping at the first error fn returns.
	Scan(ctx context.Context, index string, fn func(Document) error) error

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error

	// BackendInfo describes the backend.
	BackendInfo() BackendInfo

	// Close releases backend resources.
	Close() error
}
