// Package rag defines the retrieval layer that sits on top of the vector
// store: a vector retriever that embeds query text, a BM25 keyword retriever
// over an index's stored content, and a hybrid retriever that fuses both.
// Callers depend on the Retriever interface, never on a concrete retriever.
package rag

import (
	"context"

	"github.com/54b3r/ragcore-go/internal/filter"
)

// Document is one retrieved hit.
type Document struct {
	// ID is the document id within its index.
	ID string `json:"id"`

	// Content is the stored text of the document.
	Content string `json:"content,omitempty"`

	// Metadata holds the document's filterable attributes.
	Metadata filter.Metadata `json:"metadata,omitempty"`

	// Score is the retriever-specific relevance. Larger is better; scores
	// from different retrievers are not comparable.
	Score float64 `json:"score"`
}

// Request is a retrieval request.
type Request struct {
	// Query is the natural-language query text.
	Query string `json:"query"`

	// TopK bounds the number of results. Zero selects the retriever default.
	TopK int `json:"top_k,omitempty"`

	// Filter restricts results to documents whose metadata matches.
	Filter *filter.Condition `json:"filter,omitempty"`
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever returns the documents most relevant to a request, best first.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) ([]Document, error)
}

// DefaultTopK is used when a request leaves TopK unset.
const DefaultTopK = 10
