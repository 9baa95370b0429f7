package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// VectorRetriever implements Retriever by embedding the query text and
// running a similarity query against one index of a vector store.
type VectorRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store vectorstore.Store

	// index is the name of the index queried.
	index string

	// defaultTopK is the number of results to return when the request leaves TopK unset.
	defaultTopK int
}

// NewVectorRetriever constructs a VectorRetriever over index.
// defaultTopK sets the fallback result count; zero or less means DefaultTopK.
func NewVectorRetriever(embedder Embedder, store vectorstore.Store, index string, defaultTopK int) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, errors.New("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, errors.New("rag: store must not be nil")
	}
	if index == "" {
		return nil, errors.New("rag: index must not be empty")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &VectorRetriever{
		embedder:    embedder,
		store:       store,
		index:       index,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k most similar documents.
func (r *VectorRetriever) Retrieve(ctx context.Context, req Request) ([]Document, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, errors.New("rag: embedder returned empty result for query")
	}

	results, err := r.store.Query(ctx, r.index, vectorstore.Query{
		Vector: embeddings[0],
		TopK:   topK,
		Filter: req.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	docs := make([]Document, len(results))
	for i, res := range results {
		docs[i] = Document{ID: res.ID, Content: res.Content, Metadata: res.Metadata, Score: float64(res.Score)}
	}
	return docs, nil
}
