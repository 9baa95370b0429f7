package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/54b3r/ragcore-go/internal/bm25"
)

// HashEmbedder maps text to a fixed-width vector by feature hashing its BM25
// tokens. Each token adds ±1 to one bucket and the result is L2-normalised,
// so texts sharing vocabulary have a high cosine similarity. It needs no
// network access, which makes it useful for tests, demos and air-gapped
// keyword-heavy corpora; it carries no semantic knowledge.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of length dimensions.
func NewHashEmbedder(dimensions int) (*HashEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("hash embedder: dimensions must be positive, got %d", dimensions)
	}
	return &HashEmbedder{dimensions: dimensions}, nil
}

// Dimensions returns the output vector length.
func (e *HashEmbedder) Dimensions() int { return e.dimensions }

// Embed implements rag.Embedder. Text without tokens embeds to the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dimensions)
	for _, tok := range bm25.Tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := sum % uint64(e.dimensions)
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}
