package vectorstore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

// FromColumns zips parallel vector, id and metadata columns into documents.
// ids and metadata may be nil; when present they must match vectors in
// length. Missing ids are left empty for Upsert to generate.
func FromColumns(vectors [][]float32, ids []string, metadata []filter.Metadata) ([]Document, error) {
	if ids != nil && len(ids) != len(vectors) {
		return nil, invalidInput("ids length %d does not match vectors length %d", len(ids), len(vectors))
	}
	if metadata != nil && len(metadata) != len(vectors) {
		return nil, invalidInput("metadata length %d does not match vectors length %d", len(metadata), len(vectors))
	}
	docs := make([]Document, len(vectors))
	for i, v := range vectors {
		docs[i].Vector = v
		if ids != nil {
			docs[i].ID = ids[i]
		}
		if metadata != nil {
			docs[i].Metadata = metadata[i]
		}
	}
	return docs, nil
}

func validateIndexConfig(cfg IndexConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return invalidInput("index name must not be empty")
	}
	if strings.ContainsRune(cfg.Name, 0) {
		return invalidInput("index name must not contain NUL")
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidDimension, cfg.Dimension)
	}
	if !cfg.Metric.Valid() {
		return invalidInput("unknown metric %d", cfg.Metric)
	}
	return nil
}

// prepareBatch validates every document of an upsert batch against the index
// dimension and returns deep copies with generated ids filled in. Nothing is
// written when it fails.
func prepareBatch(dim int, docs []Document) ([]Document, []string, error) {
	out := make([]Document, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		if err := checkVector(dim, d.Vector); err != nil {
			return nil, nil, err
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.Vector = cloneVector(d.Vector)
		d.Metadata = d.Metadata.Clone()
		out[i] = d
		ids[i] = d.ID
	}
	return out, ids, nil
}

func checkVector(dim int, v []float32) error {
	if len(v) != dim {
		return &DimensionMismatchError{Expected: dim, Actual: len(v)}
	}
	if !similarity.IsFinite(v) {
		return invalidInput("vector contains NaN or infinite components")
	}
	return nil
}

func validateQuery(dim int, q Query) error {
	if q.TopK <= 0 {
		return invalidInput("top_k must be positive, got %d", q.TopK)
	}
	if err := checkVector(dim, q.Vector); err != nil {
		return err
	}
	if err := q.Filter.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	return nil
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func cloneDocument(d Document, includeVector bool) Document {
	out := Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata.Clone()}
	if includeVector {
		out.Vector = cloneVector(d.Vector)
	}
	return out
}

// CloneResults deep-copies results so callers may mutate them freely.
func CloneResults(rs []Result) []Result {
	if rs == nil {
		return nil
	}
	out := make([]Result, len(rs))
	for i, r := range rs {
		r.Metadata = r.Metadata.Clone()
		r.Vector = cloneVector(r.Vector)
		out[i] = r
	}
	return out
}
