package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

// runStoreSuite exercises the Store contract against a fresh backend per
// subtest.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()

	ctx := context.Background()

	newIndex := func(t *testing.T, metric similarity.Metric) Store {
		t.Helper()
		s := open(t)
		require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "docs", Dimension: 3, Metric: metric}))
		return s
	}

	t.Run("create_describe_list_delete", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "b", Dimension: 4, Metric: similarity.Cosine}))
		require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "a", Dimension: 2, Metric: similarity.DotProduct}))

		err := s.CreateIndex(ctx, IndexConfig{Name: "a", Dimension: 2, Metric: similarity.DotProduct})
		assert.ErrorIs(t, err, ErrIndexAlreadyExists)

		err = s.CreateIndex(ctx, IndexConfig{Name: "c", Dimension: 0, Metric: similarity.Cosine})
		assert.ErrorIs(t, err, ErrInvalidDimension)

		names, err := s.ListIndexes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, names)

		stats, err := s.DescribeIndex(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "b", stats.Name)
		assert.Equal(t, 4, stats.Dimension)
		assert.Equal(t, similarity.Cosine, stats.Metric)
		assert.Zero(t, stats.VectorCount)

		require.NoError(t, s.DeleteIndex(ctx, "b"))
		assert.ErrorIs(t, s.DeleteIndex(ctx, "b"), ErrIndexNotFound)
		_, err = s.DescribeIndex(ctx, "b")
		assert.ErrorIs(t, err, ErrIndexNotFound)
		_, err = s.Query(ctx, "b", Query{Vector: []float32{1, 0, 0, 0}, TopK: 1})
		assert.ErrorIs(t, err, ErrIndexNotFound)
	})

	t.Run("upsert_counts_and_generates_ids", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		docs, err := FromColumns([][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, nil, nil)
		require.NoError(t, err)

		ids, err := s.Upsert(ctx, "docs", docs)
		require.NoError(t, err)
		require.Len(t, ids, 3)
		for _, id := range ids {
			assert.NotEmpty(t, id)
		}
		assert.NotEqual(t, ids[0], ids[1])

		stats, err := s.DescribeIndex(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 3, stats.VectorCount)
		assert.Positive(t, stats.IndexSizeBytes)
	})

	t.Run("upsert_is_idempotent_per_id", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		_, err := s.Upsert(ctx, "docs", []Document{{ID: "x", Content: "first", Vector: []float32{1, 0, 0}}})
		require.NoError(t, err)
		_, err = s.Upsert(ctx, "docs", []Document{{ID: "x", Content: "second", Vector: []float32{0, 1, 0}}})
		require.NoError(t, err)

		stats, err := s.DescribeIndex(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.VectorCount)

		got, err := s.GetDocuments(ctx, "docs", []string{"x"}, true)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "second", got[0].Content)
		assert.Equal(t, []float32{0, 1, 0}, got[0].Vector)
	})

	t.Run("dimension_mismatch_inserts_nothing", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "ok", Vector: []float32{1, 0, 0}},
			{ID: "bad", Vector: []float32{1, 0}},
		})
		require.ErrorIs(t, err, ErrDimensionMismatch)
		var dm *DimensionMismatchError
		require.True(t, errors.As(err, &dm))
		assert.Equal(t, 3, dm.Expected)
		assert.Equal(t, 2, dm.Actual)

		stats, err := s.DescribeIndex(ctx, "docs")
		require.NoError(t, err)
		assert.Zero(t, stats.VectorCount)

		_, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0}, TopK: 1})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("query_orders_and_bounds", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "far", Vector: []float32{0, 0, 1}},
			{ID: "near", Vector: []float32{1, 0.1, 0}},
			{ID: "exact", Vector: []float32{2, 0, 0}},
			{ID: "mid", Vector: []float32{1, 1, 0}},
		})
		require.NoError(t, err)

		results, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 3})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []string{"exact", "near", "mid"}, resultIDs(results))
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
		assert.Nil(t, results[0].Vector)

		withVectors, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 1, IncludeVectors: true})
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 0, 0}, withVectors[0].Vector)

		_, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 0})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("ties_keep_insertion_order", func(t *testing.T) {
		s := newIndex(t, similarity.DotProduct)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "z", Vector: []float32{1, 0, 0}},
			{ID: "a", Vector: []float32{1, 0, 0}},
			{ID: "m", Vector: []float32{1, 0, 0}},
		})
		require.NoError(t, err)

		results, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 1, 1}, TopK: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "a"}, resultIDs(results))
	})

	t.Run("euclidean_scores_are_negated_distances", func(t *testing.T) {
		s := newIndex(t, similarity.Euclidean)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "five", Vector: []float32{4, 6, 3}},
			{ID: "zero", Vector: []float32{1, 2, 3}},
		})
		require.NoError(t, err)

		results, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 2, 3}, TopK: 2})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "zero", results[0].ID)
		assert.InDelta(t, 0, results[0].Score, 1e-6)
		assert.InDelta(t, -5, results[1].Score, 1e-5)
	})

	t.Run("filter_restricts_candidates", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "a", Vector: []float32{1, 0, 0}, Metadata: filter.Metadata{"category": filter.String("A")}},
			{ID: "b", Vector: []float32{1, 0, 0}, Metadata: filter.Metadata{"category": filter.String("B")}},
		})
		require.NoError(t, err)

		eq := filter.Eq("category", filter.String("A"))
		results, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 10, Filter: &eq})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, resultIDs(results))
		assert.Equal(t, "A", mustString(t, results[0].Metadata["category"]))

		and := filter.And(filter.Eq("category", filter.String("A")), filter.Gt("score", filter.Int(10)))
		results, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 10, Filter: &and})
		require.NoError(t, err)
		assert.Empty(t, results)

		bad := filter.Condition{Op: filter.OpEq}
		_, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 10, Filter: &bad})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("numeric_filters", func(t *testing.T) {
		s := newIndex(t, similarity.DotProduct)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "low", Vector: []float32{1, 0, 0}, Metadata: filter.Metadata{"score": filter.Int(5)}},
			{ID: "high", Vector: []float32{1, 0, 0}, Metadata: filter.Metadata{"score": filter.Float(12.5)}},
			{ID: "none", Vector: []float32{1, 0, 0}},
		})
		require.NoError(t, err)

		gt := filter.Gt("score", filter.Int(10))
		results, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 10, Filter: &gt})
		require.NoError(t, err)
		assert.Equal(t, []string{"high"}, resultIDs(results))

		or := filter.Or(filter.Eq("score", filter.Float(5)), filter.NotExists("score"))
		results, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 10, Filter: &or})
		require.NoError(t, err)
		assert.Equal(t, []string{"low", "none"}, resultIDs(results))
	})

	t.Run("update_by_id", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "x", Content: "keep", Vector: []float32{1, 0, 0}, Metadata: filter.Metadata{"v": filter.Int(1)}},
		})
		require.NoError(t, err)

		require.NoError(t, s.UpdateByID(ctx, "docs", "x", []float32{0, 0, 1}, nil))
		got, err := s.GetDocuments(ctx, "docs", []string{"x"}, true)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, []float32{0, 0, 1}, got[0].Vector)
		assert.Equal(t, filter.Metadata{"v": filter.Int(1)}, got[0].Metadata)
		assert.Equal(t, "keep", got[0].Content)

		require.NoError(t, s.UpdateByID(ctx, "docs", "x", nil, filter.Metadata{"v": filter.Int(2)}))
		got, err = s.GetDocuments(ctx, "docs", []string{"x"}, true)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 1}, got[0].Vector)
		assert.Equal(t, filter.Metadata{"v": filter.Int(2)}, got[0].Metadata)

		assert.ErrorIs(t, s.UpdateByID(ctx, "docs", "missing", []float32{1, 0, 0}, nil), ErrNotFound)
		assert.ErrorIs(t, s.UpdateByID(ctx, "docs", "x", []float32{1}, nil), ErrDimensionMismatch)
	})

	t.Run("delete_by_id", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "x", Vector: []float32{1, 0, 0}},
			{ID: "y", Vector: []float32{0, 1, 0}},
		})
		require.NoError(t, err)

		require.NoError(t, s.DeleteByID(ctx, "docs", "x"))
		assert.ErrorIs(t, s.DeleteByID(ctx, "docs", "x"), ErrNotFound)

		got, err := s.GetDocuments(ctx, "docs", []string{"x", "y"}, false)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "y", got[0].ID)
		assert.Nil(t, got[0].Vector)
	})

	t.Run("scan_in_insertion_order", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		_, err := s.Upsert(ctx, "docs", []Document{
			{ID: "c", Vector: []float32{1, 0, 0}},
			{ID: "a", Vector: []float32{0, 1, 0}},
			{ID: "b", Vector: []float32{0, 0, 1}},
		})
		require.NoError(t, err)

		var seen []string
		err = s.Scan(ctx, "docs", func(d Document) error {
			seen = append(seen, d.ID)
			assert.Len(t, d.Vector, 3)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, seen)

		stop := errors.New("stop")
		n := 0
		err = s.Scan(ctx, "docs", func(Document) error {
			n++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, n)
	})

	t.Run("returned_documents_are_copies", func(t *testing.T) {
		s := newIndex(t, similarity.Cosine)
		vec := []float32{1, 0, 0}
		_, err := s.Upsert(ctx, "docs", []Document{{ID: "x", Vector: vec, Metadata: filter.Metadata{"k": filter.String("v")}}})
		require.NoError(t, err)
		vec[0] = 99

		results, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 1, IncludeVectors: true})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, float32(1), results[0].Vector[0])
		results[0].Vector[0] = 42
		results[0].Metadata["k"] = filter.String("changed")

		got, err := s.GetDocuments(ctx, "docs", []string{"x"}, true)
		require.NoError(t, err)
		assert.Equal(t, float32(1), got[0].Vector[0])
		assert.Equal(t, "v", mustString(t, got[0].Metadata["k"]))
	})

	t.Run("health", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.HealthCheck(ctx))
		assert.NotEmpty(t, s.BackendInfo().Name)
	})
}

func resultIDs(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func mustString(t *testing.T, v filter.Value) string {
	t.Helper()
	s, ok := v.AsString()
	require.True(t, ok, "want string value, got %s", v.Kind())
	return s
}
