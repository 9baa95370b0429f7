package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_Timestamps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewMemoryStore(WithMemoryClock(func() time.Time { return now }))

	require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "i", Dimension: 2, Metric: similarity.Cosine}))
	created := now
	now = now.Add(time.Minute)
	_, err := s.Upsert(ctx, "i", []Document{{ID: "a", Vector: []float32{1, 1}}})
	require.NoError(t, err)

	stats, err := s.DescribeIndex(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, created, stats.CreatedAt)
	assert.Equal(t, now, stats.UpdatedAt)
}

func TestMemoryStore_ConcurrentReadersAndWriters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "i", Dimension: 2, Metric: similarity.DotProduct}))
	require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "j", Dimension: 2, Metric: similarity.DotProduct}))

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 100 {
				index := "i"
				if i%2 == 1 {
					index = "j"
				}
				_, err := s.Upsert(ctx, index, []Document{{ID: fmt.Sprintf("w%d-%d", w, i), Vector: []float32{float32(i), 1}}})
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				results, err := s.Query(ctx, "i", Query{Vector: []float32{1, 1}, TopK: 5})
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(results), 5)
			}
		}()
	}
	wg.Wait()

	for _, name := range []string{"i", "j"} {
		stats, err := s.DescribeIndex(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, 200, stats.VectorCount)
	}
}

func TestMemoryStore_WritesAfterDeleteIndexFail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "i", Dimension: 2, Metric: similarity.Cosine}))
	_, err := s.Upsert(ctx, "i", []Document{{ID: "a", Vector: []float32{1, 0}}})
	require.NoError(t, err)

	// A writer that looked the index up just before it was deleted.
	idx, err := s.index("i")
	require.NoError(t, err)
	require.NoError(t, s.DeleteIndex(ctx, "i"))

	now := time.Now()
	assert.ErrorIs(t, idx.upsert([]Document{{ID: "b", Vector: []float32{0, 1}}}, now), ErrIndexNotFound)
	assert.ErrorIs(t, idx.update("a", []float32{0, 1}, nil, now), ErrIndexNotFound)
	assert.ErrorIs(t, idx.remove("a", now), ErrIndexNotFound)
	assert.ErrorIs(t, idx.rlock(), ErrIndexNotFound)

	// Recreating the name yields a fresh, empty index.
	require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "i", Dimension: 2, Metric: similarity.Cosine}))
	stats, err := s.DescribeIndex(ctx, "i")
	require.NoError(t, err)
	assert.Zero(t, stats.VectorCount)
}

func TestMemoryStore_DeeplyNestedFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "i", Dimension: 2, Metric: similarity.Cosine}))
	_, err := s.Upsert(ctx, "i", []Document{
		{ID: "a", Vector: []float32{1, 0}, Metadata: filter.Metadata{"c": filter.String("A")}},
		{ID: "b", Vector: []float32{0, 1}, Metadata: filter.Metadata{"c": filter.String("B")}},
	})
	require.NoError(t, err)

	f := filter.Eq("c", filter.String("A"))
	for range 70 {
		f = filter.And(f)
	}
	results, err := s.Query(ctx, "i", Query{Vector: []float32{1, 1}, TopK: 10, Filter: &f})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestMemoryStore_CanceledQuery(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "i", Dimension: 1, Metric: similarity.DotProduct}))
	docs := make([]Document, 5000)
	for i := range docs {
		docs[i] = Document{ID: fmt.Sprint(i), Vector: []float32{float32(i)}}
	}
	_, err := s.Upsert(ctx, "i", docs)
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Query(canceled, "i", Query{Vector: []float32{1}, TopK: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromColumns(t *testing.T) {
	t.Parallel()

	_, err := FromColumns([][]float32{{1}, {2}}, []string{"a"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	docs, err := FromColumns([][]float32{{1}, {2}}, []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", docs[1].ID)
	assert.Equal(t, []float32{2}, docs[1].Vector)
}

func TestVectorEncoding(t *testing.T) {
	t.Parallel()

	v := []float32{1.5, -2, 0, 3.25}
	buf := EncodeVector(v)
	assert.Len(t, buf, 16)
	got, err := DecodeVector(buf)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestRanker_KeepsBest(t *testing.T) {
	t.Parallel()

	docs := []Document{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	r := newRanker(2)
	for i, score := range []float32{0.1, 0.9, 0.5, 0.9} {
		r.offer(candidate{score: score, seq: int64(i), doc: &docs[i]})
	}
	assert.Equal(t, []string{"b", "d"}, resultIDs(r.results(false)))
}
