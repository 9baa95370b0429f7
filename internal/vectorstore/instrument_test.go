package vectorstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragcore-go/internal/cache"
	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

// countingStore counts queries that reach the backend.
type countingStore struct {
	Store
	queries int
}

func (c *countingStore) Query(ctx context.Context, index string, q Query) ([]Result, error) {
	c.queries++
	return c.Store.Query(ctx, index, q)
}

// stallingStore holds its first Query after the backend has answered until
// release is closed.
type stallingStore struct {
	Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *stallingStore) Query(ctx context.Context, index string, q Query) ([]Result, error) {
	results, err := s.Store.Query(ctx, index, q)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return results, err
}

func newInstrumented(t *testing.T) (*Instrumented, *countingStore) {
	t.Helper()
	backend := &countingStore{Store: NewMemoryStore()}
	s := Instrument(backend, WithQueryCache(cache.Config{MaxEntries: 16}))
	require.NoError(t, s.CreateIndex(context.Background(), IndexConfig{Name: "i", Dimension: 2, Metric: similarity.Cosine}))
	_, err := s.Upsert(context.Background(), "i", []Document{
		{ID: "a", Vector: []float32{1, 0}, Metadata: filter.Metadata{"k": filter.String("x")}},
		{ID: "b", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	return s, backend
}

func TestInstrumented_Contract(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(*testing.T) Store {
		return Instrument(NewMemoryStore(), WithQueryCache(cache.Config{MaxEntries: 8}))
	})
}

func TestInstrumented_CachesQueries(t *testing.T) {
	t.Parallel()
	s, backend := newInstrumented(t)
	ctx := context.Background()
	q := Query{Vector: []float32{1, 0}, TopK: 1}

	first, err := s.Query(ctx, "i", q)
	require.NoError(t, err)
	second, err := s.Query(ctx, "i", q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.queries)

	stats, ok := s.CacheStats()
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.CacheHits)

	// A different filter is a different key.
	f := filter.Eq("k", filter.String("x"))
	_, err = s.Query(ctx, "i", Query{Vector: []float32{1, 0}, TopK: 1, Filter: &f})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.queries)
}

func TestInstrumented_WritesInvalidate(t *testing.T) {
	t.Parallel()
	s, backend := newInstrumented(t)
	ctx := context.Background()
	q := Query{Vector: []float32{0, 1}, TopK: 1}

	results, err := s.Query(ctx, "i", q)
	require.NoError(t, err)
	assert.Equal(t, "b", results[0].ID)

	_, err = s.Upsert(ctx, "i", []Document{{ID: "c", Vector: []float32{0, 2}}})
	require.NoError(t, err)
	require.NoError(t, s.DeleteByID(ctx, "i", "b"))

	results, err = s.Query(ctx, "i", q)
	require.NoError(t, err)
	assert.Equal(t, "c", results[0].ID)
	assert.Equal(t, 2, backend.queries)
}

func TestInstrumented_CachedResultsAreCopies(t *testing.T) {
	t.Parallel()
	s, _ := newInstrumented(t)
	ctx := context.Background()
	q := Query{Vector: []float32{1, 0}, TopK: 1, IncludeVectors: true}

	results, err := s.Query(ctx, "i", q)
	require.NoError(t, err)
	results[0].Vector[0] = 42
	results[0].Metadata["k"] = filter.String("mutated")

	again, err := s.Query(ctx, "i", q)
	require.NoError(t, err)
	assert.Equal(t, float32(1), again[0].Vector[0])
	assert.Equal(t, filter.String("x"), again[0].Metadata["k"])
}

func TestInstrumented_RecordsOperations(t *testing.T) {
	t.Parallel()
	s, _ := newInstrumented(t)

	_, err := s.Query(context.Background(), "missing", Query{Vector: []float32{1, 0}, TopK: 1})
	assert.ErrorIs(t, err, ErrIndexNotFound)

	m := s.PerformanceMetrics()
	// create_index, upsert and the failed query.
	assert.Equal(t, uint64(3), m.TotalOperations)
	assert.Equal(t, uint64(1), m.FailedOperations)
}

func TestInstrumented_NoCache(t *testing.T) {
	t.Parallel()
	s := Instrument(NewMemoryStore())
	_, ok := s.CacheStats()
	assert.False(t, ok)
}

func TestInstrumented_WriteDuringQueryIsNotMasked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := &stallingStore{Store: NewMemoryStore(), read: make(chan struct{}), release: make(chan struct{})}
	s := Instrument(backend, WithQueryCache(cache.Config{MaxEntries: 16}))
	require.NoError(t, s.CreateIndex(ctx, IndexConfig{Name: "i", Dimension: 2, Metric: similarity.Cosine}))
	_, err := s.Upsert(ctx, "i", []Document{{ID: "a", Vector: []float32{1, 0}}})
	require.NoError(t, err)

	q := Query{Vector: []float32{1, 0}, TopK: 10}
	done := make(chan []Result)
	go func() {
		results, _ := s.Query(ctx, "i", q)
		done <- results
	}()

	<-backend.read
	_, err = s.Upsert(ctx, "i", []Document{{ID: "b", Vector: []float32{0, 1}}})
	require.NoError(t, err)
	close(backend.release)
	assert.Len(t, <-done, 1)

	results, err := s.Query(ctx, "i", q)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
