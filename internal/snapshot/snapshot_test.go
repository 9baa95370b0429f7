package snapshot

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

func seedStore(t *testing.T) vectorstore.Store {
	t.Helper()
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()
	require.NoError(t, s.CreateIndex(ctx, vectorstore.IndexConfig{Name: "docs", Dimension: 3, Metric: similarity.Cosine}))
	require.NoError(t, s.CreateIndex(ctx, vectorstore.IndexConfig{Name: "empty", Dimension: 2, Metric: similarity.Euclidean}))

	docs := make([]vectorstore.Document, 0, 300)
	for i := range 300 {
		docs = append(docs, vectorstore.Document{
			Vector:   []float32{float32(i), 1, 0.5},
			Content:  "chunk",
			Metadata: filter.Metadata{"n": filter.Int(int64(i)), "w": filter.Float(0.25), "ok": filter.Bool(i%2 == 0)},
		})
	}
	docs[0].ID = "first"
	_, err := s.Upsert(ctx, "docs", docs)
	require.NoError(t, err)
	return s
}

func scanAll(t *testing.T, s vectorstore.Store, index string) []vectorstore.Document {
	t.Helper()
	var out []vectorstore.Document
	require.NoError(t, s.Scan(context.Background(), index, func(d vectorstore.Document) error {
		out = append(out, d)
		return nil
	}))
	return out
}

func TestExportImport_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := seedStore(t)

	var buf bytes.Buffer
	exported, err := Export(ctx, src, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, exported.Indexes)
	assert.Equal(t, 300, exported.Documents)
	assert.Equal(t, "memory", exported.Backend)

	dst := vectorstore.NewMemoryStore()
	imported, err := Import(ctx, dst, &buf, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, exported.Indexes, imported.Indexes)
	assert.Equal(t, exported.Documents, imported.Documents)

	names, err := dst.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "empty"}, names)

	stats, err := dst.DescribeIndex(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Dimension)
	assert.Equal(t, similarity.Euclidean, stats.Metric)
	assert.Equal(t, 0, stats.VectorCount)

	// Scan order is insertion order, so the documents line up one to one.
	assert.Equal(t, scanAll(t, src, "docs"), scanAll(t, dst, "docs"))
}

func TestImport_MergesIntoMatchingIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := Export(ctx, seedStore(t), &buf)
	require.NoError(t, err)

	dst := vectorstore.NewMemoryStore()
	require.NoError(t, dst.CreateIndex(ctx, vectorstore.IndexConfig{Name: "docs", Dimension: 3, Metric: similarity.Cosine}))
	_, err = dst.Upsert(ctx, "docs", []vectorstore.Document{{ID: "local", Vector: []float32{1, 1, 1}}})
	require.NoError(t, err)

	_, err = Import(ctx, dst, &buf, ImportOptions{})
	require.NoError(t, err)

	stats, err := dst.DescribeIndex(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 301, stats.VectorCount)
}

func TestImport_ConflictingIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := Export(ctx, seedStore(t), &buf)
	require.NoError(t, err)
	data := buf.Bytes()

	dst := vectorstore.NewMemoryStore()
	require.NoError(t, dst.CreateIndex(ctx, vectorstore.IndexConfig{Name: "docs", Dimension: 8, Metric: similarity.Cosine}))

	_, err = Import(ctx, dst, bytes.NewReader(data), ImportOptions{})
	assert.ErrorIs(t, err, vectorstore.ErrIndexAlreadyExists)

	_, err = Import(ctx, dst, bytes.NewReader(data), ImportOptions{Overwrite: true})
	require.NoError(t, err)
	stats, err := dst.DescribeIndex(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, 300, stats.VectorCount)
}

func TestImport_RejectsInvalidStreams(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	compress := func(t *testing.T, s string) []byte {
		t.Helper()
		var buf bytes.Buffer
		zw, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = zw.Write([]byte(s))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		return buf.Bytes()
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not zstd", data: []byte("plain text")},
		{name: "empty stream", data: compress(t, "")},
		{name: "no header", data: compress(t, `{"type":"index","index":{"name":"a","dimension":2,"metric":"cosine"}}`)},
		{name: "future version", data: compress(t, `{"type":"header","format":"ragcore-snapshot","version":99}`)},
		{name: "orphan document", data: compress(t,
			`{"type":"header","format":"ragcore-snapshot","version":1}`+"\n"+
				`{"type":"document","index_name":"a","document":{"id":"x","vector":[1,2]}}`)},
		{name: "unknown record", data: compress(t,
			`{"type":"header","format":"ragcore-snapshot","version":1}`+"\n"+`{"type":"bogus"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(ctx, vectorstore.NewMemoryStore(), bytes.NewReader(tt.data), ImportOptions{})
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestFileSink_SaveLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := NewFileSink(filepath.Join(t.TempDir(), "nested", "snap.jsonl.zst"))

	_, err := Load(ctx, vectorstore.NewMemoryStore(), sink, ImportOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	m, err := Save(ctx, seedStore(t), sink)
	require.NoError(t, err)
	assert.Equal(t, 300, m.Documents)

	dst := vectorstore.NewMemoryStore()
	m, err = Load(ctx, dst, sink, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Indexes)

	got, err := dst.GetDocuments(ctx, "docs", []string{"first"}, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{0, 1, 0.5}, got[0].Vector)
	assert.Equal(t, filter.Int(0), got[0].Metadata["n"])
	assert.Equal(t, filter.Float(0.25), got[0].Metadata["w"])
}

// failingStore fails every Scan.
type failingStore struct {
	vectorstore.Store
}

func (failingStore) Scan(context.Context, string, func(vectorstore.Document) error) error {
	return errors.New("disk on fire")
}

func TestFileSink_FailedSaveKeepsPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	sink := NewFileSink(filepath.Join(dir, "snap.jsonl.zst"))

	_, err := Save(ctx, seedStore(t), sink)
	require.NoError(t, err)

	_, err = Save(ctx, failingStore{Store: seedStore(t)}, sink)
	require.Error(t, err)

	// The earlier snapshot is intact and no temp files are left behind.
	dst := vectorstore.NewMemoryStore()
	m, err := Load(ctx, dst, sink, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 300, m.Documents)

	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestNewMinIOSink_RequiresEndpointAndBucket(t *testing.T) {
	t.Parallel()
	_, err := NewMinIOSink(context.Background(), MinIOConfig{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewMinIOSink(context.Background(), MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
