package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

func TestQdrantFilter_Translatable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cond filter.Condition
	}{
		{"eq string", filter.Eq("category", filter.String("A"))},
		{"eq bool", filter.Eq("draft", filter.Bool(false))},
		{"eq number", filter.Eq("score", filter.Int(3))},
		{"ne", filter.Ne("category", filter.String("B"))},
		{"gt", filter.Gt("score", filter.Float(1.5))},
		{"lte", filter.Lte("score", filter.Int(9))},
		{"in strings", filter.In("lang", filter.String("go"), filter.String("rust"))},
		{"in mixed", filter.In("v", filter.Int(1), filter.String("one"))},
		{"not in", filter.NotIn("lang", filter.String("java"))},
		{"exists", filter.Exists("author")},
		{"not exists", filter.NotExists("author")},
		{"and", filter.And(filter.Eq("a", filter.String("x")), filter.Gt("b", filter.Int(1)))},
		{"or", filter.Or(filter.Eq("a", filter.String("x")), filter.Eq("a", filter.String("y")))},
		{"not", filter.Not(filter.Eq("a", filter.String("x")))},
		{"empty and", filter.And()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, ok := qdrantFilter(&tt.cond)
			require.True(t, ok)
			require.NotNil(t, f)
			assert.Len(t, f.GetMust(), 1)
		})
	}
}

func TestQdrantFilter_FallsBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cond filter.Condition
	}{
		{"contains", filter.Contains("title", "go")},
		{"starts with", filter.StartsWith("title", "go")},
		{"ends with", filter.EndsWith("title", "go")},
		{"string range", filter.Gt("name", filter.String("m"))},
		{"empty in", filter.In("v")},
		{"empty or", filter.Or()},
		{"nested", filter.And(filter.Eq("a", filter.String("x")), filter.Not(filter.Contains("t", "y")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := qdrantFilter(&tt.cond)
			assert.False(t, ok)
		})
	}
}

func TestQdrantFilter_Shapes(t *testing.T) {
	t.Parallel()

	f, ok := qdrantFilter(nil)
	assert.True(t, ok)
	assert.Nil(t, f)

	eq := filter.Eq("category", filter.String("A"))
	f, ok = qdrantFilter(&eq)
	require.True(t, ok)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, "metadata.category", field.GetKey())
	assert.Equal(t, "A", field.GetMatch().GetKeyword())

	num := filter.Eq("score", filter.Int(7))
	f, ok = qdrantFilter(&num)
	require.True(t, ok)
	r := f.GetMust()[0].GetField().GetRange()
	require.NotNil(t, r)
	assert.Equal(t, 7.0, r.GetGte())
	assert.Equal(t, 7.0, r.GetLte())

	ne := filter.Ne("category", filter.String("A"))
	f, ok = qdrantFilter(&ne)
	require.True(t, ok)
	inner := f.GetMust()[0].GetFilter()
	require.NotNil(t, inner)
	assert.Len(t, inner.GetMustNot(), 1)

	in := filter.In("lang", filter.String("go"), filter.String("rust"))
	f, ok = qdrantFilter(&in)
	require.True(t, ok)
	assert.Equal(t, []string{"go", "rust"}, f.GetMust()[0].GetField().GetMatch().GetKeywords().GetStrings())
}

func TestQdrantPointID_Deterministic(t *testing.T) {
	t.Parallel()

	a := qdrantPointID("doc-1").GetUuid()
	b := qdrantPointID("doc-1").GetUuid()
	c := qdrantPointID("doc-2").GetUuid()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestQdrantPayload_RoundTrip(t *testing.T) {
	t.Parallel()

	d := Document{
		ID:      "doc-1",
		Content: "hello",
		Metadata: filter.Metadata{
			"lang":  filter.String("go"),
			"stars": filter.Int(42),
			"ratio": filter.Float(0.5),
			"draft": filter.Bool(true),
		},
	}
	payload, err := qdrantPayload(d)
	require.NoError(t, err)

	got := documentFromPayload(payload)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.Content, got.Content)
	assert.Equal(t, d.Metadata, got.Metadata)

	empty := documentFromPayload(map[string]*qdrant.Value{})
	assert.Empty(t, empty.ID)
	assert.Nil(t, empty.Metadata)
}

func TestQdrantScoreAndDistance(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float32(-5), qdrantScore(similarity.Euclidean, 5))
	assert.Equal(t, float32(0.9), qdrantScore(similarity.Cosine, 0.9))
	assert.Equal(t, float32(3), qdrantScore(similarity.DotProduct, 3))

	for _, m := range similarity.Metrics {
		got, err := metricFromDistance(qdrantDistance(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := metricFromDistance(qdrant.Distance_Manhattan)
	assert.ErrorIs(t, err, similarity.ErrUnknownMetric)
}
