package vectorstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

func TestPGScore(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.75, pgScore(similarity.Cosine, 0.25), 1e-6)
	assert.Equal(t, float32(0), pgScore(similarity.Cosine, math.NaN()))
	assert.Equal(t, float32(-5), pgScore(similarity.Euclidean, 5))
	// <#> yields the negated inner product, so a dot product of 25 arrives as -25.
	assert.Equal(t, float32(25), pgScore(similarity.DotProduct, -25))
}

func TestPGDistanceOperator(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "<=>", pgDistanceOperator(similarity.Cosine))
	assert.Equal(t, "<->", pgDistanceOperator(similarity.Euclidean))
	assert.Equal(t, "<#>", pgDistanceOperator(similarity.DotProduct))
}

func TestIsPGConnError(t *testing.T) {
	t.Parallel()

	assert.True(t, isPGConnError(driver.ErrBadConn))
	assert.True(t, isPGConnError(fmt.Errorf("exec: %w", &pq.Error{Code: "08006"})))
	assert.True(t, isPGConnError(&pq.Error{Code: "57P01"}))
	assert.False(t, isPGConnError(&pq.Error{Code: "23505"}))
	assert.False(t, isPGConnError(errors.New("boom")))
}

func TestJSONBMetadata(t *testing.T) {
	t.Parallel()

	md := filter.Metadata{"n": filter.Int(3), "f": filter.Float(1), "s": filter.String("x")}
	enc, err := encodeJSONB(md)
	require.NoError(t, err)
	got, err := decodeJSONB([]byte(enc.(string)))
	require.NoError(t, err)
	assert.Equal(t, md, got)

	enc, err = encodeJSONB(nil)
	require.NoError(t, err)
	assert.Nil(t, enc)
	got, err = decodeJSONB(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpenPGVector_RequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := OpenPGVector(context.Background(), PGVectorConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
