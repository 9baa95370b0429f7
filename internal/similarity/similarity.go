// Package similarity implements the vector metrics used to rank query
// results. Every metric is oriented so that a larger score is a better match.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownMetric is returned by ParseMetric for unrecognised names.
var ErrUnknownMetric = errors.New("similarity: unknown metric")

// Metric selects how a query vector is scored against stored vectors.
type Metric uint8

const (
	// Cosine is the cosine of the angle between the vectors, in [-1, 1].
	// A zero-magnitude vector scores 0.
	Cosine Metric = iota + 1
	// Euclidean is the negated L2 distance, so identical vectors score 0
	// and everything else scores below it.
	Euclidean
	// DotProduct is the raw inner product.
	DotProduct
)

// Metrics lists every supported metric.
var Metrics = []Metric{Cosine, Euclidean, DotProduct}

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	case DotProduct:
		return "dot_product"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	return m >= Cosine && m <= DotProduct
}

// ParseMetric resolves a metric name. Matching is case-insensitive and
// accepts common aliases ("l2", "dot", "ip").
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "cos":
		return Cosine, nil
	case "euclidean", "euclid", "l2":
		return Euclidean, nil
	case "dot_product", "dotproduct", "dot", "ip", "inner_product":
		return DotProduct, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Score computes the metric between a and b. The vectors must have the same
// length; callers validate dimensions before scoring.
func (m Metric) Score(a, b []float32) float32 {
	switch m {
	case Cosine:
		return CosineSimilarity(a, b)
	case Euclidean:
		return -EuclideanDistance(a, b)
	case DotProduct:
		return Dot(a, b)
	default:
		return 0
	}
}

// Dot returns the inner product of a and b.
func Dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// CosineSimilarity returns dot(a,b) / (|a| |b|), or 0 when either vector has
// zero magnitude.
func CosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}
