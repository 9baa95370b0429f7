package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Strategy selects how HybridRetriever fuses its two result lists.
type Strategy string

const (
	// StrategyWeightedSum adds the raw scores scaled by the method weights.
	StrategyWeightedSum Strategy = "weighted_sum"
	// StrategyRRF is Reciprocal Rank Fusion: weight / (k + rank + 1).
	StrategyRRF Strategy = "rrf"
	// StrategyConvex min-max normalises both lists, then computes
	// alpha*vector + (1-alpha)*keyword.
	StrategyConvex Strategy = "convex"
	// StrategyRankBased scores position i of n as (n-i)/n, scaled by weight.
	StrategyRankBased Strategy = "rank_based"
)

// ErrUnknownStrategy is returned for an unrecognised strategy name.
var ErrUnknownStrategy = errors.New("rag: unknown fusion strategy")

// ParseStrategy converts a strategy name, case-sensitively, into a Strategy.
// The empty string selects StrategyWeightedSum.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyWeightedSum, nil
	case StrategyWeightedSum, StrategyRRF, StrategyConvex, StrategyRankBased:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// HybridConfig controls candidate collection and fusion.
type HybridConfig struct {
	// Strategy is the fusion strategy.
	Strategy Strategy `yaml:"strategy"`

	// VectorWeight scales vector scores in weighted, RRF and rank-based fusion.
	VectorWeight float64 `yaml:"vector_weight"`

	// KeywordWeight scales keyword scores in weighted, RRF and rank-based fusion.
	KeywordWeight float64 `yaml:"keyword_weight"`

	// MinScoreThreshold drops fused results scoring below it.
	MinScoreThreshold float64 `yaml:"min_score_threshold"`

	// MaxCandidatesPerMethod is the top-k requested from each retriever.
	MaxCandidatesPerMethod int `yaml:"max_candidates_per_method"`

	// RRFK is the rank offset of Reciprocal Rank Fusion.
	RRFK float64 `yaml:"rrf_k"`

	// Alpha is the vector share of convex combination, in [0, 1].
	Alpha float64 `yaml:"alpha"`
}

// DefaultHybridConfig returns the standard fusion parameters.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Strategy:               StrategyWeightedSum,
		VectorWeight:           0.7,
		KeywordWeight:          0.3,
		MinScoreThreshold:      0.1,
		MaxCandidatesPerMethod: 100,
		RRFK:                   60,
		Alpha:                  0.5,
	}
}

// Validate reports whether c can be used for fusion.
func (c HybridConfig) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"vector_weight":       c.VectorWeight,
		"keyword_weight":      c.KeywordWeight,
		"min_score_threshold": c.MinScoreThreshold,
		"rrf_k":               c.RRFK,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("rag: %s must be a non-negative number, got %v", name, v)
		}
	}
	if c.Alpha < 0 || c.Alpha > 1 || math.IsNaN(c.Alpha) {
		return fmt.Errorf("rag: alpha must be in [0, 1], got %v", c.Alpha)
	}
	if c.MaxCandidatesPerMethod <= 0 {
		return fmt.Errorf("rag: max_candidates_per_method must be positive, got %d", c.MaxCandidatesPerMethod)
	}
	return nil
}

// HybridRetriever runs a vector and a keyword retriever concurrently and
// fuses their results into one ranking.
type HybridRetriever struct {
	vector  Retriever
	keyword Retriever
	cfg     HybridConfig
	log     *slog.Logger
}

// NewHybridRetriever constructs a HybridRetriever. A nil logger means
// slog.Default().
func NewHybridRetriever(vector, keyword Retriever, cfg HybridConfig, log *slog.Logger) (*HybridRetriever, error) {
	if vector == nil || keyword == nil {
		return nil, errors.New("rag: hybrid retriever needs both a vector and a keyword retriever")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyWeightedSum
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &HybridRetriever{vector: vector, keyword: keyword, cfg: cfg, log: log}, nil
}

// Config returns the fusion parameters.
func (h *HybridRetriever) Config() HybridConfig { return h.cfg }

// Retrieve collects MaxCandidatesPerMethod candidates from each retriever
// with the request's filter, fuses them and returns the best TopK.
func (h *HybridRetriever) Retrieve(ctx context.Context, req Request) ([]Document, error) {
	start := time.Now()
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	candidates := req
	candidates.TopK = h.cfg.MaxCandidatesPerMethod

	var vectorDocs, keywordDocs []Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorDocs, err = h.vector.Retrieve(gctx, candidates)
		return err
	})
	g.Go(func() error {
		var err error
		keywordDocs, err = h.keyword.Retrieve(gctx, candidates)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rag: hybrid retrieval: %w", err)
	}

	fused := Fuse(vectorDocs, keywordDocs, h.cfg)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	h.log.Debug("rag: hybrid retrieval",
		slog.String("strategy", string(h.cfg.Strategy)),
		slog.Int("vector_candidates", len(vectorDocs)),
		slog.Int("keyword_candidates", len(keywordDocs)),
		slog.Int("results", len(fused)),
		slog.Duration("duration", time.Since(start)),
	)
	return fused, nil
}

// Fuse combines two ranked lists under cfg. A document present in both lists
// accumulates both contributions. Results scoring below MinScoreThreshold are
// dropped; the rest are sorted by descending score, ties in order of first
// appearance (vector list first).
func Fuse(vector, keyword []Document, cfg HybridConfig) []Document {
	f := newFusion(len(vector) + len(keyword))

	switch cfg.Strategy {
	case StrategyRRF:
		for rank, d := range vector {
			f.add(d, cfg.VectorWeight/(cfg.RRFK+float64(rank)+1))
		}
		for rank, d := range keyword {
			f.add(d, cfg.KeywordWeight/(cfg.RRFK+float64(rank)+1))
		}
	case StrategyConvex:
		for _, d := range normalize(vector) {
			f.add(d, cfg.Alpha*d.Score)
		}
		for _, d := range normalize(keyword) {
			f.add(d, (1-cfg.Alpha)*d.Score)
		}
	case StrategyRankBased:
		n := float64(len(vector))
		for rank, d := range vector {
			f.add(d, cfg.VectorWeight*(n-float64(rank))/n)
		}
		n = float64(len(keyword))
		for rank, d := range keyword {
			f.add(d, cfg.KeywordWeight*(n-float64(rank))/n)
		}
	default:
		for _, d := range vector {
			f.add(d, cfg.VectorWeight*d.Score)
		}
		for _, d := range keyword {
			f.add(d, cfg.KeywordWeight*d.Score)
		}
	}
	return f.results(cfg.MinScoreThreshold)
}

// normalize min-max scales scores into [0, 1]. A list whose scores are all
// equal is returned unchanged.
func normalize(docs []Document) []Document {
	if len(docs) == 0 {
		return docs
	}
	lo, hi := docs[0].Score, docs[0].Score
	for _, d := range docs[1:] {
		lo = math.Min(lo, d.Score)
		hi = math.Max(hi, d.Score)
	}
	span := hi - lo
	if span == 0 {
		return docs
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		d.Score = (d.Score - lo) / span
		out[i] = d
	}
	return out
}

// fusion accumulates scores per document id in first-appearance order.
type fusion struct {
	order []Document
	pos   map[string]int
}

func newFusion(n int) *fusion {
	return &fusion{order: make([]Document, 0, n), pos: make(map[string]int, n)}
}

func (f *fusion) add(d Document, score float64) {
	if i, ok := f.pos[d.ID]; ok {
		f.order[i].Score += score
		return
	}
	d.Score = score
	f.pos[d.ID] = len(f.order)
	f.order = append(f.order, d)
}

func (f *fusion) results(threshold float64) []Document {
	out := f.order[:0]
	for _, d := range f.order {
		if d.Score >= threshold {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
