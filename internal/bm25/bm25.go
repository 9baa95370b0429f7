// Package bm25 implements an in-memory Okapi BM25 keyword retriever.
//
// A Retriever owns its document set and the term statistics derived from it.
// Statistics are rebuilt from scratch whenever documents are added or
// removed; searches run concurrently with each other and never observe a
// partially rebuilt index.
package bm25

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/perf"
)

// ErrInvalidConfig is returned by New for unusable parameters.
var ErrInvalidConfig = errors.New("bm25: invalid config")

// idfFloorRatio scales the mean positive IDF to obtain the floor applied to
// terms whose raw IDF is zero or negative (terms in half the corpus or more).
const idfFloorRatio = 0.25

// Config holds the BM25 parameters.
type Config struct {
	// K1 controls term-frequency saturation. Must not be negative.
	K1 float64 `yaml:"k1"`
	// B controls document-length normalisation, in [0, 1].
	B float64 `yaml:"b"`
	// MaxTermsPerDoc keeps only the most frequent distinct terms of each
	// document. Zero keeps every term.
	MaxTermsPerDoc int `yaml:"max_terms_per_doc"`
	// MinTermFreq is the in-document frequency a term needs to count toward
	// its document frequency. Zero is treated as one.
	MinTermFreq int `yaml:"min_term_freq"`
}

// DefaultConfig returns k1=1.2, b=0.75, at most 1000 terms per document and
// a minimum term frequency of one.
func DefaultConfig() Config {
	return Config{K1: 1.2, B: 0.75, MaxTermsPerDoc: 1000, MinTermFreq: 1}
}

// Validate reports whether c can be used to build a Retriever.
func (c Config) Validate() error {
	switch {
	case c.K1 < 0 || math.IsNaN(c.K1):
		return fmt.Errorf("%w: k1 must not be negative, got %v", ErrInvalidConfig, c.K1)
	case c.B < 0 || c.B > 1 || math.IsNaN(c.B):
		return fmt.Errorf("%w: b must be within [0, 1], got %v", ErrInvalidConfig, c.B)
	case c.MaxTermsPerDoc < 0:
		return fmt.Errorf("%w: max_terms_per_doc must not be negative, got %d", ErrInvalidConfig, c.MaxTermsPerDoc)
	case c.MinTermFreq < 0:
		return fmt.Errorf("%w: min_term_freq must not be negative, got %d", ErrInvalidConfig, c.MinTermFreq)
	}
	return nil
}

// Document is a unit of text indexed by the retriever.
type Document struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Metadata filter.Metadata `json:"metadata,omitempty"`
}

// Result is a document with its BM25 score.
type Result struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Stats summarises the current index.
type Stats struct {
	TotalDocuments        int     `json:"total_documents"`
	TotalTerms            int     `json:"total_terms"`
	AverageDocumentLength float64 `json:"average_document_length"`
	TotalTermOccurrences  int     `json:"total_term_occurrences"`
}

// Option customises a Retriever at construction.
type Option func(*Retriever)

// WithLogger sets the retriever's logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Retriever) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMonitor records every Search into m.
func WithMonitor(m *perf.Monitor) Option {
	return func(r *Retriever) { r.monitor = m }
}

// Retriever scores documents against keyword queries. It is safe for
// concurrent use.
type Retriever struct {
	cfg     Config
	log     *slog.Logger
	monitor *perf.Monitor

	mu  sync.RWMutex
	idx *index
}

// New builds a Retriever over docs. Documents sharing an ID collapse to the
// last one, kept at the position of the first.
func New(docs []Document, cfg Config, opts ...Option) (*Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinTermFreq == 0 {
		cfg.MinTermFreq = 1
	}
	r := &Retriever{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.idx = buildIndex(dedupe(nil, docs), cfg)
	return r, nil
}

// Config returns the parameters the retriever was built with.
func (r *Retriever) Config() Config { return r.cfg }

// Search tokenizes query and returns up to limit documents with a positive
// score, best first. Equal scores keep corpus order. An empty query, or one
// whose tokens all fall below MinTokenLength, returns no results.
func (r *Retriever) Search(query string, limit int) []Result {
	start := time.Now()
	defer func() { r.monitor.RecordOperation(time.Since(start), true) }()

	terms := Tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.idx

	candidates := roaring.New()
	for _, t := range terms {
		if bm, ok := idx.postings[t]; ok {
			candidates.Or(bm)
		}
	}
	if candidates.IsEmpty() {
		return nil
	}

	// Ordinals come back ascending, so appending preserves corpus order and
	// the stable sort below keeps it for ties.
	results := make([]Result, 0, candidates.GetCardinality())
	for _, ord := range candidates.ToArray() {
		score := idx.score(int(ord), terms, r.cfg)
		if score > 0 {
			results = append(results, Result{Document: idx.docs[ord], Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// AddDocuments adds docs and rebuilds the index. A document whose ID is
// already indexed replaces the existing one in place.
func (r *Retriever) AddDocuments(docs []Document) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.idx = buildIndex(dedupe(r.idx.docs, docs), r.cfg)
	r.log.Debug("bm25: documents added", slog.Int("added", len(docs)), slog.Int("total", len(r.idx.docs)))
}

// RemoveDocuments removes every document whose ID is in ids, rebuilds the
// index and returns how many were removed.
func (r *Retriever) RemoveDocuments(ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]Document, 0, len(r.idx.docs))
	for _, d := range r.idx.docs {
		if _, ok := drop[d.ID]; !ok {
			kept = append(kept, d)
		}
	}
	removed := len(r.idx.docs) - len(kept)
	r.idx = buildIndex(kept, r.cfg)
	r.log.Debug("bm25: documents removed", slog.Int("removed", removed), slog.Int("total", len(kept)))
	return removed
}

// GetDocument returns the indexed document with the given ID.
func (r *Retriever) GetDocument(id string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ord, ok := r.idx.byID[id]
	if !ok {
		return Document{}, false
	}
	return r.idx.docs[ord], true
}

// Len reports the number of indexed documents.
func (r *Retriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.idx.docs)
}

// Stats returns corpus statistics.
func (r *Retriever) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		TotalDocuments:        len(r.idx.docs),
		TotalTerms:            len(r.idx.docFreq),
		AverageDocumentLength: r.idx.avgDocLen,
		TotalTermOccurrences:  r.idx.occurrences,
	}
}

// index is an immutable snapshot of the corpus and its statistics.
type index struct {
	docs []Document
	byID map[string]int

	termFreqs []map[string]int
	docLens   []int
	docFreq   map[string]int
	idf       map[string]float64
	postings  map[string]*roaring.Bitmap

	avgDocLen   float64
	occurrences int
}

func buildIndex(docs []Document, cfg Config) *index {
	idx := &index{
		docs:      docs,
		byID:      make(map[string]int, len(docs)),
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		docFreq:   make(map[string]int),
		idf:       make(map[string]float64),
		postings:  make(map[string]*roaring.Bitmap),
	}

	total := 0
	for ord, d := range docs {
		idx.byID[d.ID] = ord
		tokens := Tokenize(d.Content)
		idx.docLens[ord] = len(tokens)
		total += len(tokens)

		tf := make(map[string]int)
		for _, t := range tokens {
			tf[t]++
		}
		tf = capTerms(tf, cfg.MaxTermsPerDoc)
		idx.termFreqs[ord] = tf

		for t, n := range tf {
			idx.occurrences += n
			bm, ok := idx.postings[t]
			if !ok {
				bm = roaring.New()
				idx.postings[t] = bm
			}
			bm.Add(uint32(ord))
			if n >= cfg.MinTermFreq {
				idx.docFreq[t]++
			}
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(total) / float64(len(docs))
	}

	n := float64(len(docs))
	var positiveSum float64
	var positive int
	for t, df := range idx.docFreq {
		v := math.Log((n - float64(df) + 0.5) / (float64(df) + 0.5))
		idx.idf[t] = v
		if v > 0 {
			positiveSum += v
			positive++
		}
	}
	floor := idfFloorRatio * math.Ln2
	if positive > 0 {
		floor = idfFloorRatio * positiveSum / float64(positive)
	}
	for t, v := range idx.idf {
		if v <= 0 {
			idx.idf[t] = floor
		}
	}
	return idx
}

// score computes the BM25 score of document ord for the query terms.
// Repeated query terms contribute once per occurrence.
func (idx *index) score(ord int, terms []string, cfg Config) float64 {
	tf := idx.termFreqs[ord]
	docLen := float64(idx.docLens[ord])

	norm := 1.0
	if idx.avgDocLen > 0 {
		norm = 1 - cfg.B + cfg.B*docLen/idx.avgDocLen
	}

	var score float64
	for _, t := range terms {
		f := float64(tf[t])
		if f == 0 {
			continue
		}
		idf, ok := idx.idf[t]
		if !ok {
			// df(t) is zero: the term never reached MinTermFreq anywhere.
			continue
		}
		score += idf * (f * (cfg.K1 + 1)) / (f + cfg.K1*norm)
	}
	return score
}

// capTerms keeps the maxTerms most frequent terms of tf. Ties break on the term
// itself so the result does not depend on map iteration order.
func capTerms(tf map[string]int, maxTerms int) map[string]int {
	if maxTerms <= 0 || len(tf) <= maxTerms {
		return tf
	}
	terms := make([]string, 0, len(tf))
	for t := range tf {
		terms = append(terms, t)
	}
	slices.SortFunc(terms, func(a, b string) int {
		if c := cmp.Compare(tf[b], tf[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	capped := make(map[string]int, maxTerms)
	for _, t := range terms[:maxTerms] {
		capped[t] = tf[t]
	}
	return capped
}

// dedupe appends docs to existing, replacing documents whose ID is already
// present instead of duplicating them.
func dedupe(existing, docs []Document) []Document {
	out := make([]Document, 0, len(existing)+len(docs))
	pos := make(map[string]int, len(existing)+len(docs))
	for _, d := range existing {
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	for _, d := range docs {
		if i, ok := pos[d.ID]; ok {
			out[i] = d
			continue
		}
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}
