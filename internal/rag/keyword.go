package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/54b3r/ragcore-go/internal/bm25"
	"github.com/54b3r/ragcore-go/internal/cache"
	"github.com/54b3r/ragcore-go/internal/perf"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// KeywordIndexes keeps one BM25 retriever per vector-store index, built on
// demand from the index's stored content. Built retrievers live in an LRU
// cache; writers call Invalidate so the next search rebuilds from the store.
type KeywordIndexes struct {
	store   vectorstore.Store
	cfg     bm25.Config
	built   *cache.LRU[string, *bm25.Retriever]
	monitor *perf.Monitor
	log     *slog.Logger

	// buildMu serialises builds so concurrent misses scan the store once.
	buildMu sync.Mutex

	// genMu guards gens, bumped by Invalidate. A retriever is cached only
	// if its index's generation did not move during the scan.
	genMu sync.Mutex
	gens  map[string]uint64
}

// KeywordOption customises KeywordIndexes.
type KeywordOption func(*KeywordIndexes)

// WithKeywordLogger sets the logger passed to every built retriever.
func WithKeywordLogger(log *slog.Logger) KeywordOption {
	return func(k *KeywordIndexes) {
		if log != nil {
			k.log = log
		}
	}
}

// WithKeywordMonitor records BM25 searches into m.
func WithKeywordMonitor(m *perf.Monitor) KeywordOption {
	return func(k *KeywordIndexes) { k.monitor = m }
}

// NewKeywordIndexes returns an empty set of keyword indexes over store.
func NewKeywordIndexes(store vectorstore.Store, cfg bm25.Config, cacheCfg cache.Config, opts ...KeywordOption) (*KeywordIndexes, error) {
	if store == nil {
		return nil, errors.New("rag: store must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cacheCfg = cacheCfg.WithDefaults()
	built, err := cache.New[string, *bm25.Retriever](cacheCfg.MaxEntries, cacheCfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("rag: keyword cache: %w", err)
	}
	k := &KeywordIndexes{store: store, cfg: cfg, built: built, log: slog.Default(), gens: make(map[string]uint64)}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Retriever returns the BM25 retriever for index, building it when it is
// not cached.
func (k *KeywordIndexes) Retriever(ctx context.Context, index string) (*bm25.Retriever, error) {
	if r, ok := k.built.Get(index); ok {
		return r, nil
	}

	k.buildMu.Lock()
	defer k.buildMu.Unlock()
	if r, ok := k.built.Get(index); ok {
		return r, nil
	}

	k.genMu.Lock()
	gen := k.gens[index]
	k.genMu.Unlock()

	start := time.Now()
	var docs []bm25.Document
	err := k.store.Scan(ctx, index, func(d vectorstore.Document) error {
		if d.Content != "" {
			docs = append(docs, bm25.Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rag: keyword index %q: %w", index, err)
	}

	r, err := bm25.New(docs, k.cfg, bm25.WithLogger(k.log), bm25.WithMonitor(k.monitor))
	if err != nil {
		return nil, fmt.Errorf("rag: keyword index %q: %w", index, err)
	}
	k.genMu.Lock()
	if k.gens[index] == gen {
		k.built.Set(index, r)
	}
	k.genMu.Unlock()
	k.log.Debug("rag: keyword index built",
		slog.String("index", index),
		slog.Int("documents", len(docs)),
		slog.Duration("duration", time.Since(start)),
	)
	return r, nil
}

// Invalidate drops the built retriever of index. A build already scanning
// the index still answers its caller but is not cached.
func (k *KeywordIndexes) Invalidate(index string) {
	k.genMu.Lock()
	defer k.genMu.Unlock()
	k.gens[index]++
	k.built.Remove(index)
}

// Search runs a BM25 search over index.
func (k *KeywordIndexes) Search(ctx context.Context, index string, req Request) ([]Document, error) {
	if err := req.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("rag: %w: %v", vectorstore.ErrInvalidInput, err)
	}
	r, err := k.Retriever(ctx, index)
	if err != nil {
		return nil, err
	}
	return KeywordSearch(r, req), nil
}

// KeywordSearch runs req against a built BM25 retriever. With a filter,
// every scored document is considered before the limit is applied.
func KeywordSearch(r *bm25.Retriever, req Request) []Document {
	limit := req.TopK
	if limit <= 0 {
		limit = DefaultTopK
	}
	searchLimit := limit
	if req.Filter != nil {
		searchLimit = r.Len()
	}

	docs := make([]Document, 0, limit)
	for _, res := range r.Search(req.Query, searchLimit) {
		if req.Filter != nil && !req.Filter.Matches(res.Document.Metadata) {
			continue
		}
		docs = append(docs, Document{
			ID:       res.Document.ID,
			Content:  res.Document.Content,
			Metadata: res.Document.Metadata.Clone(),
			Score:    res.Score,
		})
		if len(docs) == limit {
			break
		}
	}
	return docs
}

// Stats returns the BM25 corpus statistics of index.
func (k *KeywordIndexes) Stats(ctx context.Context, index string) (bm25.Stats, error) {
	r, err := k.Retriever(ctx, index)
	if err != nil {
		return bm25.Stats{}, err
	}
	return r.Stats(), nil
}

// CacheStats reports how often searches found a built retriever.
func (k *KeywordIndexes) CacheStats() cache.Stats { return k.built.Stats() }

// For returns a Retriever bound to index.
func (k *KeywordIndexes) For(index string) Retriever {
	return keywordRetriever{indexes: k, index: index}
}

type keywordRetriever struct {
	indexes *KeywordIndexes
	index   string
}

func (r keywordRetriever) Retrieve(ctx context.Context, req Request) ([]Document, error) {
	return r.indexes.Search(ctx, r.index, req)
}
