package vectorstore

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/54b3r/ragcore-go/internal/filter"
)

// MemoryStore is an in-process Store. Queries scan every document of the
// index exactly; nothing survives the process.
type MemoryStore struct {
	// mu guards the indexes map itself. Each index carries its own lock.
	mu      sync.RWMutex
	indexes map[string]*memIndex

	log *slog.Logger
	now func() time.Time
}

type memIndex struct {
	mu        sync.RWMutex
	cfg       IndexConfig
	docs      map[string]*memDoc
	nextSeq   int64
	createdAt time.Time
	updatedAt time.Time
	// deleted is set under mu once the index leaves the store, so callers
	// that looked it up before the delete fail instead of writing to it.
	deleted bool
}

type memDoc struct {
	doc Document
	seq int64
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryLogger sets the store's logger.
func WithMemoryLogger(log *slog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMemoryClock overrides the clock used for index timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		indexes: make(map[string]*memIndex),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateIndex implements Store.
func (s *MemoryStore) CreateIndex(_ context.Context, cfg IndexConfig) error {
	if err := validateIndexConfig(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[cfg.Name]; ok {
		return indexExists(cfg.Name)
	}
	now := s.now()
	s.indexes[cfg.Name] = &memIndex{
		cfg:       cfg,
		docs:      make(map[string]*memDoc),
		createdAt: now,
		updatedAt: now,
	}
	s.log.Debug("vectorstore: index created",
		slog.String("index", cfg.Name),
		slog.Int("dimension", cfg.Dimension),
		slog.String("metric", cfg.Metric.String()),
	)
	return nil
}

// DescribeIndex implements Store.
func (s *MemoryStore) DescribeIndex(_ context.Context, name string) (IndexStats, error) {
	idx, err := s.index(name)
	if err != nil {
		return IndexStats{}, err
	}

	if err := idx.rlock(); err != nil {
		return IndexStats{}, err
	}
	defer idx.mu.RUnlock()

	var size int64
	for _, d := range idx.docs {
		size += docSize(d.doc)
	}
	return IndexStats{
		Name:           idx.cfg.Name,
		Dimension:      idx.cfg.Dimension,
		Metric:         idx.cfg.Metric,
		VectorCount:    len(idx.docs),
		IndexSizeBytes: size,
		CreatedAt:      idx.createdAt,
		UpdatedAt:      idx.updatedAt,
	}, nil
}

// ListIndexes implements Store.
func (s *MemoryStore) ListIndexes(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// DeleteIndex implements Store.
func (s *MemoryStore) DeleteIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[name]
	if !ok {
		return indexNotFound(name)
	}
	delete(s.indexes, name)
	idx.markDeleted()
	s.log.Debug("vectorstore: index deleted", slog.String("index", name))
	return nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, index string, docs []Document) ([]string, error) {
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}

	batch, ids, err := prepareBatch(idx.cfg.Dimension, docs)
	if err != nil {
		return nil, err
	}

	if err := idx.upsert(batch, s.now()); err != nil {
		return nil, err
	}
	return ids, nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, index string, q Query) ([]Result, error) {
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(idx.cfg.Dimension, q); err != nil {
		return nil, err
	}

	if err := idx.rlock(); err != nil {
		return nil, err
	}
	defer idx.mu.RUnlock()

	r := newRanker(q.TopK)
	n := 0
	for _, d := range idx.docs {
		if n++; n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !q.Filter.Matches(d.doc.Metadata) {
			continue
		}
		r.offer(candidate{
			score: idx.cfg.Metric.Score(q.Vector, d.doc.Vector),
			seq:   d.seq,
			doc:   &d.doc,
		})
	}
	return r.results(q.IncludeVectors), nil
}

// GetDocuments implements Store.
func (s *MemoryStore) GetDocuments(_ context.Context, index string, ids []string, includeVectors bool) ([]Document, error) {
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}

	if err := idx.rlock(); err != nil {
		return nil, err
	}
	defer idx.mu.RUnlock()

	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := idx.docs[id]; ok {
			out = append(out, cloneDocument(d.doc, includeVectors))
		}
	}
	return out, nil
}

// UpdateByID implements Store.
func (s *MemoryStore) UpdateByID(_ context.Context, index, id string, vector []float32, metadata filter.Metadata) error {
	idx, err := s.index(index)
	if err != nil {
		return err
	}
	if vector != nil {
		if err := checkVector(idx.cfg.Dimension, vector); err != nil {
			return err
		}
	}

	return idx.update(id, vector, metadata, s.now())
}

// DeleteByID implements Store.
func (s *MemoryStore) DeleteByID(_ context.Context, index, id string) error {
	idx, err := s.index(index)
	if err != nil {
		return err
	}

	return idx.remove(id, s.now())
}

// Scan implements Store. fn runs on a snapshot taken under the index read
// lock, so it may call back into the store.
func (s *MemoryStore) Scan(ctx context.Context, index string, fn func(Document) error) error {
	idx, err := s.index(index)
	if err != nil {
		return err
	}

	if err := idx.rlock(); err != nil {
		return err
	}
	snapshot := make([]memDoc, 0, len(idx.docs))
	for _, d := range idx.docs {
		snapshot = append(snapshot, memDoc{doc: cloneDocument(d.doc, true), seq: d.seq})
	}
	idx.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].seq < snapshot[j].seq })
	for _, d := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d.doc); err != nil {
			return err
		}
	}
	return nil
}

// HealthCheck implements Store. The memory store is always healthy.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// BackendInfo implements Store.
func (s *MemoryStore) BackendInfo() BackendInfo {
	return BackendInfo{Name: "memory", Version: "1", NativeFiltering: true}
}

// Close implements Store. It drops every index.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range s.indexes {
		idx.markDeleted()
	}
	s.indexes = make(map[string]*memIndex)
	return nil
}

func (s *MemoryStore) index(name string) (*memIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexes[name]
	if !ok {
		return nil, indexNotFound(name)
	}
	return idx, nil
}

func (idx *memIndex) markDeleted() {
	idx.mu.Lock()
	idx.deleted = true
	idx.mu.Unlock()
}

// rlock read-locks idx. It fails, leaving idx unlocked, once the index has
// been deleted.
func (idx *memIndex) rlock() error {
	idx.mu.RLock()
	if idx.deleted {
		idx.mu.RUnlock()
		return indexNotFound(idx.cfg.Name)
	}
	return nil
}

func (idx *memIndex) upsert(batch []Document, now time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.deleted {
		return indexNotFound(idx.cfg.Name)
	}

	for _, d := range batch {
		if existing, ok := idx.docs[d.ID]; ok {
			existing.doc = d
			continue
		}
		idx.nextSeq++
		idx.docs[d.ID] = &memDoc{doc: d, seq: idx.nextSeq}
	}
	if len(batch) > 0 {
		idx.updatedAt = now
	}
	return nil
}

func (idx *memIndex) update(id string, vector []float32, metadata filter.Metadata, now time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.deleted {
		return indexNotFound(idx.cfg.Name)
	}

	d, ok := idx.docs[id]
	if !ok {
		return docNotFound(idx.cfg.Name, id)
	}
	if vector != nil {
		d.doc.Vector = cloneVector(vector)
	}
	if metadata != nil {
		d.doc.Metadata = metadata.Clone()
	}
	idx.updatedAt = now
	return nil
}

func (idx *memIndex) remove(id string, now time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.deleted {
		return indexNotFound(idx.cfg.Name)
	}

	if _, ok := idx.docs[id]; !ok {
		return docNotFound(idx.cfg.Name, id)
	}
	delete(idx.docs, id)
	idx.updatedAt = now
	return nil
}

// docSize approximates the bytes held by one document.
func docSize(d Document) int64 {
	size := int64(4*len(d.Vector) + len(d.ID) + len(d.Content))
	for k, v := range d.Metadata {
		size += int64(len(k)) + 8
		if s, ok := v.AsString(); ok {
			size += int64(len(s))
		}
	}
	return size
}
