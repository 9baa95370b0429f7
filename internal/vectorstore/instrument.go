package vectorstore

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/54b3r/ragcore-go/internal/cache"
	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/perf"
)

// Instrumented decorates a Store with latency tracking and an optional
// query-result cache. Every write to an index drops that index's cached
// results.
type Instrumented struct {
	next    Store
	monitor *perf.Monitor
	results *cache.LRU[string, []Result]
	log     *slog.Logger

	// genMu guards gens. A query fills the cache only if its index's
	// generation did not move while the backend was answering.
	genMu sync.Mutex
	gens  map[string]uint64
}

// InstrumentOption customises an Instrumented store.
type InstrumentOption func(*Instrumented)

// WithQueryCache caches query results under cfg. Without it every query
// reaches the backend.
func WithQueryCache(cfg cache.Config) InstrumentOption {
	return func(s *Instrumented) {
		cfg = cfg.WithDefaults()
		lru, err := cache.New[string, []Result](cfg.MaxEntries, cfg.TTL)
		if err != nil {
			s.log.Warn("vectorstore: query cache disabled", slog.String("error", err.Error()))
			return
		}
		s.results = lru
	}
}

// WithMonitor records operations into m instead of a private monitor.
func WithMonitor(m *perf.Monitor) InstrumentOption {
	return func(s *Instrumented) {
		if m != nil {
			s.monitor = m
		}
	}
}

// WithInstrumentLogger sets the logger used for failed operations.
func WithInstrumentLogger(log *slog.Logger) InstrumentOption {
	return func(s *Instrumented) {
		if log != nil {
			s.log = log
		}
	}
}

// Instrument wraps next.
func Instrument(next Store, opts ...InstrumentOption) *Instrumented {
	s := &Instrumented{next: next, monitor: perf.NewMonitor(), log: slog.Default(), gens: make(map[string]uint64)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unwrap returns the decorated store.
func (s *Instrumented) Unwrap() Store { return s.next }

// PerformanceMetrics returns the aggregated operation statistics.
func (s *Instrumented) PerformanceMetrics() perf.Metrics { return s.monitor.Metrics() }

// Monitor returns the monitor operations are recorded into.
func (s *Instrumented) Monitor() *perf.Monitor { return s.monitor }

// CacheStats returns the query cache counters. ok is false when caching is
// disabled.
func (s *Instrumented) CacheStats() (stats cache.Stats, ok bool) {
	if s.results == nil {
		return cache.Stats{}, false
	}
	return s.results.Stats(), true
}

// CreateIndex implements Store.
func (s *Instrumented) CreateIndex(ctx context.Context, cfg IndexConfig) (err error) {
	defer s.observe("create_index", time.Now(), &err)
	defer s.invalidate(cfg.Name)
	return s.next.CreateIndex(ctx, cfg)
}

// DescribeIndex implements Store.
func (s *Instrumented) DescribeIndex(ctx context.Context, name string) (_ IndexStats, err error) {
	defer s.observe("describe_index", time.Now(), &err)
	return s.next.DescribeIndex(ctx, name)
}

// ListIndexes implements Store.
func (s *Instrumented) ListIndexes(ctx context.Context) (_ []string, err error) {
	defer s.observe("list_indexes", time.Now(), &err)
	return s.next.ListIndexes(ctx)
}

// DeleteIndex implements Store.
func (s *Instrumented) DeleteIndex(ctx context.Context, name string) (err error) {
	defer s.observe("delete_index", time.Now(), &err)
	defer s.invalidate(name)
	return s.next.DeleteIndex(ctx, name)
}

// Upsert implements Store.
func (s *Instrumented) Upsert(ctx context.Context, index string, docs []Document) (_ []string, err error) {
	defer s.observe("upsert", time.Now(), &err)
	defer s.invalidate(index)
	return s.next.Upsert(ctx, index, docs)
}

// Query implements Store. Cached results are returned as copies.
func (s *Instrumented) Query(ctx context.Context, index string, q Query) (_ []Result, err error) {
	defer s.observe("query", time.Now(), &err)

	if s.results == nil {
		return s.next.Query(ctx, index, q)
	}
	key := queryKey(index, q)
	if hit, ok := s.results.Get(key); ok {
		return CloneResults(hit), nil
	}
	gen := s.generation(index)
	results, err := s.next.Query(ctx, index, q)
	if err != nil {
		return nil, err
	}
	s.fill(index, gen, key, results)
	return results, nil
}

// GetDocuments implements Store.
func (s *Instrumented) GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) (_ []Document, err error) {
	defer s.observe("get_documents", time.Now(), &err)
	return s.next.GetDocuments(ctx, index, ids, includeVectors)
}

// UpdateByID implements Store.
func (s *Instrumented) UpdateByID(ctx context.Context, index, id string, vector []float32, metadata filter.Metadata) (err error) {
	defer s.observe("update_by_id", time.Now(), &err)
	defer s.invalidate(index)
	return s.next.UpdateByID(ctx, index, id, vector, metadata)
}

// DeleteByID implements Store.
func (s *Instrumented) DeleteByID(ctx context.Context, index, id string) (err error) {
	defer s.observe("delete_by_id", time.Now(), &err)
	defer s.invalidate(index)
	return s.next.DeleteByID(ctx, index, id)
}

// Scan implements Store.
func (s *Instrumented) Scan(ctx context.Context, index string, fn func(Document) error) (err error) {
	defer s.observe("scan", time.Now(), &err)
	return s.next.Scan(ctx, index, fn)
}

// HealthCheck implements Store.
func (s *Instrumented) HealthCheck(ctx context.Context) error { return s.next.HealthCheck(ctx) }

// BackendInfo implements Store.
func (s *Instrumented) BackendInfo() BackendInfo { return s.next.BackendInfo() }

// Close implements Store.
func (s *Instrumented) Close() error {
	if s.results != nil {
		s.results.Clear()
	}
	return s.next.Close()
}

func (s *Instrumented) observe(op string, start time.Time, errp *error) {
	err := *errp
	s.monitor.Observe(start, err)
	if err != nil {
		s.log.Debug("vectorstore: operation failed",
			slog.String("op", op),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Instrumented) generation(index string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[index]
}

// fill caches results read at generation gen, unless a write to index has
// invalidated it since.
func (s *Instrumented) fill(index string, gen uint64, key string, results []Result) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[index] != gen {
		return
	}
	s.results.Set(key, CloneResults(results))
}

// invalidate drops every cached result of index and moves its generation so
// queries still in flight do not cache what they read. It runs after every
// write, failed ones included.
func (s *Instrumented) invalidate(index string) {
	if s.results == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[index]++
	prefix := index + "\x00"
	s.results.RemoveFunc(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// queryKey identifies a query. Index names cannot contain NUL, which keeps
// the index prefix unambiguous.
func queryKey(index string, q Query) string {
	var sb strings.Builder
	sb.WriteString(index)
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(q.TopK))
	if q.IncludeVectors {
		sb.WriteString("+v")
	}
	sb.WriteByte(0)
	sb.WriteString(q.Filter.String())
	sb.WriteByte(0)
	sb.Write(EncodeVector(q.Vector))
	return sb.String()
}
