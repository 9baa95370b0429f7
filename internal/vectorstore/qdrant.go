package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/pool"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

// Reserved payload keys. Document metadata lives under qdrantMetadataKey so
// user fields can never collide with the reserved ones.
const (
	qdrantIDKey       = "_id"
	qdrantContentKey  = "_content"
	qdrantMetadataKey = "metadata"
)

// qdrantNamespace seeds the name-based UUIDs that map document ids onto
// Qdrant point ids.
var qdrantNamespace = uuid.MustParse("6f1c2f3e-9b7a-4c55-8d0e-2a41b7c3d9e5")

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port"`

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string `yaml:"api_key"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `yaml:"use_tls"`

	// Pool bounds the number of concurrently used Qdrant clients.
	Pool pool.Config `yaml:"pool"`
}

// QdrantStore implements Store backed by a Qdrant instance. Each index is a
// Qdrant collection.
type QdrantStore struct {
	// clients hands out Qdrant gRPC clients under the pool's admission limit.
	clients *pool.Pool[*qdrant.Client]

	// cfg holds the resolved configuration for this store.
	cfg QdrantConfig

	log *slog.Logger
	now func() time.Time

	// mu guards the caches below. Qdrant keeps neither the metric in our
	// terms nor modification times, so both are tracked in process.
	mu      sync.Mutex
	configs map[string]IndexConfig
	created map[string]time.Time
	updated map[string]time.Time
	version string
}

// QdrantOption customises a QdrantStore.
type QdrantOption func(*QdrantStore)

// WithQdrantLogger sets the store's logger.
func WithQdrantLogger(log *slog.Logger) QdrantOption {
	return func(s *QdrantStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewQdrantStore creates a QdrantStore, warms its client pool and verifies
// the server is reachable.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, opts ...QdrantOption) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Pool == (pool.Config{}) {
		cfg.Pool = pool.DefaultConfig()
	}

	s := &QdrantStore{
		cfg:     cfg,
		log:     slog.Default(),
		now:     time.Now,
		configs: make(map[string]IndexConfig),
		created: make(map[string]time.Time),
		updated: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}

	factory := func(context.Context) (*qdrant.Client, error) {
		return qdrant.NewClient(&qdrant.Config{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
			// The pool already fans requests out over several clients.
			PoolSize: 1,
		})
	}
	clients, err := pool.New[*qdrant.Client](cfg.Pool, factory,
		pool.WithCloser[*qdrant.Client](func(c *qdrant.Client) error { return c.Close() }),
		pool.WithLogger[*qdrant.Client](s.log),
		pool.WithReapInterval[*qdrant.Client](time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant: %v", ErrInvalidConfig, err)
	}
	s.clients = clients

	if err := clients.Warm(ctx); err != nil {
		_ = clients.Close()
		return nil, fmt.Errorf("%w: qdrant %s:%d: %v", ErrConnectionFailed, cfg.Host, cfg.Port, err)
	}
	if err := s.HealthCheck(ctx); err != nil {
		_ = clients.Close()
		return nil, err
	}
	return s, nil
}

// CreateIndex implements Store.
func (s *QdrantStore) CreateIndex(ctx context.Context, cfg IndexConfig) error {
	if err := validateIndexConfig(cfg); err != nil {
		return err
	}
	return s.with(ctx, "create index", func(c *qdrant.Client) error {
		exists, err := c.CollectionExists(ctx, cfg.Name)
		if err != nil {
			return err
		}
		if exists {
			return indexExists(cfg.Name)
		}
		err = c.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(cfg.Dimension),
				Distance: qdrantDistance(cfg.Metric),
			}),
		})
		if status.Code(err) == codes.AlreadyExists {
			return indexExists(cfg.Name)
		}
		if err != nil {
			return err
		}

		now := s.now()
		s.mu.Lock()
		s.configs[cfg.Name] = cfg
		s.created[cfg.Name] = now
		s.updated[cfg.Name] = now
		s.mu.Unlock()
		return nil
	})
}

// DescribeIndex implements Store.
func (s *QdrantStore) DescribeIndex(ctx context.Context, name string) (IndexStats, error) {
	var stats IndexStats
	err := s.with(ctx, "describe index", func(c *qdrant.Client) error {
		info, err := c.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		cfg, err := indexConfigFromInfo(name, info)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.configs[name] = cfg
		created, updated := s.created[name], s.updated[name]
		s.mu.Unlock()

		count := int(info.GetPointsCount())
		stats = IndexStats{
			Name:           name,
			Dimension:      cfg.Dimension,
			Metric:         cfg.Metric,
			VectorCount:    count,
			IndexSizeBytes: int64(count) * int64(4*cfg.Dimension),
			CreatedAt:      created,
			UpdatedAt:      updated,
		}
		return nil
	})
	return stats, err
}

// ListIndexes implements Store.
func (s *QdrantStore) ListIndexes(ctx context.Context) ([]string, error) {
	var names []string
	err := s.with(ctx, "list indexes", func(c *qdrant.Client) error {
		var err error
		names, err = c.ListCollections(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// DeleteIndex implements Store.
func (s *QdrantStore) DeleteIndex(ctx context.Context, name string) error {
	return s.with(ctx, "delete index", func(c *qdrant.Client) error {
		exists, err := c.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			return indexNotFound(name)
		}
		if err := c.DeleteCollection(ctx, name); err != nil {
			return err
		}
		s.forget(name)
		return nil
	})
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, index string, docs []Document) ([]string, error) {
	var ids []string
	err := s.with(ctx, "upsert", func(c *qdrant.Client) error {
		cfg, err := s.indexConfig(ctx, c, index)
		if err != nil {
			return err
		}
		batch, batchIDs, err := prepareBatch(cfg.Dimension, docs)
		if err != nil {
			return err
		}

		points := make([]*qdrant.PointStruct, 0, len(batch))
		for _, d := range batch {
			payload, err := qdrantPayload(d)
			if err != nil {
				return err
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrantPointID(d.ID),
				Vectors: qdrant.NewVectors(d.Vector...),
				Payload: payload,
			})
		}
		if len(points) > 0 {
			_, err = c.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: index,
				Wait:           qdrant.PtrOf(true),
				Points:         points,
			})
			if err != nil {
				return err
			}
			s.touch(index)
		}
		ids = batchIDs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Query implements Store. Filters Qdrant can evaluate natively are pushed
// down; the rest fall back to an exact scan of the collection.
func (s *QdrantStore) Query(ctx context.Context, index string, q Query) ([]Result, error) {
	var results []Result
	err := s.with(ctx, "query", func(c *qdrant.Client) error {
		cfg, err := s.indexConfig(ctx, c, index)
		if err != nil {
			return err
		}
		if err := validateQuery(cfg.Dimension, q); err != nil {
			return err
		}

		qf, native := qdrantFilter(q.Filter)
		if !native {
			s.log.Debug("vectorstore: qdrant filter not translatable, scanning",
				slog.String("index", index), slog.String("filter", q.Filter.String()))
			results, err = s.scanQuery(ctx, c, cfg, q)
			return err
		}

		points, err := c.Query(ctx, &qdrant.QueryPoints{
			CollectionName: index,
			Query:          qdrant.NewQuery(q.Vector...),
			Filter:         qf,
			Limit:          qdrant.PtrOf(uint64(q.TopK)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(q.IncludeVectors),
		})
		if err != nil {
			return err
		}
		results = make([]Result, 0, len(points))
		for _, p := range points {
			d := documentFromPayload(p.GetPayload())
			r := Result{
				ID:       d.ID,
				Score:    qdrantScore(cfg.Metric, p.GetScore()),
				Content:  d.Content,
				Metadata: d.Metadata,
			}
			if q.IncludeVectors {
				r.Vector = qdrantVector(p.GetVectors())
			}
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// scanQuery ranks every point of the collection in process.
func (s *QdrantStore) scanQuery(ctx context.Context, c *qdrant.Client, cfg IndexConfig, q Query) ([]Result, error) {
	r := newRanker(q.TopK)
	var seq int64
	err := s.scroll(ctx, c, cfg.Name, func(d Document) error {
		seq++
		if q.Filter.Matches(d.Metadata) {
			r.offer(candidate{score: cfg.Metric.Score(q.Vector, d.Vector), seq: seq, doc: &d})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.results(q.IncludeVectors), nil
}

// GetDocuments implements Store.
func (s *QdrantStore) GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]Document, error) {
	var out []Document
	err := s.with(ctx, "get documents", func(c *qdrant.Client) error {
		if _, err := s.indexConfig(ctx, c, index); err != nil {
			return err
		}
		found, err := s.get(ctx, c, index, ids, includeVectors)
		if err != nil {
			return err
		}
		out = make([]Document, 0, len(found))
		for _, id := range ids {
			if d, ok := found[id]; ok {
				out = append(out, d)
				delete(found, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateByID implements Store.
func (s *QdrantStore) UpdateByID(ctx context.Context, index, id string, vector []float32, metadata filter.Metadata) error {
	return s.with(ctx, "update", func(c *qdrant.Client) error {
		cfg, err := s.indexConfig(ctx, c, index)
		if err != nil {
			return err
		}
		if vector != nil {
			if err := checkVector(cfg.Dimension, vector); err != nil {
				return err
			}
		}
		found, err := s.get(ctx, c, index, []string{id}, false)
		if err != nil {
			return err
		}
		if _, ok := found[id]; !ok {
			return docNotFound(index, id)
		}

		pid := qdrantPointID(id)
		if vector != nil {
			_, err := c.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
				CollectionName: index,
				Wait:           qdrant.PtrOf(true),
				Points:         []*qdrant.PointVectors{{Id: pid, Vectors: qdrant.NewVectors(vector...)}},
			})
			if err != nil {
				return err
			}
		}
		if metadata != nil {
			payload, err := qdrant.TryValueMap(map[string]any{qdrantMetadataKey: metadataToAny(metadata)})
			if err != nil {
				return invalidInput("metadata: %v", err)
			}
			_, err = c.SetPayload(ctx, &qdrant.SetPayloadPoints{
				CollectionName: index,
				Wait:           qdrant.PtrOf(true),
				Payload:        payload,
				PointsSelector: qdrant.NewPointsSelector(pid),
			})
			if err != nil {
				return err
			}
		}
		s.touch(index)
		return nil
	})
}

// DeleteByID implements Store.
func (s *QdrantStore) DeleteByID(ctx context.Context, index, id string) error {
	return s.with(ctx, "delete", func(c *qdrant.Client) error {
		if _, err := s.indexConfig(ctx, c, index); err != nil {
			return err
		}
		found, err := s.get(ctx, c, index, []string{id}, false)
		if err != nil {
			return err
		}
		if _, ok := found[id]; !ok {
			return docNotFound(index, id)
		}
		_, err = c.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: index,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(qdrantPointID(id)),
		})
		if err != nil {
			return err
		}
		s.touch(index)
		return nil
	})
}

// Scan implements Store. Qdrant scrolls in point id order, so documents come
// back in a stable order that is not their insertion order.
func (s *QdrantStore) Scan(ctx context.Context, index string, fn func(Document) error) error {
	return s.with(ctx, "scan", func(c *qdrant.Client) error {
		if _, err := s.indexConfig(ctx, c, index); err != nil {
			return err
		}
		return s.scroll(ctx, c, index, fn)
	})
}

// HealthCheck implements Store.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	return s.with(ctx, "health", func(c *qdrant.Client) error {
		reply, err := c.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("%w: qdrant %s:%d: %v", ErrConnectionFailed, s.cfg.Host, s.cfg.Port, err)
		}
		s.mu.Lock()
		s.version = reply.GetVersion()
		s.mu.Unlock()
		return nil
	})
}

// BackendInfo implements Store.
func (s *QdrantStore) BackendInfo() BackendInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BackendInfo{Name: "qdrant", Version: s.version, Persistent: true, NativeFiltering: true, Pooled: true}
}

// PoolStats reports the client pool counters.
func (s *QdrantStore) PoolStats() pool.Stats {
	return s.clients.Stats()
}

// Close closes every pooled Qdrant client.
func (s *QdrantStore) Close() error {
	return s.clients.Close()
}

// with runs fn with a pooled client. Transport failures discard the client
// and surface as ErrConnectionFailed; store sentinels pass through.
func (s *QdrantStore) with(ctx context.Context, op string, fn func(*qdrant.Client) error) error {
	conn, err := s.clients.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: qdrant: %s: %v", ErrConnectionFailed, op, err)
	}
	err = fn(conn.Value())
	if err == nil {
		s.clients.Put(conn)
		return nil
	}

	switch code := status.Code(err); {
	case isStoreError(err) || errors.Is(err, ErrConnectionFailed):
		s.clients.Put(conn)
		return err
	case code == codes.Unavailable:
		s.clients.Discard(conn)
		return fmt.Errorf("%w: qdrant: %s: %v", ErrConnectionFailed, op, err)
	case code == codes.NotFound:
		s.clients.Put(conn)
		return fmt.Errorf("%w: qdrant: %s: %v", ErrIndexNotFound, op, err)
	default:
		s.clients.Put(conn)
		return fmt.Errorf("vectorstore: qdrant: %s: %w", op, err)
	}
}

// indexConfig returns the cached configuration of a collection, loading it
// from Qdrant on first use.
func (s *QdrantStore) indexConfig(ctx context.Context, c *qdrant.Client, name string) (IndexConfig, error) {
	s.mu.Lock()
	cfg, ok := s.configs[name]
	s.mu.Unlock()
	if ok {
		return cfg, nil
	}

	info, err := c.GetCollectionInfo(ctx, name)
	if status.Code(err) == codes.NotFound {
		return IndexConfig{}, indexNotFound(name)
	}
	if err != nil {
		return IndexConfig{}, err
	}
	cfg, err = indexConfigFromInfo(name, info)
	if err != nil {
		return IndexConfig{}, err
	}
	s.mu.Lock()
	s.configs[name] = cfg
	s.mu.Unlock()
	return cfg, nil
}

func (s *QdrantStore) get(ctx context.Context, c *qdrant.Client, index string, ids []string, withVectors bool) (map[string]Document, error) {
	found := make(map[string]Document, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = qdrantPointID(id)
	}
	points, err := c.Get(ctx, &qdrant.GetPoints{
		CollectionName: index,
		Ids:            pids,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		d := documentFromPayload(p.GetPayload())
		if withVectors {
			d.Vector = qdrantVector(p.GetVectors())
		}
		found[d.ID] = d
	}
	return found, nil
}

func (s *QdrantStore) scroll(ctx context.Context, c *qdrant.Client, index string, fn func(Document) error) error {
	var offset *qdrant.PointId
	for {
		points, next, err := c.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: index,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scanPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		for _, p := range points {
			d := documentFromPayload(p.GetPayload())
			d.Vector = qdrantVector(p.GetVectors())
			if err := fn(d); err != nil {
				return err
			}
		}
		if next == nil {
			return nil
		}
		offset = next
	}
}

func (s *QdrantStore) touch(index string) {
	s.mu.Lock()
	s.updated[index] = s.now()
	s.mu.Unlock()
}

func (s *QdrantStore) forget(index string) {
	s.mu.Lock()
	delete(s.configs, index)
	delete(s.created, index)
	delete(s.updated, index)
	s.mu.Unlock()
}

func indexConfigFromInfo(name string, info *qdrant.CollectionInfo) (IndexConfig, error) {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return IndexConfig{}, fmt.Errorf("vectorstore: qdrant collection %q has no single unnamed vector", name)
	}
	metric, err := metricFromDistance(params.GetDistance())
	if err != nil {
		return IndexConfig{}, fmt.Errorf("vectorstore: qdrant collection %q: %w", name, err)
	}
	return IndexConfig{Name: name, Dimension: int(params.GetSize()), Metric: metric}, nil
}

func qdrantDistance(m similarity.Metric) qdrant.Distance {
	switch m {
	case similarity.Euclidean:
		return qdrant.Distance_Euclid
	case similarity.DotProduct:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func metricFromDistance(d qdrant.Distance) (similarity.Metric, error) {
	switch d {
	case qdrant.Distance_Cosine:
		return similarity.Cosine, nil
	case qdrant.Distance_Euclid:
		return similarity.Euclidean, nil
	case qdrant.Distance_Dot:
		return similarity.DotProduct, nil
	}
	return 0, fmt.Errorf("%w: qdrant distance %s", similarity.ErrUnknownMetric, d)
}

// qdrantScore converts a Qdrant score into the store's larger-is-better
// convention. Qdrant reports Euclidean results as plain distances.
func qdrantScore(m similarity.Metric, score float32) float32 {
	if m == similarity.Euclidean {
		return -score
	}
	return score
}

// qdrantPointID maps a document id onto a deterministic UUID point id.
func qdrantPointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(qdrantNamespace, []byte(id)).String())
}

func qdrantPayload(d Document) (map[string]*qdrant.Value, error) {
	payload, err := qdrant.TryValueMap(map[string]any{
		qdrantIDKey:       d.ID,
		qdrantContentKey:  d.Content,
		qdrantMetadataKey: metadataToAny(d.Metadata),
	})
	if err != nil {
		return nil, invalidInput("payload of %q: %v", d.ID, err)
	}
	return payload, nil
}

func metadataToAny(md filter.Metadata) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v.Any()
	}
	return out
}

func documentFromPayload(p map[string]*qdrant.Value) Document {
	d := Document{
		ID:      p[qdrantIDKey].GetStringValue(),
		Content: p[qdrantContentKey].GetStringValue(),
	}
	fields := p[qdrantMetadataKey].GetStructValue().GetFields()
	if len(fields) > 0 {
		d.Metadata = make(filter.Metadata, len(fields))
		for k, v := range fields {
			if fv, ok := valueFromQdrant(v); ok {
				d.Metadata[k] = fv
			}
		}
	}
	return d
}

func valueFromQdrant(v *qdrant.Value) (filter.Value, bool) {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return filter.String(k.StringValue), true
	case *qdrant.Value_IntegerValue:
		return filter.Int(k.IntegerValue), true
	case *qdrant.Value_DoubleValue:
		return filter.Float(k.DoubleValue), true
	case *qdrant.Value_BoolValue:
		return filter.Bool(k.BoolValue), true
	}
	return filter.Value{}, false
}

func qdrantVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData() //nolint:staticcheck // servers before 1.14 only fill the legacy field
}

// qdrantFilter translates c into a Qdrant filter. ok is false when some node
// has no faithful Qdrant equivalent; the caller then filters in process.
func qdrantFilter(c *filter.Condition) (*qdrant.Filter, bool) {
	if c == nil {
		return nil, true
	}
	cond, ok := qdrantCondition(c)
	if !ok {
		return nil, false
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{cond}}, true
}

func qdrantCondition(c *filter.Condition) (*qdrant.Condition, bool) {
	key := qdrantMetadataKey + "." + c.Field
	switch c.Op {
	case filter.OpEq:
		return qdrantEq(key, c.Value)
	case filter.OpNe:
		eq, ok := qdrantEq(key, c.Value)
		return qdrantNot(eq), ok
	case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		return qdrantRange(key, c.Op, c.Value)
	case filter.OpIn:
		return qdrantIn(key, c.Values)
	case filter.OpNotIn:
		in, ok := qdrantIn(key, c.Values)
		return qdrantNot(in), ok
	case filter.OpExists:
		return qdrantNot(qdrant.NewIsEmpty(key)), true
	case filter.OpNotExists:
		return qdrant.NewIsEmpty(key), true
	case filter.OpAnd, filter.OpOr:
		if c.Op == filter.OpOr && len(c.Conditions) == 0 {
			return nil, false
		}
		children := make([]*qdrant.Condition, 0, len(c.Conditions))
		for i := range c.Conditions {
			child, ok := qdrantCondition(&c.Conditions[i])
			if !ok {
				return nil, false
			}
			children = append(children, child)
		}
		if c.Op == filter.OpAnd {
			return qdrant.NewFilterAsCondition(&qdrant.Filter{Must: children}), true
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: children}), true
	case filter.OpNot:
		if len(c.Conditions) != 1 {
			return nil, false
		}
		child, ok := qdrantCondition(&c.Conditions[0])
		return qdrantNot(child), ok
	}
	// contains, starts_with and ends_with need a full-text payload index.
	return nil, false
}

func qdrantNot(c *qdrant.Condition) *qdrant.Condition {
	if c == nil {
		return nil
	}
	return qdrant.NewFilterAsCondition(&qdrant.Filter{MustNot: []*qdrant.Condition{c}})
}

// qdrantEq matches numbers through a closed range so that integer and
// floating-point payloads compare numerically, as they do in process.
func qdrantEq(key string, v filter.Value) (*qdrant.Condition, bool) {
	switch v.Kind() {
	case filter.KindString:
		s, _ := v.AsString()
		return qdrant.NewMatchKeyword(key, s), true
	case filter.KindBool:
		b, _ := v.AsBool()
		return qdrant.NewMatchBool(key, b), true
	case filter.KindInt, filter.KindFloat:
		f, _ := v.AsFloat()
		return qdrant.NewRange(key, &qdrant.Range{Gte: qdrant.PtrOf(f), Lte: qdrant.PtrOf(f)}), true
	}
	return nil, false
}

func qdrantRange(key string, op filter.Op, v filter.Value) (*qdrant.Condition, bool) {
	f, ok := v.AsFloat()
	if !ok {
		// Qdrant ranges are numeric; lexical string ranges stay in process.
		return nil, false
	}
	r := &qdrant.Range{}
	switch op {
	case filter.OpGt:
		r.Gt = qdrant.PtrOf(f)
	case filter.OpGte:
		r.Gte = qdrant.PtrOf(f)
	case filter.OpLt:
		r.Lt = qdrant.PtrOf(f)
	case filter.OpLte:
		r.Lte = qdrant.PtrOf(f)
	}
	return qdrant.NewRange(key, r), true
}

func qdrantIn(key string, vs []filter.Value) (*qdrant.Condition, bool) {
	if len(vs) == 0 {
		return nil, false
	}
	keywords := make([]string, 0, len(vs))
	for _, v := range vs {
		s, ok := v.AsString()
		if !ok {
			break
		}
		keywords = append(keywords, s)
	}
	if len(keywords) == len(vs) {
		return qdrant.NewMatchKeywords(key, keywords...), true
	}

	should := make([]*qdrant.Condition, 0, len(vs))
	for _, v := range vs {
		eq, ok := qdrantEq(key, v)
		if !ok {
			return nil, false
		}
		should = append(should, eq)
	}
	return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: should}), true
}
