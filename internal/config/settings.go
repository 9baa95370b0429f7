package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/ragcore-go/internal/bm25"
	"github.com/54b3r/ragcore-go/internal/cache"
	"github.com/54b3r/ragcore-go/internal/embedder"
	"github.com/54b3r/ragcore-go/internal/pool"
	"github.com/54b3r/ragcore-go/internal/rag"
	"github.com/54b3r/ragcore-go/internal/snapshot"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// Environment variable names read by [Resolve]. The YAML file is applied to
// these by [Load].
const (
	EnvConfig   = "RAGCORE_CONFIG"
	EnvBackend  = "RAGCORE_BACKEND"
	EnvDBPath   = "RAGCORE_DB"
	EnvSnapshot = "RAGCORE_SNAPSHOT"

	EnvCacheEnabled    = "RAGCORE_CACHE_ENABLED"
	EnvCacheMaxEntries = "RAGCORE_CACHE_MAX_ENTRIES"
	EnvCacheTTL        = "RAGCORE_CACHE_TTL"

	EnvPoolMaxConnections    = "RAGCORE_POOL_MAX_CONNECTIONS"
	EnvPoolMinConnections    = "RAGCORE_POOL_MIN_CONNECTIONS"
	EnvPoolConnectionTimeout = "RAGCORE_POOL_CONNECTION_TIMEOUT"
	EnvPoolIdleTimeout       = "RAGCORE_POOL_IDLE_TIMEOUT"
	EnvPoolMaxRetries        = "RAGCORE_POOL_MAX_RETRIES"

	EnvBM25K1          = "RAGCORE_BM25_K1"
	EnvBM25B           = "RAGCORE_BM25_B"
	EnvBM25MaxTerms    = "RAGCORE_BM25_MAX_TERMS"
	EnvBM25MinTermFreq = "RAGCORE_BM25_MIN_TERM_FREQ"

	EnvHybridStrategy      = "RAGCORE_HYBRID_STRATEGY"
	EnvHybridVectorWeight  = "RAGCORE_HYBRID_VECTOR_WEIGHT"
	EnvHybridKeywordWeight = "RAGCORE_HYBRID_KEYWORD_WEIGHT"
	EnvHybridMinScore      = "RAGCORE_HYBRID_MIN_SCORE"
	EnvHybridMaxCandidates = "RAGCORE_HYBRID_MAX_CANDIDATES"
	EnvHybridRRFK          = "RAGCORE_HYBRID_RRF_K"
	EnvHybridAlpha         = "RAGCORE_HYBRID_ALPHA"

	EnvQdrantHost   = "QDRANT_HOST"
	EnvQdrantPort   = "QDRANT_PORT"
	EnvQdrantAPIKey = "QDRANT_API_KEY"
	EnvQdrantTLS    = "QDRANT_TLS"

	EnvPostgresDSN = "RAGCORE_POSTGRES_DSN"

	EnvMinIOEndpoint  = "RAGCORE_MINIO_ENDPOINT"
	EnvMinIOAccessKey = "RAGCORE_MINIO_ACCESS_KEY"
	EnvMinIOSecretKey = "RAGCORE_MINIO_SECRET_KEY"
	EnvMinIOBucket    = "RAGCORE_MINIO_BUCKET"
	EnvMinIOObject    = "RAGCORE_MINIO_OBJECT"
	EnvMinIOUseSSL    = "RAGCORE_MINIO_USE_SSL"

	EnvEmbeddingProvider   = "EMBEDDING_PROVIDER"
	EnvEmbeddingModel      = "EMBEDDING_MODEL"
	EnvEmbeddingDimensions = "EMBEDDING_DIMENSIONS"
	EnvEmbeddingAPIKey     = "EMBEDDING_API_KEY"
	EnvEmbeddingEndpoint   = "EMBEDDING_ENDPOINT"

	EnvServerHost = "RAGCORE_HOST"
	EnvServerPort = "RAGCORE_PORT"
	EnvAPIKey     = "RAGCORE_API_KEY"

	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
)

// Store backends selectable with RAGCORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
)

// Settings is the typed runtime configuration resolved from the environment.
type Settings struct {
	// Backend is the vector store backend. Defaults to sqlite.
	Backend string

	// DBPath is the SQLite database file. Empty means
	// vectorstore.DefaultDBPath.
	DBPath string

	// Snapshot is the file the memory backend is restored from and saved to.
	Snapshot string

	// CacheEnabled turns the query-result cache on. Defaults to true.
	CacheEnabled bool

	// Cache sizes the query-result cache and the keyword index cache.
	Cache cache.Config

	// Pool sizes the connection pool of the qdrant and pgvector backends.
	Pool pool.Config

	BM25   bm25.Config
	Hybrid rag.HybridConfig

	Qdrant   vectorstore.QdrantConfig
	Postgres vectorstore.PGVectorConfig
	MinIO    snapshot.MinIOConfig

	Embedding embedder.Config

	Server ServerSettings
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Host   string
	Port   int
	APIKey string
}

// Addr returns host:port.
func (s ServerSettings) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// Resolve reads every setting from the environment, applies defaults and
// validates the result. All malformed values are reported together.
func Resolve() (Settings, error) {
	var r envReader

	s := Settings{
		Backend:      strings.ToLower(r.str(EnvBackend, BackendSQLite)),
		DBPath:       r.str(EnvDBPath, ""),
		Snapshot:     r.str(EnvSnapshot, ""),
		CacheEnabled: r.boolean(EnvCacheEnabled, true),
		Cache: cache.Config{
			MaxEntries: r.integer(EnvCacheMaxEntries, cache.DefaultMaxEntries),
			TTL:        r.seconds(EnvCacheTTL, cache.DefaultTTL),
		},
	}

	p := pool.DefaultConfig()
	s.Pool = pool.Config{
		MaxConnections:    r.integer(EnvPoolMaxConnections, p.MaxConnections),
		MinConnections:    r.integer(EnvPoolMinConnections, p.MinConnections),
		ConnectionTimeout: r.seconds(EnvPoolConnectionTimeout, p.ConnectionTimeout),
		IdleTimeout:       r.seconds(EnvPoolIdleTimeout, p.IdleTimeout),
		MaxRetries:        r.integer(EnvPoolMaxRetries, p.MaxRetries),
	}

	b := bm25.DefaultConfig()
	s.BM25 = bm25.Config{
		K1:             r.float(EnvBM25K1, b.K1),
		B:              r.float(EnvBM25B, b.B),
		MaxTermsPerDoc: r.integer(EnvBM25MaxTerms, b.MaxTermsPerDoc),
		MinTermFreq:    r.integer(EnvBM25MinTermFreq, b.MinTermFreq),
	}

	h := rag.DefaultHybridConfig()
	s.Hybrid = rag.HybridConfig{
		Strategy:               rag.Strategy(r.str(EnvHybridStrategy, string(h.Strategy))),
		VectorWeight:           r.float(EnvHybridVectorWeight, h.VectorWeight),
		KeywordWeight:          r.float(EnvHybridKeywordWeight, h.KeywordWeight),
		MinScoreThreshold:      r.float(EnvHybridMinScore, h.MinScoreThreshold),
		MaxCandidatesPerMethod: r.integer(EnvHybridMaxCandidates, h.MaxCandidatesPerMethod),
		RRFK:                   r.float(EnvHybridRRFK, h.RRFK),
		Alpha:                  r.float(EnvHybridAlpha, h.Alpha),
	}

	s.Qdrant = vectorstore.QdrantConfig{
		Host:   r.str(EnvQdrantHost, "localhost"),
		Port:   r.integer(EnvQdrantPort, 6334),
		APIKey: r.str(EnvQdrantAPIKey, ""),
		UseTLS: r.boolean(EnvQdrantTLS, false),
		Pool:   s.Pool,
	}
	s.Postgres = vectorstore.PGVectorConfig{
		DSN:  r.str(EnvPostgresDSN, ""),
		Pool: s.Pool,
	}
	s.MinIO = snapshot.MinIOConfig{
		Endpoint:  r.str(EnvMinIOEndpoint, ""),
		AccessKey: r.str(EnvMinIOAccessKey, ""),
		SecretKey: r.str(EnvMinIOSecretKey, ""),
		UseSSL:    r.boolean(EnvMinIOUseSSL, false),
		Bucket:    r.str(EnvMinIOBucket, ""),
		Object:    r.str(EnvMinIOObject, snapshot.DefaultObject),
	}

	s.Embedding = embedder.Config{
		Provider:   r.str(EnvEmbeddingProvider, ""),
		Model:      r.str(EnvEmbeddingModel, ""),
		Dimensions: r.integer(EnvEmbeddingDimensions, 0),
		APIKey:     r.str(EnvEmbeddingAPIKey, ""),
		Endpoint:   r.str(EnvEmbeddingEndpoint, ""),
	}.WithDefaults()

	s.Server = ServerSettings{
		Host:   r.str(EnvServerHost, "127.0.0.1"),
		Port:   r.integer(EnvServerPort, 8080),
		APIKey: r.str(EnvAPIKey, ""),
	}

	if err := errors.Join(r.errs...); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks cross-field constraints that parsing cannot.
func (s Settings) Validate() error {
	switch s.Backend {
	case BackendMemory, BackendSQLite:
	case BackendQdrant:
		if s.Qdrant.Host == "" {
			return fmt.Errorf("config: %s is required for the qdrant backend", EnvQdrantHost)
		}
	case BackendPGVector:
		if s.Postgres.DSN == "" {
			return fmt.Errorf("config: %s is required for the pgvector backend", EnvPostgresDSN)
		}
	default:
		return fmt.Errorf("config: %s must be one of memory, sqlite, qdrant, pgvector, got %q", EnvBackend, s.Backend)
	}
	if s.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: %s must be positive, got %d", EnvCacheMaxEntries, s.Cache.MaxEntries)
	}
	if s.Cache.TTL <= 0 {
		return fmt.Errorf("config: %s must be positive", EnvCacheTTL)
	}
	if err := s.BM25.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := s.Hybrid.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("config: %s must be a valid TCP port, got %d", EnvServerPort, s.Server.Port)
	}
	return nil
}

// envReader reads typed values, collecting parse errors instead of
// stopping at the first one.
type envReader struct {
	errs []error
}

func (r *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (r *envReader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

// seconds reads a whole number of seconds.
func (r *envReader) seconds(key string, def time.Duration) time.Duration {
	n := r.integer(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
