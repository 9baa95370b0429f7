// Package config provides YAML-based configuration for ragcore.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a deployment can override any single
// key without editing the file.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGCORE_CONFIG environment variable
//  3. ~/.ragcore/config.yaml
//  4. ./ragcore.yaml
//
// If no file is found the system runs entirely from env vars. [Resolve]
// turns the resulting environment into typed [Settings].
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Store selects and locates the vector store backend.
	Store StoreConfig `yaml:"store"`

	// Cache configures the query-result and keyword-index caches.
	Cache CacheConfig `yaml:"cache"`

	// Pool configures the connection pool of remote backends.
	Pool PoolConfig `yaml:"pool"`

	// BM25 configures keyword scoring.
	BM25 BM25Config `yaml:"bm25"`

	// Hybrid configures fusion of vector and keyword results.
	Hybrid HybridConfig `yaml:"hybrid"`

	// Qdrant configures the Qdrant backend connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Postgres configures the pgvector backend connection.
	Postgres PostgresConfig `yaml:"postgres"`

	// MinIO configures the S3-compatible snapshot sink.
	MinIO MinIOConfig `yaml:"minio"`

	// Embedding configures the embedding provider used for text queries and ingestion.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig holds backend selection.
type StoreConfig struct {
	// Backend is one of memory, sqlite, qdrant, pgvector.
	Backend string `yaml:"backend"`
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`
	// Snapshot is a file the memory backend is loaded from at serve start
	// and saved to at shutdown.
	Snapshot string `yaml:"snapshot"`
}

// CacheConfig holds cache sizing.
type CacheConfig struct {
	// Enabled turns the query-result cache on or off. Unset means on.
	Enabled *bool `yaml:"enabled"`
	// MaxEntries bounds each cache.
	MaxEntries int `yaml:"max_entries"`
	// TTLSeconds is the entry time-to-live.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// PoolConfig holds connection pool sizing.
type PoolConfig struct {
	MaxConnections           int `yaml:"max_connections"`
	MinConnections           int `yaml:"min_connections"`
	ConnectionTimeoutSeconds int `yaml:"connection_timeout_seconds"`
	IdleTimeoutSeconds       int `yaml:"idle_timeout_seconds"`
	MaxRetries               int `yaml:"max_retries"`
}

// BM25Config holds keyword scoring parameters.
type BM25Config struct {
	K1             float64 `yaml:"k1"`
	B              float64 `yaml:"b"`
	MaxTermsPerDoc int     `yaml:"max_terms_per_doc"`
	MinTermFreq    int     `yaml:"min_term_freq"`
}

// HybridConfig holds fusion parameters.
type HybridConfig struct {
	// Strategy is one of weighted_sum, rrf, convex, rank_based.
	Strategy               string  `yaml:"strategy"`
	VectorWeight           float64 `yaml:"vector_weight"`
	KeywordWeight          float64 `yaml:"keyword_weight"`
	MinScoreThreshold      float64 `yaml:"min_score_threshold"`
	MaxCandidatesPerMethod int     `yaml:"max_candidates_per_method"`
	RRFK                   float64 `yaml:"rrf_k"`
	Alpha                  float64 `yaml:"alpha"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// PostgresConfig holds pgvector connection settings.
type PostgresConfig struct {
	// DSN is a lib/pq connection string. Prefer env var RAGCORE_POSTGRES_DSN.
	DSN string `yaml:"dsn"`
}

// MinIOConfig holds snapshot object storage settings.
type MinIOConfig struct {
	Endpoint string `yaml:"endpoint"`
	// AccessKey and SecretKey are static credentials. Prefer env vars.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Object    string `yaml:"object"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGCORE_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// A mapping whose value is "" is skipped; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{EnvBackend, func(c *Config) string { return c.Store.Backend }},
	{EnvDBPath, func(c *Config) string { return c.Store.DBPath }},
	{EnvSnapshot, func(c *Config) string { return c.Store.Snapshot }},
	{EnvCacheEnabled, func(c *Config) string { return boolPtrStr(c.Cache.Enabled) }},
	{EnvCacheMaxEntries, func(c *Config) string { return intStr(c.Cache.MaxEntries) }},
	{EnvCacheTTL, func(c *Config) string { return intStr(c.Cache.TTLSeconds) }},
	{EnvPoolMaxConnections, func(c *Config) string { return intStr(c.Pool.MaxConnections) }},
	{EnvPoolMinConnections, func(c *Config) string { return intStr(c.Pool.MinConnections) }},
	{EnvPoolConnectionTimeout, func(c *Config) string { return intStr(c.Pool.ConnectionTimeoutSeconds) }},
	{EnvPoolIdleTimeout, func(c *Config) string { return intStr(c.Pool.IdleTimeoutSeconds) }},
	{EnvPoolMaxRetries, func(c *Config) string { return intStr(c.Pool.MaxRetries) }},
	{EnvBM25K1, func(c *Config) string { return floatStr(c.BM25.K1) }},
	{EnvBM25B, func(c *Config) string { return floatStr(c.BM25.B) }},
	{EnvBM25MaxTerms, func(c *Config) string { return intStr(c.BM25.MaxTermsPerDoc) }},
	{EnvBM25MinTermFreq, func(c *Config) string { return intStr(c.BM25.MinTermFreq) }},
	{EnvHybridStrategy, func(c *Config) string { return c.Hybrid.Strategy }},
	{EnvHybridVectorWeight, func(c *Config) string { return floatStr(c.Hybrid.VectorWeight) }},
	{EnvHybridKeywordWeight, func(c *Config) string { return floatStr(c.Hybrid.KeywordWeight) }},
	{EnvHybridMinScore, func(c *Config) string { return floatStr(c.Hybrid.MinScoreThreshold) }},
	{EnvHybridMaxCandidates, func(c *Config) string { return intStr(c.Hybrid.MaxCandidatesPerMethod) }},
	{EnvHybridRRFK, func(c *Config) string { return floatStr(c.Hybrid.RRFK) }},
	{EnvHybridAlpha, func(c *Config) string { return floatStr(c.Hybrid.Alpha) }},
	{EnvQdrantHost, func(c *Config) string { return c.Qdrant.Host }},
	{EnvQdrantPort, func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{EnvQdrantAPIKey, func(c *Config) string { return c.Qdrant.APIKey }},
	{EnvQdrantTLS, func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{EnvPostgresDSN, func(c *Config) string { return c.Postgres.DSN }},
	{EnvMinIOEndpoint, func(c *Config) string { return c.MinIO.Endpoint }},
	{EnvMinIOAccessKey, func(c *Config) string { return c.MinIO.AccessKey }},
	{EnvMinIOSecretKey, func(c *Config) string { return c.MinIO.SecretKey }},
	{EnvMinIOBucket, func(c *Config) string { return c.MinIO.Bucket }},
	{EnvMinIOObject, func(c *Config) string { return c.MinIO.Object }},
	{EnvMinIOUseSSL, func(c *Config) string { return boolStr(c.MinIO.UseSSL) }},
	{EnvEmbeddingProvider, func(c *Config) string { return c.Embedding.Provider }},
	{EnvEmbeddingModel, func(c *Config) string { return c.Embedding.Model }},
	{EnvEmbeddingDimensions, func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{EnvEmbeddingAPIKey, func(c *Config) string { return c.Embedding.APIKey }},
	{EnvEmbeddingEndpoint, func(c *Config) string { return c.Embedding.Endpoint }},
	{EnvServerHost, func(c *Config) string { return c.Server.Host }},
	{EnvServerPort, func(c *Config) string { return intStr(c.Server.Port) }},
	{EnvAPIKey, func(c *Config) string { return c.Server.APIKey }},
	{EnvLogLevel, func(c *Config) string { return c.Logging.Level }},
	{EnvLogFormat, func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv(EnvConfig); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragcore", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragcore.yaml"); err == nil {
		return "ragcore.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float to string, returning "" for zero values. A zero
// weight can still be set through the environment.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// boolPtrStr distinguishes an explicit false from an unset key.
func boolPtrStr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
