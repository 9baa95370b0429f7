package embedder

import (
	"fmt"
	"strings"

	"github.com/54b3r/ragcore-go/internal/rag"
)

// Provider names accepted by [New].
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderHash   = "hash"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	defaultOllamaHost   = "http://localhost:11434"
	defaultOpenAIURL    = "https://api.openai.com/v1"
	defaultAzureVersion = "2025-04-01-preview"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultHashDimensions is the width of the offline hashing embedder.
	defaultHashDimensions = 256
)

// Config selects and configures an embedding backend.
type Config struct {
	// Provider is one of ollama, openai, azure, hash. Empty means ollama.
	Provider string `yaml:"provider"`
	// Model is the embedding model name (or Azure deployment).
	Model string `yaml:"model"`
	// Dimensions is the vector length. Zero selects the provider default.
	Dimensions int `yaml:"dimensions"`
	// APIKey authenticates against openai and azure.
	APIKey string `yaml:"api_key"`
	// Endpoint overrides the provider base URL.
	Endpoint string `yaml:"endpoint"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// WithDefaults fills empty fields with the provider defaults.
func (c Config) WithDefaults() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOllama
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions(c.Provider)
	}
	switch c.Provider {
	case ProviderOllama:
		if c.Model == "" {
			c.Model = defaultOllamaModel
		}
		if c.Endpoint == "" {
			c.Endpoint = defaultOllamaHost
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = defaultOpenAIModel
		}
		if c.Endpoint == "" {
			c.Endpoint = defaultOpenAIURL
		}
	case ProviderAzure:
		if c.Model == "" {
			c.Model = defaultOpenAIModel
		}
		if c.APIVersion == "" {
			c.APIVersion = defaultAzureVersion
		}
	}
	return c
}

// DefaultDimensions returns the default embedding vector size for provider.
// Callers that create an index for embedded text should use this rather
// than hardcoding a value.
func DefaultDimensions(provider string) int {
	switch strings.ToLower(provider) {
	case ProviderOllama, "":
		return defaultOllamaDimensions
	case ProviderHash:
		return defaultHashDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs a rag.Embedder from cfg after applying defaults.
func New(cfg Config) (rag.Embedder, error) {
	cfg = cfg.WithDefaults()

	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       strings.TrimRight(cfg.Endpoint, "/"),
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/"),
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	case ProviderAzure:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires EMBEDDING_API_KEY")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil

	case ProviderHash:
		return NewHashEmbedder(cfg.Dimensions)

	default:
		return nil, fmt.Errorf("embedder: unknown provider %q (valid: ollama, openai, azure, hash)", cfg.Provider)
	}
}
