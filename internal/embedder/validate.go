package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// modelDims describes the output width of a well-known embedding model.
// Models that support shortened outputs accept any size up to max.
type modelDims struct {
	max       int
	shortable bool
}

var knownModels = map[string]modelDims{
	"text-embedding-3-small": {max: 1536, shortable: true},
	"text-embedding-3-large": {max: 3072, shortable: true},
	"text-embedding-ada-002": {max: 1536},
	"nomic-embed-text":       {max: 768},
	"mxbai-embed-large":      {max: 1024},
	"all-minilm":             {max: 384},
	"snowflake-arctic-embed": {max: 1024},
	"bge-m3":                 {max: 1024},
}

// embeddingHints mark a model name as an embedding model even when it also
// contains a chat family name, e.g. "qwen3-embedding".
var embeddingHints = []string{"embed", "bge", "minilm", "e5-", "gte-"}

// chatFamilies are name fragments of chat/completion models.
var chatFamilies = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama", "mistral", "mixtral", "gemma", "phi", "claude",
	"command-r", "deepseek", "qwen", "vicuna", "falcon",
}

// looksLikeChatModel reports whether model is probably a chat model rather
// than an embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, h := range embeddingHints {
		if strings.Contains(lower, h) {
			return false
		}
	}
	for _, f := range chatFamilies {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// checkModelDimensions rejects a configured size the model cannot produce.
// Unknown models are accepted; the first Embed call checks them.
func checkModelDimensions(model string, dims int) error {
	name, _, _ := strings.Cut(strings.ToLower(model), ":") // drop Ollama tags
	m, ok := knownModels[name]
	switch {
	case !ok:
		return nil
	case m.shortable && dims > m.max:
		return fmt.Errorf("embedder: model %s produces at most %d dimensions, EMBEDDING_DIMENSIONS is %d", model, m.max, dims)
	case !m.shortable && dims != m.max:
		return fmt.Errorf("embedder: model %s produces %d dimensions, EMBEDDING_DIMENSIONS is %d", model, m.max, dims)
	}
	return nil
}

// Validate checks cfg at startup so a misconfiguration surfaces before the
// first document is embedded. Broken settings are errors; a model name that
// looks like a chat model is only a warning.
func Validate(cfg Config, log *slog.Logger) error {
	cfg = cfg.WithDefaults()

	switch cfg.Provider {
	case ProviderHash:
		return nil
	case ProviderOllama:
	case ProviderOpenAI, ProviderAzure:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: provider %s needs an API key; set EMBEDDING_API_KEY", cfg.Provider)
		}
		if cfg.Provider == ProviderAzure && cfg.Endpoint == "" {
			return fmt.Errorf("embedder: provider azure needs an endpoint; set EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown provider %q (valid: ollama, openai, azure, hash)", cfg.Provider)
	}

	if err := checkModelDimensions(cfg.Model, cfg.Dimensions); err != nil {
		return err
	}
	if looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model; embeddings will likely be poor",
			slog.String("model", cfg.Model),
			slog.String("hint", "use an embedding model such as nomic-embed-text or text-embedding-3-small"),
		)
	}
	return nil
}
