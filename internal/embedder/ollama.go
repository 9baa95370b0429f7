package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbedder embeds text with a local Ollama server's /api/embed
// endpoint. It is safe for concurrent use.
type OllamaEmbedder struct {
	host       string
	model      string
	dimensions int
	client     *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. "http://localhost:11434".
	Host  string
	Model string
	// Dimensions is the expected vector length. Zero skips the check.
	Dimensions int
	// Client overrides the HTTP client. Nil uses a client with a 60s timeout.
	Client *http.Client
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:       cfg.Host,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     defaultClient(cfg.Client, 60*time.Second),
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func ollamaErrorMessage(body []byte) string {
	var r ollamaEmbedResponse
	if json.Unmarshal(body, &r) != nil {
		return ""
	}
	return r.Error
}

// Embed returns one vector per text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out ollamaEmbedResponse
	err := postJSON(ctx, e.client, "ollama", e.host+"/api/embed", nil,
		ollamaEmbedRequest{Model: e.model, Input: texts}, &out, ollamaErrorMessage)
	if err != nil {
		return nil, err
	}

	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: sent %d texts, got %d embeddings", len(texts), len(out.Embeddings))
	}
	if err := checkDimensions("ollama", out.Embeddings, e.dimensions); err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}
