// Package embedder turns text into dense vectors for the vector store.
// Remote backends (OpenAI, Azure OpenAI, Ollama) are called over HTTP; the
// hash embedder runs offline.
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OpenAIEmbedder calls the OpenAI embeddings API, or an Azure OpenAI
// deployment of it. It is safe for concurrent use.
type OpenAIEmbedder struct {
	url        string
	header     http.Header
	model      string
	dimensions int
	client     *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI, or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	APIKey  string
	// Model is the model name, or the deployment name on Azure.
	Model string
	// Dimensions requests a shortened vector. Zero keeps the model default.
	Dimensions int
	// Azure switches to the api-key header and deployment URLs.
	Azure      bool
	APIVersion string
	// Client overrides the HTTP client. Nil uses a client with a 30s timeout.
	Client *http.Client
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		url:        cfg.BaseURL + "/embeddings",
		header:     http.Header{},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     defaultClient(cfg.Client, 30*time.Second),
	}
	if cfg.Azure {
		e.url = cfg.BaseURL + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		e.header.Set("api-key", cfg.APIKey)
	} else {
		e.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func openaiErrorMessage(body []byte) string {
	var r openaiEmbedResponse
	if json.Unmarshal(body, &r) != nil || r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out openaiEmbedResponse
	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: max(e.dimensions, 0)}
	if err := postJSON(ctx, e.client, "openai", e.url, e.header, req, &out, openaiErrorMessage); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: sent %d texts, got %d embeddings", len(texts), len(out.Data))
	}

	// Data is not guaranteed to be in input order.
	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		switch {
		case d.Index < 0 || d.Index >= len(texts):
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		case vectors[d.Index] != nil:
			return nil, fmt.Errorf("openai embedder: duplicate index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	if err := checkDimensions("openai", vectors, e.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}
