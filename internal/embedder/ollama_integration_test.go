//go:build integration

package embedder

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/54b3r/ragcore-go/internal/similarity"
)

// TestOllamaEmbedder_Integration embeds against a running Ollama server:
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run Integration ./internal/embedder/
//
// OLLAMA_HOST and EMBEDDING_MODEL override the defaults.
func TestOllamaEmbedder_Integration(t *testing.T) {
	cfg := Config{
		Provider: ProviderOllama,
		Endpoint: cmp.Or(os.Getenv("OLLAMA_HOST"), defaultOllamaHost),
		Model:    cmp.Or(os.Getenv("EMBEDDING_MODEL"), defaultOllamaModel),
	}
	if err := Validate(cfg, slog.Default()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	emb, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"A vector index stores embeddings and answers nearest-neighbour queries.",
		"Nearest-neighbour search over stored embeddings is served by a vector index.",
		"The recipe calls for two cups of flour and a pinch of salt.",
	}
	vectors, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed: %v (is %q pulled and the server running?)", err, cfg.Model)
	}

	related := similarity.Cosine.Score(vectors[0], vectors[1])
	unrelated := similarity.Cosine.Score(vectors[0], vectors[2])
	if related <= unrelated {
		t.Errorf("paraphrases scored %.3f, unrelated text %.3f; want paraphrases higher", related, unrelated)
	}
	t.Logf("model=%s dim=%d", cfg.Model, len(vectors[0]))
}
