package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragcore-go/internal/embedder"
	"github.com/54b3r/ragcore-go/internal/ingestion"
	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/similarity"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// NewIngestCmd constructs the `ragcore ingest` command, which runs the
// ingestion pipeline to populate an index from files and URLs.
func NewIngestCmd() *cobra.Command {
	var index string
	var paths []string
	var urls []string
	var meta []string
	var chunkSize int
	var chunkOverlap int
	var metric string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index files or URLs",
		Long: `Read local files (directories are walked for .txt, .md and .html files) or
fetch URLs, split the text into overlapping chunks, embed each chunk with the
configured embedder and upsert the chunks into an index.

Chunk ids are derived from the source and chunk position, so re-ingesting a
source replaces its chunks. Each chunk carries source, chunk_index and format
metadata plus any --meta key=value pairs. A missing index is created with the
embedder's dimension.

Relevant environment variables:
  EMBEDDING_PROVIDER   ollama, openai, azure or hash (default: ollama)
  EMBEDDING_MODEL      Embedding model name
  EMBEDDING_ENDPOINT   Provider base URL override
  EMBEDDING_API_KEY    API key for openai and azure

Examples:
  ragcore ingest --index docs --path ./handbook
  ragcore ingest --index docs --url https://example.com/guide.html --meta team=search`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()

			if len(paths) == 0 && len(urls) == 0 {
				return errors.New("ingest: at least one --path or --url is required")
			}
			md, err := parseMetadata(meta)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			m, err := similarity.ParseMetric(metric)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			s, err := settings()
			if err != nil {
				return err
			}
			if err := embedder.Validate(s.Embedding, log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			emb, err := embedder.New(s.Embedding)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised",
				slog.String("provider", s.Embedding.Provider),
				slog.String("model", s.Embedding.Model),
				slog.Int("dimensions", s.Embedding.Dimensions),
			)

			sources, err := ingestion.ExpandPaths(paths, md)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			for _, u := range urls {
				sources = append(sources, ingestion.Source{URL: u, Metadata: md})
			}

			store, closeStore, err := openStore(ctx, s, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeStore()

			if _, err := store.DescribeIndex(ctx, index); errors.Is(err, vectorstore.ErrIndexNotFound) {
				cfg := vectorstore.IndexConfig{Name: index, Dimension: s.Embedding.Dimensions, Metric: m}
				if err := store.CreateIndex(ctx, cfg); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("index created", slog.String("index", index), slog.Int("dimension", cfg.Dimension))
			} else if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(emb, store, index, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				Logger:       log,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion", slog.Int("sources", len(sources)), slog.String("index", index))
			report, err := pipeline.Ingest(ctx, sources)
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete",
				slog.Int("sources", report.Sources),
				slog.Int("chunks", report.Chunks),
				slog.Int("removed", report.Removed),
			)
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Target index (required)")
	cmd.Flags().StringArrayVarP(&paths, "path", "p", nil, "File or directory to ingest (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL to fetch and ingest (repeatable)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Metadata key=value attached to every chunk (repeatable)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Maximum characters per chunk (default 1000)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Characters shared by consecutive chunks (default 100)")
	cmd.Flags().StringVar(&metric, "metric", "cosine", "Metric for a newly created index")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}
