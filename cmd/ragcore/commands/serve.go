package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragcore-go/internal/config"
	"github.com/54b3r/ragcore-go/internal/embedder"
	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/perf"
	"github.com/54b3r/ragcore-go/internal/rag"
	"github.com/54b3r/ragcore-go/internal/server"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// NewServeCmd constructs the `ragcore serve` command, which starts the HTTP
// API over the configured backend.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragcore HTTP API",
		Long: `Start the ragcore HTTP API.

The server exposes index management, upsert, vector query, BM25 search and
hybrid retrieval under /api, liveness at /api/health, dependency readiness at
/api/ready and Prometheus metrics at /metrics.

Vector queries are cached (cache config section) and timed by the
performance monitor. With the memory backend and RAGCORE_SNAPSHOT set, the
snapshot is loaded at start and written back on shutdown.

Hybrid retrieval needs a working embedder (EMBEDDING_* variables); without
one the /hybrid route answers 501 and everything else keeps working.

Examples:
  ragcore serve
  ragcore serve --port 9090
  RAGCORE_BACKEND=memory RAGCORE_SNAPSHOT=./vectors.snap ragcore serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			s, err := settings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				s.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				s.Server.Port = port
			}

			log.Info("serve starting", slog.String("backend", s.Backend))

			backend, closeStore, err := openStore(ctx, s, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStore()

			monitor := perf.NewMonitor()
			opts := []vectorstore.InstrumentOption{
				vectorstore.WithMonitor(monitor),
				vectorstore.WithInstrumentLogger(log),
			}
			if s.CacheEnabled {
				opts = append(opts, vectorstore.WithQueryCache(s.Cache))
			}
			store := vectorstore.Instrument(backend, opts...)

			keyword, err := rag.NewKeywordIndexes(store, s.BM25, s.Cache, rag.WithKeywordLogger(log))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{server.NewStorePinger(store)}
			emb := buildEmbedder(s, log)
			if emb != nil && s.Embedding.Endpoint != "" && s.Embedding.Provider != embedder.ProviderHash {
				pingers = append(pingers, server.NewHTTPPinger(s.Embedding.Provider, s.Embedding.Endpoint, nil))
			}

			srv, err := server.New(server.Deps{
				Store:    store,
				Keyword:  keyword,
				Embedder: emb,
				Hybrid:   s.Hybrid,
				Monitor:  monitor,
			}, &server.Config{
				Host:    s.Server.Host,
				Port:    s.Server.Port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  s.Server.APIKey,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides RAGCORE_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides RAGCORE_PORT)")

	return cmd
}

// buildEmbedder returns the configured embedder, or nil with a warning when
// it cannot be used. Hybrid retrieval is then unavailable.
func buildEmbedder(s config.Settings, log *slog.Logger) rag.Embedder {
	if err := embedder.Validate(s.Embedding, log); err != nil {
		log.Warn("embedder unavailable, hybrid retrieval disabled", slog.Any("error", err))
		return nil
	}
	emb, err := embedder.New(s.Embedding)
	if err != nil {
		log.Warn("embedder unavailable, hybrid retrieval disabled", slog.Any("error", err))
		return nil
	}
	log.Info("embedder initialised",
		slog.String("provider", s.Embedding.Provider),
		slog.String("model", s.Embedding.Model),
	)
	return emb
}
