// Package commands defines all Cobra CLI commands for the ragcore binary.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/54b3r/ragcore-go/internal/audit"
	"github.com/54b3r/ragcore-go/internal/config"
	"github.com/54b3r/ragcore-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragcore",
		Short: "ragcore: vector indexes, BM25 and hybrid retrieval",
		Long: `ragcore stores embedding vectors with metadata in named indexes and
retrieves them by exact similarity search, BM25 keyword search, or a fusion
of both.

The storage backend is selected via RAGCORE_BACKEND (memory, sqlite, qdrant,
pgvector) or a YAML config file (~/.ragcore/config.yaml).
See 'ragcore --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			var changed []string
			cmd.Flags().Visit(func(f *pflag.Flag) { changed = append(changed, f.Name) })
			audit.LogCommandStart(log, cmd.CommandPath(), loadedConfigPath, changed...)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragcore/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewUpsertCmd(),
		NewQueryCmd(),
		NewSearchCmd(),
		NewIngestCmd(),
		NewSnapshotCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
