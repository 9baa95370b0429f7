package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/similarity"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// NewIndexCmd constructs the `ragcore index` command group.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Create, list, describe and delete vector indexes",
	}
	cmd.AddCommand(
		newIndexCreateCmd(),
		newIndexListCmd(),
		newIndexDescribeCmd(),
		newIndexDeleteCmd(),
	)
	return cmd
}

// withStore resolves settings, opens the configured backend and runs fn.
func withStore(cmd *cobra.Command, fn func(store vectorstore.Store) error) error {
	ctx := cmd.Context()
	log := logging.New()

	s, err := settings()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, s, log)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	defer closeStore()

	return fn(store)
}

func newIndexCreateCmd() *cobra.Command {
	var dimension int
	var metric string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty index",
		Long: `Create an empty index with a fixed vector dimension and similarity metric.

Metrics: cosine (default), euclidean (negated L2 distance), dot_product.

Examples:
  ragcore index create docs --dimension 768
  ragcore index create images --dimension 512 --metric dot_product`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := similarity.ParseMetric(metric)
			if err != nil {
				return err
			}
			return withStore(cmd, func(store vectorstore.Store) error {
				cfg := vectorstore.IndexConfig{Name: args[0], Dimension: dimension, Metric: m}
				if err := store.CreateIndex(cmd.Context(), cfg); err != nil {
					return fmt.Errorf("index create: %w", err)
				}
				stats, err := store.DescribeIndex(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("index create: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}

	cmd.Flags().IntVarP(&dimension, "dimension", "d", 0, "Vector dimension (required)")
	cmd.Flags().StringVarP(&metric, "metric", "m", "cosine", "Similarity metric: cosine, euclidean, dot_product")
	_ = cmd.MarkFlagRequired("dimension")
	return cmd
}

func newIndexListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List index names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(store vectorstore.Store) error {
				names, err := store.ListIndexes(cmd.Context())
				if err != nil {
					return fmt.Errorf("index list: %w", err)
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}
}

func newIndexDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe NAME",
		Short: "Print the dimension, metric, size and timestamps of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store vectorstore.Store) error {
				stats, err := store.DescribeIndex(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("index describe: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newIndexDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an index and all of its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store vectorstore.Store) error {
				if err := store.DeleteIndex(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("index delete: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}
