package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// NewQueryCmd constructs the `ragcore query` command, an exact similarity
// search with a caller-supplied vector.
func NewQueryCmd() *cobra.Command {
	var index string
	var vector string
	var topK int
	var filterJSON string
	var includeVectors bool

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find the nearest documents to a vector",
		Long: `Score every document of an index against a query vector and print the
top-k matches, best first.

The vector is a JSON array or a comma-separated list. The optional filter is
a JSON condition evaluated against document metadata.

Examples:
  ragcore query --index docs --vector 0.1,0.2,0.3 --top-k 5
  ragcore query --index docs --vector '[0.1,0.2,0.3]' --filter '{"eq":{"field":"lang","value":"en"}}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vec, err := parseVector(vector)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			cond, err := parseFilter(filterJSON)
			if err != nil {
				return fmt.Errorf("query: --filter: %w", err)
			}

			return withStore(cmd, func(store vectorstore.Store) error {
				results, err := store.Query(cmd.Context(), index, vectorstore.Query{
					Vector:         vec,
					TopK:           topK,
					Filter:         cond,
					IncludeVectors: includeVectors,
				})
				if err != nil {
					return fmt.Errorf("query: %w", err)
				}
				if results == nil {
					results = []vectorstore.Result{}
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Index to query (required)")
	cmd.Flags().StringVarP(&vector, "vector", "v", "", "Query vector (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Number of results")
	cmd.Flags().StringVar(&filterJSON, "filter", "", "JSON metadata filter")
	cmd.Flags().BoolVar(&includeVectors, "include-vectors", false, "Include stored vectors in the output")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}
