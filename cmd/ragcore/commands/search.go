package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragcore-go/internal/bm25"
	"github.com/54b3r/ragcore-go/internal/budget"
	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/rag"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// NewSearchCmd constructs the `ragcore search` command, a BM25 keyword
// search over the content of an index or of a JSONL file.
func NewSearchCmd() *cobra.Command {
	var index string
	var file string
	var query string
	var limit int
	var filterJSON string
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "BM25 keyword search over an index or a JSONL file",
		Long: `Rank documents against a text query with BM25 and print the best matches.

With --index the corpus is the stored content of an index. With --file it is
a JSONL file of {"id","content","metadata"} records; no store is opened.
k1, b and the term limits come from the bm25 config section.

Examples:
  ragcore search --index docs --query "connection pool timeout"
  ragcore search --file corpus.jsonl --query "hybrid fusion" --limit 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (index == "") == (file == "") {
				return errors.New("search: exactly one of --index or --file is required")
			}
			cond, err := parseFilter(filterJSON)
			if err != nil {
				return fmt.Errorf("search: --filter: %w", err)
			}
			s, err := settings()
			if err != nil {
				return err
			}
			log := logging.New()
			req := rag.Request{Query: query, TopK: limit, Filter: cond}

			if file != "" {
				records, err := readRecords(file)
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
				docs := make([]bm25.Document, len(records))
				for i, r := range records {
					docs[i] = bm25.Document{ID: r.ID, Content: r.Content, Metadata: r.Metadata}
				}
				retriever, err := bm25.New(docs, s.BM25, bm25.WithLogger(log))
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
				return printRetrieval(cmd, budget.Fit(rag.KeywordSearch(retriever, req), maxTokens))
			}

			return withStore(cmd, func(store vectorstore.Store) error {
				keyword, err := rag.NewKeywordIndexes(store, s.BM25, s.Cache, rag.WithKeywordLogger(log))
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
				results, err := keyword.Search(cmd.Context(), index, req)
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
				return printRetrieval(cmd, budget.Fit(results, maxTokens))
			})
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Index whose stored content is searched")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSONL corpus to search instead of an index")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search text (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", rag.DefaultTopK, "Maximum number of results")
	cmd.Flags().StringVar(&filterJSON, "filter", "", "JSON metadata filter")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Drop the lowest-ranked results beyond this estimated token budget")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func printRetrieval(cmd *cobra.Command, docs []rag.Document) error {
	if docs == nil {
		docs = []rag.Document{}
	}
	return printJSON(cmd.OutOrStdout(), docs)
}
