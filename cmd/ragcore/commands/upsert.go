package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// NewUpsertCmd constructs the `ragcore upsert` command, which loads JSONL
// records into an index.
func NewUpsertCmd() *cobra.Command {
	var index string
	var file string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Insert or replace documents from a JSONL file",
		Long: `Insert or replace documents in an index from a JSONL file, one record per line:

  {"id":"a","content":"optional text","vector":[0.1,0.2,0.3],"metadata":{"lang":"en"}}

Records without an id get a generated one. Every vector must match the index
dimension; a failing batch writes nothing. Use --file - to read stdin.

Examples:
  ragcore upsert --index docs --file records.jsonl
  cat records.jsonl | ragcore upsert --index docs --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batchSize <= 0 {
				return fmt.Errorf("upsert: --batch-size must be positive")
			}
			docs, err := readRecords(file)
			if err != nil {
				return fmt.Errorf("upsert: %w", err)
			}
			log := logging.New()

			return withStore(cmd, func(store vectorstore.Store) error {
				written := 0
				for start := 0; start < len(docs); start += batchSize {
					end := min(start+batchSize, len(docs))
					ids, err := store.Upsert(cmd.Context(), index, docs[start:end])
					if err != nil {
						return fmt.Errorf("upsert: records %d-%d: %w", start+1, end, err)
					}
					written += len(ids)
					log.Debug("upsert: batch written", slog.Int("from", start+1), slog.Int("to", end))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "upserted %d documents into %s\n", written, index)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Target index (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSONL file of records, or - for stdin (required)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 256, "Documents per upsert call")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
