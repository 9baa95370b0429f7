package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragcore-go/internal/logging"
	"github.com/54b3r/ragcore-go/internal/snapshot"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// NewSnapshotCmd constructs the `ragcore snapshot` command group, which
// copies every index of the configured backend to or from a snapshot.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import all indexes as a compressed snapshot",
		Long: `Export or import every index of the configured backend as a
zstd-compressed JSON stream, stored in a local file or in a MinIO/S3 bucket.

Snapshots move data between backends and warm the memory backend. They are
not a backup mechanism.

Bucket access uses the minio config section (RAGCORE_MINIO_*).

Examples:
  ragcore snapshot export --file ./vectors.snap
  RAGCORE_BACKEND=qdrant ragcore snapshot import --file ./vectors.snap
  ragcore snapshot export --bucket ragcore-snapshots`,
	}
	cmd.AddCommand(newSnapshotExportCmd(), newSnapshotImportCmd())
	return cmd
}

func newSnapshotExportCmd() *cobra.Command {
	var file, bucket string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every index to a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := settings()
			if err != nil {
				return err
			}
			sink, err := snapshotSink(cmd.Context(), s, file, bucket)
			if err != nil {
				return err
			}
			return withStore(cmd, func(store vectorstore.Store) error {
				m, err := snapshot.Save(cmd.Context(), store, sink)
				if err != nil {
					return err
				}
				logging.New().Info("snapshot exported", slog.String("sink", sink.String()))
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Snapshot file")
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "MinIO/S3 bucket holding the snapshot")
	return cmd
}

func newSnapshotImportCmd() *cobra.Command {
	var file, bucket string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a snapshot into the configured backend",
		Long: `Load a snapshot into the configured backend.

Documents are merged into existing indexes whose dimension and metric match
the snapshot; a mismatching index is an error. --overwrite deletes existing
indexes of the same name first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := settings()
			if err != nil {
				return err
			}
			sink, err := snapshotSink(cmd.Context(), s, file, bucket)
			if err != nil {
				return err
			}
			log := logging.New()
			return withStore(cmd, func(store vectorstore.Store) error {
				m, err := snapshot.Load(cmd.Context(), store, sink, snapshot.ImportOptions{
					Overwrite: overwrite,
					Logger:    log,
				})
				if err != nil {
					return err
				}
				log.Info("snapshot imported", slog.String("sink", sink.String()))
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Snapshot file")
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "MinIO/S3 bucket holding the snapshot")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing indexes of the same name")
	return cmd
}
