// Package snapshot exports and imports the full contents of a vector store
// as a zstd-compressed stream of JSON records: one header, then for each
// index its configuration followed by its documents.
//
// Snapshots are a convenience for moving data between backends and for
// warming the memory backend; they carry no durability guarantees.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

const (
	// formatName identifies the stream in its header record.
	formatName = "ragcore-snapshot"
	// formatVersion is bumped on incompatible record changes.
	formatVersion = 1
	// importBatchSize is the number of documents per Upsert during import.
	importBatchSize = 256
)

// ErrInvalidSnapshot is returned when a stream is not a readable snapshot.
var ErrInvalidSnapshot = errors.New("snapshot: invalid snapshot")

const (
	recordHeader   = "header"
	recordIndex    = "index"
	recordDocument = "document"
)

// record is one JSON value of the stream.
type record struct {
	Type string `json:"type"`

	// Header fields.
	Format    string    `json:"format,omitempty"`
	Version   int       `json:"version,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	Backend   string    `json:"backend,omitempty"`

	Index     *vectorstore.IndexConfig `json:"index,omitempty"`
	IndexName string                   `json:"index_name,omitempty"`
	Document  *vectorstore.Document    `json:"document,omitempty"`
}

// Manifest summarises an export or import.
type Manifest struct {
	Backend   string    `json:"backend"`
	CreatedAt time.Time `json:"created_at"`
	Indexes   int       `json:"indexes"`
	Documents int       `json:"documents"`
}

// ImportOptions controls how Import treats indexes that already exist.
type ImportOptions struct {
	// Overwrite deletes an existing index of the same name before loading.
	// Without it, documents are upserted into an existing index whose
	// dimension and metric match, and a mismatching index is an error.
	Overwrite bool

	// Logger receives progress output. Nil means slog.Default().
	Logger *slog.Logger
}

// Export writes every index of store, with all documents, to w.
func Export(ctx context.Context, store vectorstore.Store, w io.Writer) (Manifest, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return Manifest{}, fmt.Errorf("snapshot: export: %w", err)
	}
	m, err := export(ctx, store, json.NewEncoder(zw))
	if err != nil {
		_ = zw.Close()
		return Manifest{}, err
	}
	if err := zw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: export: flush: %w", err)
	}
	return m, nil
}

func export(ctx context.Context, store vectorstore.Store, enc *json.Encoder) (Manifest, error) {
	m := Manifest{Backend: store.BackendInfo().Name, CreatedAt: time.Now().UTC()}
	header := record{
		Type:      recordHeader,
		Format:    formatName,
		Version:   formatVersion,
		CreatedAt: m.CreatedAt,
		Backend:   m.Backend,
	}
	if err := enc.Encode(header); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: export: header: %w", err)
	}

	names, err := store.ListIndexes(ctx)
	if err != nil {
		return Manifest{}, fmt.Errorf("snapshot: export: %w", err)
	}
	for _, name := range names {
		stats, err := store.DescribeIndex(ctx, name)
		if err != nil {
			return Manifest{}, fmt.Errorf("snapshot: export: %w", err)
		}
		cfg := vectorstore.IndexConfig{Name: stats.Name, Dimension: stats.Dimension, Metric: stats.Metric}
		if err := enc.Encode(record{Type: recordIndex, Index: &cfg}); err != nil {
			return Manifest{}, fmt.Errorf("snapshot: export: index %q: %w", name, err)
		}
		m.Indexes++

		err = store.Scan(ctx, name, func(d vectorstore.Document) error {
			m.Documents++
			return enc.Encode(record{Type: recordDocument, IndexName: name, Document: &d})
		})
		if err != nil {
			return Manifest{}, fmt.Errorf("snapshot: export: documents of %q: %w", name, err)
		}
	}
	return m, nil
}

// Import loads a snapshot written by Export into store.
func Import(ctx context.Context, store vectorstore.Store, r io.Reader, opts ImportOptions) (Manifest, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	defer zr.Close()
	dec := json.NewDecoder(zr)

	var header record
	if err := dec.Decode(&header); err != nil {
		return Manifest{}, fmt.Errorf("%w: header: %v", ErrInvalidSnapshot, err)
	}
	if header.Type != recordHeader || header.Format != formatName {
		return Manifest{}, fmt.Errorf("%w: missing header", ErrInvalidSnapshot)
	}
	if header.Version != formatVersion {
		return Manifest{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, header.Version)
	}

	m := Manifest{Backend: header.Backend, CreatedAt: header.CreatedAt}
	var (
		current string
		batch   []vectorstore.Document
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := store.Upsert(ctx, current, batch); err != nil {
			return fmt.Errorf("snapshot: import: index %q: %w", current, err)
		}
		m.Documents += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		var rec record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}

		switch rec.Type {
		case recordIndex:
			if rec.Index == nil {
				return Manifest{}, fmt.Errorf("%w: index record without index", ErrInvalidSnapshot)
			}
			if err := flush(); err != nil {
				return Manifest{}, err
			}
			if err := prepareIndex(ctx, store, *rec.Index, opts.Overwrite); err != nil {
				return Manifest{}, err
			}
			current = rec.Index.Name
			m.Indexes++
			log.Debug("snapshot: importing index", slog.String("index", current))
		case recordDocument:
			if rec.Document == nil || rec.IndexName == "" || rec.IndexName != current {
				return Manifest{}, fmt.Errorf("%w: document record outside its index", ErrInvalidSnapshot)
			}
			batch = append(batch, *rec.Document)
			if len(batch) >= importBatchSize {
				if err := flush(); err != nil {
					return Manifest{}, err
				}
			}
		default:
			return Manifest{}, fmt.Errorf("%w: unknown record type %q", ErrInvalidSnapshot, rec.Type)
		}
	}
	if err := flush(); err != nil {
		return Manifest{}, err
	}
	log.Info("snapshot: import complete",
		slog.Int("indexes", m.Indexes),
		slog.Int("documents", m.Documents),
		slog.String("source_backend", m.Backend),
	)
	return m, nil
}

func prepareIndex(ctx context.Context, store vectorstore.Store, cfg vectorstore.IndexConfig, overwrite bool) error {
	err := store.CreateIndex(ctx, cfg)
	if !errors.Is(err, vectorstore.ErrIndexAlreadyExists) {
		if err != nil {
			return fmt.Errorf("snapshot: import: %w", err)
		}
		return nil
	}

	if overwrite {
		if err := store.DeleteIndex(ctx, cfg.Name); err != nil {
			return fmt.Errorf("snapshot: import: %w", err)
		}
		if err := store.CreateIndex(ctx, cfg); err != nil {
			return fmt.Errorf("snapshot: import: %w", err)
		}
		return nil
	}

	existing, err := store.DescribeIndex(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("snapshot: import: %w", err)
	}
	if existing.Dimension != cfg.Dimension || existing.Metric != cfg.Metric {
		return fmt.Errorf("snapshot: import: index %q exists as %d/%s, snapshot has %d/%s: %w",
			cfg.Name, existing.Dimension, existing.Metric, cfg.Dimension, cfg.Metric, vectorstore.ErrIndexAlreadyExists)
	}
	return nil
}

// Save exports store into sink.
func Save(ctx context.Context, store vectorstore.Store, sink Sink) (Manifest, error) {
	w, err := sink.Writer(ctx)
	if err != nil {
		return Manifest{}, err
	}
	m, err := Export(ctx, store, w)
	if err != nil {
		_ = abort(w, err)
		return Manifest{}, err
	}
	if err := w.Close(); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: save to %s: %w", sink, err)
	}
	return m, nil
}

// Load imports the snapshot held by sink into store.
func Load(ctx context.Context, store vectorstore.Store, sink Sink, opts ImportOptions) (Manifest, error) {
	r, err := sink.Reader(ctx)
	if err != nil {
		return Manifest{}, err
	}
	defer r.Close()
	return Import(ctx, store, r, opts)
}
