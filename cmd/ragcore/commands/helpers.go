package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/ragcore-go/internal/config"
	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/snapshot"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// maxRecordBytes bounds one JSONL line. Vectors of a few thousand
// dimensions plus content fit comfortably.
const maxRecordBytes = 16 << 20

// settings resolves the typed configuration after the root command has
// exported the YAML file into the environment.
func settings() (config.Settings, error) {
	return config.Resolve()
}

// openStore opens the configured backend. The returned close function must
// be called when the command finishes. For the memory backend with a
// snapshot configured, the snapshot is loaded on open and saved on close so
// one-shot commands see and keep their data.
func openStore(ctx context.Context, s config.Settings, log *slog.Logger) (vectorstore.Store, func(), error) {
	switch s.Backend {
	case config.BackendMemory:
		store := vectorstore.NewMemoryStore(vectorstore.WithMemoryLogger(log))
		if s.Snapshot == "" {
			return store, func() { _ = store.Close() }, nil
		}
		sink := snapshot.NewFileSink(s.Snapshot)
		if err := loadSnapshot(ctx, store, sink, log); err != nil {
			return nil, nil, err
		}
		return store, func() {
			if m, err := snapshot.Save(context.WithoutCancel(ctx), store, sink); err != nil {
				log.Error("snapshot: save failed", slog.String("sink", sink.String()), slog.Any("error", err))
			} else {
				log.Info("snapshot: saved", slog.String("sink", sink.String()),
					slog.Int("indexes", m.Indexes), slog.Int("documents", m.Documents))
			}
			_ = store.Close()
		}, nil

	case config.BackendSQLite:
		path := s.DBPath
		if path == "" {
			var err error
			if path, err = vectorstore.DefaultDBPath(); err != nil {
				return nil, nil, err
			}
		}
		store, err := vectorstore.OpenSQLite(path, vectorstore.WithSQLiteLogger(log))
		if err != nil {
			return nil, nil, err
		}
		log.Debug("store: sqlite opened", slog.String("path", path))
		return store, func() { _ = store.Close() }, nil

	case config.BackendQdrant:
		store, err := vectorstore.NewQdrantStore(ctx, s.Qdrant, vectorstore.WithQdrantLogger(log))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", s.Qdrant.Host, s.Qdrant.Port, err)
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendPGVector:
		store, err := vectorstore.OpenPGVector(ctx, s.Postgres, vectorstore.WithPGVectorLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", s.Backend)
}

// loadSnapshot imports sink into store. A missing snapshot is not an error.
func loadSnapshot(ctx context.Context, store vectorstore.Store, sink snapshot.Sink, log *slog.Logger) error {
	m, err := snapshot.Load(ctx, store, sink, snapshot.ImportOptions{Logger: log})
	if errors.Is(err, snapshot.ErrNotFound) {
		log.Info("snapshot: none found, starting empty", slog.String("sink", sink.String()))
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("snapshot: loaded", slog.String("sink", sink.String()),
		slog.Int("indexes", m.Indexes), slog.Int("documents", m.Documents))
	return nil
}

// snapshotSink selects a file or bucket sink. Exactly one of file and
// bucket must be set; bucket falls back to the configured MinIO settings.
func snapshotSink(ctx context.Context, s config.Settings, file, bucket string) (snapshot.Sink, error) {
	switch {
	case file != "" && bucket != "":
		return nil, errors.New("--file and --bucket are mutually exclusive")
	case file != "":
		return snapshot.NewFileSink(file), nil
	case bucket != "":
		cfg := s.MinIO
		cfg.Bucket = bucket
		return snapshot.NewMinIOSink(ctx, cfg)
	}
	return nil, errors.New("one of --file or --bucket is required")
}

// readRecords reads JSONL documents from path, or stdin when path is "-".
// Blank lines are skipped.
func readRecords(path string) ([]vectorstore.Document, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)

	var docs []vectorstore.Document
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var d vectorstore.Document
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		docs = append(docs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// parseVector accepts a JSON array ("[0.1,0.2]") or a comma-separated list.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("vector must not be empty")
	}
	if strings.HasPrefix(s, "[") {
		var v []float32
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("vector: %w", err)
		}
		return v, nil
	}
	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// parseFilter decodes a JSON filter flag. An empty flag means no filter.
func parseFilter(s string) (*filter.Condition, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return filter.Parse([]byte(s))
}

// parseMetadata turns repeated key=value flags into metadata. Values are
// typed the same way JSON scalars are: numbers, true/false, else strings.
func parseMetadata(pairs []string) (filter.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(filter.Metadata, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("metadata %q: want key=value", p)
		}
		var val filter.Value
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			val = filter.String(v)
		}
		md[k] = val
	}
	return md, nil
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
