package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/similarity"
)

// scanPageSize is the number of rows Scan reads per round trip.
const scanPageSize = 256

// SQLiteStore is a Store persisted in a local SQLite database. Vectors are
// stored as little-endian float32 BLOBs and queries scan the index exactly.
type SQLiteStore struct {
	// db is the underlying database handle, limited to one connection.
	db *sql.DB
	// path is the database location, ":memory:" for tests.
	path string
	// log receives debug output for index lifecycle events.
	log *slog.Logger
	// now stamps index creation and modification times.
	now func() time.Time
}

// SQLiteOption customises a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteLogger sets the store's logger.
func WithSQLiteLogger(log *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSQLiteClock overrides the clock used for index timestamps.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) { s.now = now }
}

// DefaultDBPath returns the default location of the vector database.
// It resolves to ~/.ragcore/vectors.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("vectorstore: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragcore")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("vectorstore: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "vectors.db"), nil
}

// OpenSQLite opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS indexes (
    name         TEXT    PRIMARY KEY,
    dimension    INTEGER NOT NULL CHECK(dimension > 0),
    metric       TEXT    NOT NULL,
    created_at   INTEGER NOT NULL,  -- Unix timestamp (nanoseconds)
    updated_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    index_name   TEXT    NOT NULL,
    id           TEXT    NOT NULL,
    content      TEXT    NOT NULL DEFAULT '',
    vector       BLOB    NOT NULL,
    metadata     TEXT,
    UNIQUE (index_name, id)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("vectorstore: migrate: %w", err)
	}
	return nil
}

// CreateIndex implements Store.
func (s *SQLiteStore) CreateIndex(ctx context.Context, cfg IndexConfig) error {
	if err := validateIndexConfig(cfg); err != nil {
		return err
	}
	const q = `INSERT INTO indexes (name, dimension, metric, created_at, updated_at)
VALUES (?, ?, ?, ?, ?) ON CONFLICT (name) DO NOTHING`

	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx, q, cfg.Name, cfg.Dimension, cfg.Metric.String(), now, now)
	if err != nil {
		return fmt.Errorf("vectorstore: create index: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return indexExists(cfg.Name)
	}
	s.log.Debug("vectorstore: index created", slog.String("index", cfg.Name), slog.String("backend", "sqlite"))
	return nil
}

// DescribeIndex implements Store.
func (s *SQLiteStore) DescribeIndex(ctx context.Context, name string) (IndexStats, error) {
	cfg, created, updated, err := s.lookup(ctx, s.db, name)
	if err != nil {
		return IndexStats{}, err
	}

	const q = `
SELECT COUNT(*),
       COALESCE(SUM(length(vector) + length(id) + length(content) + COALESCE(length(metadata), 0)), 0)
FROM   documents
WHERE  index_name = ?`

	stats := IndexStats{
		Name:      cfg.Name,
		Dimension: cfg.Dimension,
		Metric:    cfg.Metric,
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if err := s.db.QueryRowContext(ctx, q, name).Scan(&stats.VectorCount, &stats.IndexSizeBytes); err != nil {
		return IndexStats{}, fmt.Errorf("vectorstore: describe index: %w", err)
	}
	return stats, nil
}

// ListIndexes implements Store.
func (s *SQLiteStore) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM indexes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: list indexes: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("vectorstore: list indexes scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: list indexes rows: %w", err)
	}
	return names, nil
}

// DeleteIndex implements Store.
func (s *SQLiteStore) DeleteIndex(ctx context.Context, name string) error {
	return s.inTx(ctx, "delete index", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE name = ?`, name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return indexNotFound(name)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE index_name = ?`, name)
		return err
	})
}

// Upsert implements Store. The batch is written in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, index string, docs []Document) ([]string, error) {
	const q = `
INSERT INTO documents (index_name, id, content, vector, metadata) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (index_name, id) DO UPDATE
SET content = excluded.content, vector = excluded.vector, metadata = excluded.metadata`

	var ids []string
	err := s.inTx(ctx, "upsert", func(tx *sql.Tx) error {
		cfg, _, _, err := s.lookup(ctx, tx, index)
		if err != nil {
			return err
		}
		batch, batchIDs, err := prepareBatch(cfg.Dimension, docs)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, d := range batch {
			md, err := encodeMetadata(d.Metadata)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, index, d.ID, d.Content, EncodeVector(d.Vector), md); err != nil {
				return err
			}
		}
		if len(batch) > 0 {
			if err := s.touch(ctx, tx, index); err != nil {
				return err
			}
		}
		ids = batchIDs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, index string, q Query) ([]Result, error) {
	cfg, _, _, err := s.lookup(ctx, s.db, index)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(cfg.Dimension, q); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, content, vector, metadata FROM documents WHERE index_name = ?`, index)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	defer rows.Close()

	r := newRanker(q.TopK)
	for rows.Next() {
		d, seq, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: query scan: %w", err)
		}
		if !q.Filter.Matches(d.Metadata) {
			continue
		}
		r.offer(candidate{score: cfg.Metric.Score(q.Vector, d.Vector), seq: seq, doc: &d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: query rows: %w", err)
	}
	return r.results(q.IncludeVectors), nil
}

// GetDocuments implements Store.
func (s *SQLiteStore) GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]Document, error) {
	if _, _, _, err := s.lookup(ctx, s.db, index); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, index)
	for _, id := range ids {
		args = append(args, id)
	}
	q := `SELECT seq, id, content, vector, metadata FROM documents WHERE index_name = ? AND id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get documents: %w", err)
	}
	defer rows.Close()

	found := make(map[string]Document, len(ids))
	for rows.Next() {
		d, _, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: get documents scan: %w", err)
		}
		if !includeVectors {
			d.Vector = nil
		}
		found[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: get documents rows: %w", err)
	}

	out := make([]Document, 0, len(found))
	for _, id := range ids {
		if d, ok := found[id]; ok {
			out = append(out, d)
			delete(found, id)
		}
	}
	return out, nil
}

// UpdateByID implements Store.
func (s *SQLiteStore) UpdateByID(ctx context.Context, index, id string, vector []float32, metadata filter.Metadata) error {
	return s.inTx(ctx, "update", func(tx *sql.Tx) error {
		cfg, _, _, err := s.lookup(ctx, tx, index)
		if err != nil {
			return err
		}
		var sets []string
		var args []any
		if vector != nil {
			if err := checkVector(cfg.Dimension, vector); err != nil {
				return err
			}
			sets = append(sets, "vector = ?")
			args = append(args, EncodeVector(vector))
		}
		if metadata != nil {
			md, err := encodeMetadata(metadata)
			if err != nil {
				return err
			}
			sets = append(sets, "metadata = ?")
			args = append(args, md)
		}

		if len(sets) == 0 {
			var exists int
			err := tx.QueryRowContext(ctx,
				`SELECT 1 FROM documents WHERE index_name = ? AND id = ?`, index, id).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return docNotFound(index, id)
			}
			return err
		}

		args = append(args, index, id)
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE index_name = ? AND id = ?`, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return docNotFound(index, id)
		}
		return s.touch(ctx, tx, index)
	})
}

// DeleteByID implements Store.
func (s *SQLiteStore) DeleteByID(ctx context.Context, index, id string) error {
	return s.inTx(ctx, "delete", func(tx *sql.Tx) error {
		if _, _, _, err := s.lookup(ctx, tx, index); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE index_name = ? AND id = ?`, index, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return docNotFound(index, id)
		}
		return s.touch(ctx, tx, index)
	})
}

// Scan implements Store. Rows are read in pages so fn may call back into the
// store between documents.
func (s *SQLiteStore) Scan(ctx context.Context, index string, fn func(Document) error) error {
	if _, _, _, err := s.lookup(ctx, s.db, index); err != nil {
		return err
	}

	const q = `
SELECT seq, id, content, vector, metadata FROM documents
WHERE  index_name = ? AND seq > ?
ORDER  BY seq
LIMIT  ?`

	var after int64
	for {
		page, err := s.scanPage(ctx, q, index, after)
		if err != nil {
			return err
		}
		for _, p := range page {
			if err := fn(p.doc); err != nil {
				return err
			}
			after = p.seq
		}
		if len(page) < scanPageSize {
			return nil
		}
	}
}

func (s *SQLiteStore) scanPage(ctx context.Context, q, index string, after int64) ([]memDoc, error) {
	rows, err := s.db.QueryContext(ctx, q, index, after, scanPageSize)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: scan: %w", err)
	}
	defer rows.Close()

	page := make([]memDoc, 0, scanPageSize)
	for rows.Next() {
		d, seq, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: scan row: %w", err)
		}
		page = append(page, memDoc{doc: d, seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: scan rows: %w", err)
	}
	return page, nil
}

// HealthCheck implements Store.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: sqlite %s: %v", ErrConnectionFailed, s.path, err)
	}
	return nil
}

// BackendInfo implements Store.
func (s *SQLiteStore) BackendInfo() BackendInfo {
	var version string
	if err := s.db.QueryRow(`SELECT sqlite_version()`).Scan(&version); err != nil {
		version = "unknown"
	}
	return BackendInfo{Name: "sqlite", Version: version, Persistent: s.path != ":memory:"}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// lookup loads the configuration and timestamps of an index.
func (s *SQLiteStore) lookup(ctx context.Context, db queryer, name string) (IndexConfig, time.Time, time.Time, error) {
	const q = `SELECT dimension, metric, created_at, updated_at FROM indexes WHERE name = ?`

	var (
		cfg              = IndexConfig{Name: name}
		metric           string
		created, updated int64
	)
	err := db.QueryRowContext(ctx, q, name).Scan(&cfg.Dimension, &metric, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexConfig{}, time.Time{}, time.Time{}, indexNotFound(name)
	}
	if err != nil {
		return IndexConfig{}, time.Time{}, time.Time{}, fmt.Errorf("vectorstore: lookup index: %w", err)
	}
	if cfg.Metric, err = similarity.ParseMetric(metric); err != nil {
		return IndexConfig{}, time.Time{}, time.Time{}, fmt.Errorf("vectorstore: lookup index %q: %w", name, err)
	}
	return cfg, time.Unix(0, created), time.Unix(0, updated), nil
}

func (s *SQLiteStore) touch(ctx context.Context, tx *sql.Tx, index string) error {
	_, err := tx.ExecContext(ctx, `UPDATE indexes SET updated_at = ? WHERE name = ?`, s.now().UnixNano(), index)
	return err
}

// inTx runs fn in a transaction. Store sentinel errors pass through
// unchanged; driver errors are wrapped with op.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: %s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if isStoreError(err) {
			return err
		}
		return fmt.Errorf("vectorstore: %s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vectorstore: %s: commit: %w", op, err)
	}
	return nil
}

func isStoreError(err error) bool {
	for _, target := range []error{
		ErrIndexNotFound, ErrIndexAlreadyExists, ErrInvalidDimension, ErrDimensionMismatch,
		ErrInvalidInput, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// rowScanner is satisfied by *sql.Rows and *sql.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, int64, error) {
	var (
		d    Document
		seq  int64
		blob []byte
		md   sql.NullString
	)
	if err := row.Scan(&seq, &d.ID, &d.Content, &blob, &md); err != nil {
		return Document{}, 0, err
	}
	v, err := DecodeVector(blob)
	if err != nil {
		return Document{}, 0, err
	}
	d.Vector = v
	if md.Valid {
		if err := json.Unmarshal([]byte(md.String), &d.Metadata); err != nil {
			return Document{}, 0, fmt.Errorf("decode metadata of %q: %w", d.ID, err)
		}
	}
	return d, seq, nil
}

func encodeMetadata(md filter.Metadata) (sql.NullString, error) {
	if md == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
