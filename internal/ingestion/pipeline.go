// Package ingestion implements the document ingestion pipeline.
// It reads local files or fetches URLs, chunks the content, embeds each
// chunk and upserts the results into one index of the vector store.
// This pipeline is invoked by the `ragcore ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/54b3r/ragcore-go/internal/filter"
	"github.com/54b3r/ragcore-go/internal/rag"
	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// Source describes one document to ingest. Exactly one of Path and URL is set.
type Source struct {
	// Path is a local file.
	Path string

	// URL is an HTTP(S) URL to fetch.
	URL string

	// Metadata is attached to every chunk of the source, under the
	// generated source, chunk_index and format keys.
	Metadata filter.Metadata
}

// Location returns the path or URL of the source.
func (s Source) Location() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to 100 if zero.
	ChunkOverlap int

	// EmbedBatchSize is the number of chunks sent to the embedder at once.
	// Defaults to 32 if zero.
	EmbedBatchSize int

	// MaxBytes caps the bytes read from a single source. Defaults to 16 MiB.
	MaxBytes int64

	// HTTPTimeout is the timeout for each fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// Logger receives per-source progress. Nil means slog.Default().
	Logger *slog.Logger
}

// Report summarises an ingestion run.
type Report struct {
	Sources int `json:"sources"`
	Chunks  int `json:"chunks"`
	// Removed counts stale chunks left over from an earlier, longer version
	// of a source.
	Removed int `json:"removed"`
}

// Pipeline orchestrates the read → chunk → embed → upsert flow for a set
// of sources.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store vectorstore.Store

	// index is the target index name.
	index string

	// cfg holds the resolved pipeline configuration.
	cfg Config

	// httpClient is the HTTP client used for fetching URLs.
	httpClient *http.Client

	log *slog.Logger
}

// NewPipeline constructs a Pipeline writing into index.
func NewPipeline(embedder rag.Embedder, store vectorstore.Store, index string, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, errors.New("ingestion: store must not be nil")
	}
	if index == "" {
		return nil, errors.New("ingestion: index must not be empty")
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 10
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 32
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 16 << 20
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "ragcore/1.0 (document ingestion)"
	}
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		embedder:   embedder,
		store:      store,
		index:      index,
		cfg:        c,
		httpClient: &http.Client{Timeout: c.HTTPTimeout},
		log:        log,
	}, nil
}

// Ingest reads, chunks, embeds and stores all provided sources. It processes
// sources sequentially and returns the first error encountered together
// with the counts reached so far.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source) (Report, error) {
	var rep Report
	for _, src := range sources {
		n, removed, err := p.ingestOne(ctx, src)
		if err != nil {
			return rep, fmt.Errorf("ingestion: %s: %w", src.Location(), err)
		}
		rep.Sources++
		rep.Chunks += n
		rep.Removed += removed
	}
	return rep, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, src Source) (chunks, removed int, err error) {
	start := time.Now()
	location := src.Location()
	raw, contentType, err := p.read(ctx, src)
	if err != nil {
		return 0, 0, err
	}

	format := DetectFormat(location, contentType)
	texts := Chunk(ExtractText(format, raw), p.cfg.ChunkSize, p.cfg.ChunkOverlap)

	for lo := 0; lo < len(texts); lo += p.cfg.EmbedBatchSize {
		hi := min(lo+p.cfg.EmbedBatchSize, len(texts))
		embeddings, err := p.embedder.Embed(ctx, texts[lo:hi])
		if err != nil {
			return 0, 0, fmt.Errorf("embedding failed: %w", err)
		}
		if len(embeddings) != hi-lo {
			return 0, 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), hi-lo)
		}

		docs := make([]vectorstore.Document, 0, hi-lo)
		for i, text := range texts[lo:hi] {
			md := src.Metadata.Clone()
			if md == nil {
				md = make(filter.Metadata, 3)
			}
			md["source"] = filter.String(location)
			md["chunk_index"] = filter.Int(int64(lo + i))
			md["format"] = filter.String(format)
			docs = append(docs, vectorstore.Document{
				ID:       ChunkID(location, lo+i),
				Content:  text,
				Vector:   embeddings[i],
				Metadata: md,
			})
		}
		if _, err := p.store.Upsert(ctx, p.index, docs); err != nil {
			return 0, 0, fmt.Errorf("upsert failed: %w", err)
		}
	}

	removed, err = p.removeStale(ctx, location, len(texts))
	if err != nil {
		return 0, 0, err
	}

	p.log.Info("ingestion: source ingested",
		slog.String("source", location),
		slog.String("format", format),
		slog.Int("chunks", len(texts)),
		slog.Int("stale_removed", removed),
		slog.Duration("duration", time.Since(start)),
	)
	return len(texts), removed, nil
}

// removeStale deletes chunks numbered from onward, which exist when a source
// shrank since it was last ingested. Chunk ids are dense, so the first
// missing id ends the sweep.
func (p *Pipeline) removeStale(ctx context.Context, location string, from int) (int, error) {
	removed := 0
	for i := from; ; i++ {
		err := p.store.DeleteByID(ctx, p.index, ChunkID(location, i))
		if errors.Is(err, vectorstore.ErrNotFound) {
			return removed, nil
		}
		if err != nil {
			return removed, fmt.Errorf("remove stale chunk %d: %w", i, err)
		}
		removed++
	}
}

// read returns the raw content of src and its Content-Type when fetched.
func (p *Pipeline) read(ctx context.Context, src Source) (string, string, error) {
	switch {
	case src.URL != "" && src.Path != "":
		return "", "", errors.New("source has both a path and a URL")
	case src.URL != "":
		return p.fetch(ctx, src.URL)
	case src.Path != "":
		f, err := os.Open(src.Path)
		if err != nil {
			return "", "", err
		}
		defer f.Close()
		body, err := readLimited(f, p.cfg.MaxBytes)
		return body, "", err
	default:
		return "", "", errors.New("source has neither a path nor a URL")
	}
}

// fetch retrieves the raw content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := readLimited(resp.Body, p.cfg.MaxBytes)
	if err != nil {
		return "", "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func readLimited(r io.Reader, limit int64) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > limit {
		return "", fmt.Errorf("content exceeds %d bytes", limit)
	}
	return string(body), nil
}

// ExpandPaths turns files and directories into file sources. Directories are
// walked recursively for supported extensions, in lexical order.
func ExpandPaths(paths []string, metadata filter.Metadata) ([]Source, error) {
	var out []Source
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("ingestion: %w", err)
		}
		if !info.IsDir() {
			out = append(out, Source{Path: root, Metadata: metadata})
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if IsSupportedFile(p) {
				out = append(out, Source{Path: p, Metadata: metadata})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("ingestion: walk %s: %w", root, err)
		}
	}
	return out, nil
}

// Chunk splits text into chunks of at most size runes, consecutive chunks
// sharing overlap runes. A chunk that would end inside a word is shortened
// to the last whitespace in its final fifth, when there is one. Leading and
// trailing whitespace of each chunk is trimmed and empty chunks are dropped.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for cut := end; cut > end-size/5 && cut > start; cut-- {
				if unicode.IsSpace(runes[cut]) {
					end = cut
					break
				}
			}
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// ChunkID generates a deterministic ID for a document chunk based on its
// source location and chunk index.
func ChunkID(location string, index int) string {
	h := sha256.Sum256([]byte(location + "#" + strconv.Itoa(index)))
	return hex.EncodeToString(h[:16])
}
