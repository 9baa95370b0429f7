package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned by Sink.Reader when no snapshot exists yet.
var ErrNotFound = errors.New("snapshot: not found")

// Sink is a place a snapshot can be written to and read back from.
type Sink interface {
	// Writer opens the snapshot for writing. The snapshot becomes visible
	// to Reader only after the returned writer is closed successfully.
	Writer(ctx context.Context) (io.WriteCloser, error)

	// Reader opens the most recently completed snapshot.
	Reader(ctx context.Context) (io.ReadCloser, error)

	// String describes the sink location for logs.
	String() string
}

// aborter is implemented by writers that can discard a partial snapshot.
type aborter interface {
	Abort(cause error) error
}

func abort(w io.WriteCloser, cause error) error {
	if a, ok := w.(aborter); ok {
		return a.Abort(cause)
	}
	return w.Close()
}

// ---------------------------------------------------------------------------
// File
// ---------------------------------------------------------------------------

// FileSink stores a snapshot in a local file. Writes go to a temporary file
// in the same directory which is renamed into place on Close.
type FileSink struct {
	Path string
}

// NewFileSink returns a sink for path.
func NewFileSink(path string) *FileSink { return &FileSink{Path: path} }

// Writer implements Sink.
func (s *FileSink) Writer(_ context.Context) (io.WriteCloser, error) {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("snapshot: create directory %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	return &fileWriter{File: f, target: s.Path}, nil
}

// Reader implements Sink.
func (s *FileSink) Reader(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %q: %w", s.Path, err)
	}
	return f, nil
}

func (s *FileSink) String() string { return "file://" + s.Path }

type fileWriter struct {
	*os.File
	target string
}

func (w *fileWriter) Close() error {
	if err := w.File.Sync(); err != nil {
		_ = w.Abort(err)
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := w.File.Close(); err != nil {
		_ = os.Remove(w.File.Name())
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(w.File.Name(), w.target); err != nil {
		_ = os.Remove(w.File.Name())
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

func (w *fileWriter) Abort(error) error {
	_ = w.File.Close()
	return os.Remove(w.File.Name())
}

// ---------------------------------------------------------------------------
// MinIO / S3
// ---------------------------------------------------------------------------

// MinIOConfig locates a snapshot object in MinIO or any S3-compatible store.
type MinIOConfig struct {
	// Endpoint is host:port of the object store, without scheme.
	Endpoint string `yaml:"endpoint"`

	// AccessKey and SecretKey are static V4 credentials.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// UseSSL selects https.
	UseSSL bool `yaml:"use_ssl"`

	// Bucket holds the snapshot. It is created on first use.
	Bucket string `yaml:"bucket"`

	// Object is the key of the snapshot within Bucket.
	Object string `yaml:"object"`
}

// DefaultObject is the object key used when MinIOConfig.Object is empty.
const DefaultObject = "ragcore/snapshot.jsonl.zst"

// MinIOSink stores a snapshot as a single object.
type MinIOSink struct {
	client *minio.Client
	bucket string
	object string
}

// NewMinIOSink connects to the object store and makes sure the bucket
// exists.
func NewMinIOSink(ctx context.Context, cfg MinIOConfig) (*MinIOSink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("snapshot: minio: endpoint and bucket are required")
	}
	object := strings.TrimPrefix(cfg.Object, "/")
	if object == "" {
		object = DefaultObject
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("snapshot: minio: bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("snapshot: minio: create bucket %q: %w", cfg.Bucket, err)
		}
	}
	return &MinIOSink{client: client, bucket: cfg.Bucket, object: object}, nil
}

// Writer implements Sink. The object is uploaded as it is written.
func (s *MinIOSink) Writer(ctx context.Context) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &minioWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, s.object, pr, -1, minio.PutObjectOptions{
			ContentType: "application/zstd",
		})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Reader implements Sink.
func (s *MinIOSink) Reader(ctx context.Context) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, s.object, minio.StatObjectOptions{}); err != nil {
		if isMinIONotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s)
		}
		return nil, fmt.Errorf("snapshot: minio: stat %s: %w", s, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: minio: get %s: %w", s, err)
	}
	return obj, nil
}

func (s *MinIOSink) String() string { return "s3://" + s.bucket + "/" + s.object }

func isMinIONotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

type minioWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *minioWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *minioWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	if err := <-w.done; err != nil {
		return fmt.Errorf("snapshot: minio: upload: %w", err)
	}
	return nil
}

// Abort fails the upload so no partial object is committed.
func (w *minioWriter) Abort(cause error) error {
	_ = w.pw.CloseWithError(cause)
	<-w.done
	return nil
}
