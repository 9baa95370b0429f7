package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable wraps transport failures talking to a remote embedding
// backend: refused connections, DNS errors, timeouts.
var ErrUnavailable = errors.New("embedder: backend unavailable")

// maxResponseBytes caps how much of an embeddings response is read.
const maxResponseBytes = 64 << 20

// StatusError is returned when a backend answers with a non-2xx status.
type StatusError struct {
	Backend string
	Status  int
	// Message is the backend's own error text when it sent one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s embedder: HTTP %d", e.Backend, e.Status)
	}
	return fmt.Sprintf("%s embedder: HTTP %d: %s", e.Backend, e.Status, e.Message)
}

func defaultClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends in as JSON to url and decodes a 2xx body into out. For
// other statuses errMessage extracts the backend's message from the body.
func postJSON(ctx context.Context, client *http.Client, backend, url string, header http.Header,
	in, out any, errMessage func([]byte) string) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s embedder: marshal request: %w", backend, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s embedder: create request: %w", backend, err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s embedder: %w", backend, ctx.Err())
		}
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, backend, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %w", ErrUnavailable, backend, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Backend: backend, Status: resp.StatusCode, Message: errMessage(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s embedder: decode response: %w", backend, err)
	}
	return nil
}

// checkDimensions reports the first vector whose length differs from want.
func checkDimensions(backend string, vectors [][]float32, want int) error {
	if want <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%s embedder: embedding %d has %d dimensions, want %d (set EMBEDDING_DIMENSIONS to match the model)",
				backend, i, len(v), want)
		}
	}
	return nil
}
