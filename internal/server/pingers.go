package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/54b3r/ragcore-go/internal/vectorstore"
)

// StorePinger probes the vector store backend through its HealthCheck.
// It satisfies the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	// store is the backend to probe.
	store vectorstore.Store
}

// NewStorePinger constructs a StorePinger for store.
func NewStorePinger(store vectorstore.Store) *StorePinger {
	return &StorePinger{store: store}
}

// Name returns the backend name used in readiness responses.
func (p *StorePinger) Name() string { return p.store.BackendInfo().Name }

// Ping calls the backend health check.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// HTTPPinger probes an HTTP dependency, such as an embedding endpoint, with
// a GET request. Any response below 500 counts as reachable: the probe only
// establishes that the service answers.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses (e.g. "ollama").
	name string
	// url is the probed address.
	url string
	// client sends the probe.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. A nil client uses http.DefaultClient.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPinger{name: name, url: strings.TrimRight(url, "/"), client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping sends the probe request.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
