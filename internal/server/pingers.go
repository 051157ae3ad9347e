package server

import (
	"context"
	"fmt"
	"net/http"
)

// pingFunc is the probe signature shared by the index, registry and model
// clients.
type pingFunc func(ctx context.Context) error

// namedPinger adapts any Ping method to the Pinger interface.
type namedPinger struct {
	name string
	ping pingFunc
}

// NewPinger labels a Ping method for readiness responses, e.g.
// NewPinger("index", store.Ping).
func NewPinger(name string, ping func(ctx context.Context) error) Pinger {
	return &namedPinger{name: name, ping: ping}
}

func (p *namedPinger) Name() string { return p.name }

func (p *namedPinger) Ping(ctx context.Context) error { return p.ping(ctx) }

// HTTPPinger probes an HTTP dependency with a GET request. Any response
// below 500 counts as reachable, so no tokens are spent probing a model API.
type HTTPPinger struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for url.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{name: name, url: url, client: &http.Client{}}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues GET url.
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
