package healthcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultPath = "/heartbeat"

// HTTPProber considers a backend healthy when GET <addr><Path> answers 200.
type HTTPProber struct {
	Client *http.Client
	// Path is the probed path. DefaultPath is used if empty.
	Path string
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{},
		Path:   DefaultPath,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, addr string) error {
	path := p.Path
	if path == "" {
		path = DefaultPath
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimSuffix(addr, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ProbeError{Addr: addr, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &ProbeError{Addr: addr, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &ProbeError{Addr: addr, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}
