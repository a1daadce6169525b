package balancer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

var errUndecodable = errors.New("response body is not valid JSON")

// HTTPForwarder forwards requests to backends with GET and expects JSON
// answers.
type HTTPForwarder struct {
	Client *http.Client
}

func NewHTTPForwarder() *HTTPForwarder {
	return &HTTPForwarder{Client: &http.Client{}}
}

func (f *HTTPForwarder) Forward(ctx context.Context, b Backend, path string) (*Response, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimSuffix(b.Addr, "/") + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errUndecodable
	}
	return &Response{
		Backend:    b,
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
