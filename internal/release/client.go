// Package release looks up published devcell CLI releases on GitHub and npm
// and caches the result of the background update check.
//
// The caller passes the current version string; nothing here reads build
// metadata. CheckForUpdate is designed for a goroutine with a cancellable
// context so an unfinished request is aborted when the command exits.
package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultRepo is the GitHub repository publishing devcell releases.
	DefaultRepo = "schmitthub/devcell"
	// NPMPackage is the npm package wrapping the devcell binary.
	NPMPackage = "devcell"

	defaultGitHubAPI   = "https://api.github.com"
	defaultNPMRegistry = "https://registry.npmjs.org"
	defaultTimeout     = 5 * time.Second
)

// HTTPError is a non-200 response from a release endpoint.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned %d", e.URL, e.StatusCode)
}

// Option configures a GitHubClient or NPMClient.
type Option func(*httpConfig)

type httpConfig struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *httpConfig) {
		h.client = c
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(url string) Option {
	return func(h *httpConfig) {
		h.baseURL = url
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *httpConfig) {
		h.timeout = d
	}
}

func newHTTPConfig(baseURL string, opts []Option) httpConfig {
	h := httpConfig{
		client:  &http.Client{},
		baseURL: baseURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&h)
	}
	// Apply timeout to client if not custom
	if h.client.Timeout == 0 {
		h.client.Timeout = h.timeout
	}
	return h
}

// get issues a GET and returns the body of a 200 response. The caller closes
// the body.
func (h httpConfig) get(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	req.Header.Set("Accept", accept)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}
