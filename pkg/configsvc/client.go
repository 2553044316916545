// Package configsvc is a client for the remote configuration service that
// stores market policy documents.
package configsvc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/conductores/onboarding-engine/internal/resilience"
)

const defaultBaseURL = "/api"

// Client reads and writes raw JSON configuration documents.
type Client interface {
	// LoadNamespace returns the document stored under namespace.
	LoadNamespace(ctx context.Context, namespace string) ([]byte, error)
	// Put replaces the document at path.
	Put(ctx context.Context, path string, body []byte) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *httpClient) {
		c.token = token
	}
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a config service client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) LoadNamespace(ctx context.Context, namespace string) ([]byte, error) {
	if namespace == "" {
		return nil, eris.New("configsvc: namespace is required")
	}
	return c.do(ctx, http.MethodGet, "/config/"+escapePath(namespace), nil)
}

func (c *httpClient) Put(ctx context.Context, path string, body []byte) error {
	if path == "" {
		return eris.New("configsvc: path is required")
	}
	_, err := c.do(ctx, http.MethodPut, "/"+escapePath(strings.TrimLeft(path, "/")), body)
	return err
}

func (c *httpClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrap(err, "configsvc: create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "configsvc: %s %s", method, path), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "configsvc: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := eris.Errorf("configsvc: %s %s unexpected status %d: %s", method, path, resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return respBody, nil
}

// escapePath escapes each segment and keeps the slashes.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
