package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

// statusError is a non-2xx reply. Callers branch on the class: 4xx is a
// definitive venue answer, 5xx is indeterminate.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

func (e *statusError) clientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// apiClient is a small JSON-over-HTTP client shared by the adapters.
type apiClient struct {
	baseURL string
	client  *http.Client
}

// APIOption configures an adapter's HTTP layer.
type APIOption func(*apiClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) APIOption {
	return func(c *apiClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) APIOption {
	return func(c *apiClient) {
		c.client = client
	}
}

func newAPIClient(baseURL string, opts ...APIOption) *apiClient {
	c := &apiClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON performs a GET and decodes the reply into result.
func (c *apiClient) getJSON(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, result)
}

// postJSON performs a POST with a JSON body and decodes the reply.
func (c *apiClient) postJSON(ctx context.Context, path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *apiClient) do(req *http.Request, result interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
