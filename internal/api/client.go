package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hydralite/internal/status"
)

// Client talks to a running daemon over its HTTP API.
type Client struct {
	base   string
	token  string
	client *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("daemon returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("daemon returned HTTP %d: %s", e.Code, e.Detail)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// NewClient builds a client for address, which may be a bare host:port.
func NewClient(address string, opts ...ClientOption) *Client {
	base := strings.TrimRight(strings.TrimSpace(address), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		base:   base,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the singleton status record.
func (c *Client) Status(ctx context.Context) (*status.Record, error) {
	var resp status.Record
	if err := c.do(ctx, http.MethodGet, "/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Job fetches one job by audio name.
func (c *Client) Job(ctx context.Context, audioName string) (*JobView, error) {
	var resp JobView
	if err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(audioName), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Jobs lists registry entries, optionally filtered by stage.
func (c *Client) Jobs(ctx context.Context, stages ...string) ([]JobView, error) {
	path := "/jobs"
	if len(stages) > 0 {
		query := url.Values{}
		for _, stage := range stages {
			query.Add("stage", stage)
		}
		path += "?" + query.Encode()
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Quarantine lists quarantine entries.
func (c *Client) Quarantine(ctx context.Context) ([]QuarantineView, error) {
	var resp QuarantineListResponse
	if err := c.do(ctx, http.MethodGet, "/quarantine", &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// RetryQuarantine schedules an immediate retry for entry id.
func (c *Client) RetryQuarantine(ctx context.Context, id int64) (*QuarantineView, error) {
	var resp QuarantineView
	if err := c.do(ctx, http.MethodPost, "/quarantine/"+strconv.FormatInt(id, 10)+"/retry", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	if c.base == "" {
		return errors.New("api address is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload ErrorResponse
		_ = json.Unmarshal(body, &payload)
		return &StatusError{Code: resp.StatusCode, Detail: payload.Detail}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
