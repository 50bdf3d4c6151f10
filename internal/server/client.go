package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Static errors for control client operations.
var (
	// ErrServerURLRequired is returned when no server URL is provided.
	ErrServerURLRequired = errors.New("server: control URL is required")
	// ErrRequestFailed is returned for any non-2xx response.
	ErrRequestFailed = errors.New("server: request failed")
)

// Client submits and inspects runs on a running radiod instance, so manual
// builds go through the same single worker as scheduled ones.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a control client for baseURL, e.g. "http://localhost:5050".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrServerURLRequired
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateRun queues a run of the given kind.
func (c *Client) CreateRun(ctx context.Context, kind string) (CreateRunResponse, error) {
	body, err := json.Marshal(CreateRunRequest{Kind: kind})
	if err != nil {
		return CreateRunResponse{}, fmt.Errorf("server: marshal request: %w", err)
	}
	var out CreateRunResponse
	if err := c.doRequest(ctx, http.MethodPost, "/runs", body, &out); err != nil {
		return CreateRunResponse{}, err
	}
	return out, nil
}

// GetRun fetches one run.
func (c *Client) GetRun(ctx context.Context, runID string) (RunResponse, error) {
	var out RunResponse
	if err := c.doRequest(ctx, http.MethodGet, "/runs/"+url.PathEscape(runID), nil, &out); err != nil {
		return RunResponse{}, err
	}
	return out, nil
}

// WaitRun polls a run every interval until it completes or fails. On error
// the last state seen is returned alongside it.
func (c *Client) WaitRun(ctx context.Context, runID string, interval time.Duration) (RunResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last RunResponse
	for {
		r, err := c.GetRun(ctx, runID)
		if err != nil {
			return last, err
		}
		last = r
		if r.Status == "COMPLETED" || r.Status == "FAILED" {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("wait for run %s: %w", runID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("server: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("server: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e ErrorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Code != "" {
			return fmt.Errorf("%w with status %d: %s (%s)", ErrRequestFailed, resp.StatusCode, e.Error, e.Code)
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("server: unmarshal response: %w", err)
		}
	}
	return nil
}
