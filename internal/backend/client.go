package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/radio-curator/internal/playlist"
	"github.com/maauso/radio-curator/internal/retry"
)

// Static errors for backend client operations.
var (
	// ErrBaseURLRequired is returned when the backend URL is not provided.
	ErrBaseURLRequired = errors.New("backend: base URL is required")
	// ErrUnexpectedStatus is returned for any non-200 response.
	ErrUnexpectedStatus = errors.New("backend: unexpected status")
)

const (
	feedPath       = "/voting/songs-to-play"
	nowPlayingPath = "/voting/playing-song"
)

// HTTPClient talks to the voting backend.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
	validate   *validator.Validate
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithPolicy sets the retry policy.
func WithPolicy(p retry.Policy) ClientOption {
	return func(hc *HTTPClient) {
		hc.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(hc *HTTPClient) {
		hc.logger = l
	}
}

// NewClient creates a new backend HTTP client.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = c.policy.WithLogger(c.logger)

	return c, nil
}

// FetchFeed returns the songs to play. Entries without a URL are dropped.
// The boolean is false when every attempt failed.
func (c *HTTPClient) FetchFeed(ctx context.Context) ([]FeedEntry, bool) {
	entries, ok := retry.Do(ctx, c.policy, "fetch feed", func(ctx context.Context) ([]FeedEntry, error) {
		var out []FeedEntry
		if err := c.doRequest(ctx, http.MethodGet, c.baseURL+feedPath, nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if !ok {
		return nil, false
	}

	valid := entries[:0]
	for i, e := range entries {
		e.URL = strings.TrimSpace(e.URL)
		if err := c.validate.Struct(e); err != nil {
			c.logger.Warn("dropping invalid feed entry", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		valid = append(valid, e)
	}
	return valid, true
}

// Candidates adapts the feed for the playlist accumulator.
func (c *HTTPClient) Candidates(ctx context.Context) ([]playlist.Candidate, bool) {
	entries, ok := c.FetchFeed(ctx)
	if !ok {
		return nil, false
	}
	out := make([]playlist.Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, playlist.Candidate{
			URL:      e.URL,
			Duration: playlist.DeclaredDuration(e.Duration, c.logger),
		})
	}
	return out, true
}

// ReportPlaying posts the track currently on air. Failure is logged and
// reported as false; it never blocks playback.
func (c *HTTPClient) ReportPlaying(ctx context.Context, np NowPlaying) bool {
	if err := c.validate.Struct(np); err != nil {
		c.logger.Warn("refusing to report invalid now-playing", slog.String("error", err.Error()))
		return false
	}
	body, err := json.Marshal(np)
	if err != nil {
		c.logger.Error("marshal now-playing", slog.String("error", err.Error()))
		return false
	}

	_, ok := retry.Do(ctx, c.policy, "report playing", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.doRequest(ctx, http.MethodPost, c.baseURL+nowPlayingPath, body, nil)
	})
	return ok
}

// doRequest performs a single HTTP request. Only 200 counts as success.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("backend: create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(respBody, 256))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("backend: unmarshal response: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
