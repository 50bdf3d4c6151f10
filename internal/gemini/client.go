package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/radio-curator/internal/retry"
)

// Static errors for Gemini client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("gemini: API key is required")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("gemini: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("gemini: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("gemini: request failed")
	// ErrBlocked is returned when the prompt was blocked by the API.
	ErrBlocked = errors.New("gemini: prompt blocked")
	// ErrMalformedClassification is returned when the classifier output does not
	// contain a valid classification object.
	ErrMalformedClassification = errors.New("gemini: malformed classification")
)

// HTTPClient calls the Gemini REST API.
type HTTPClient struct {
	apiKey              string
	model               string
	baseURL             string
	httpClient          *http.Client
	policy              retry.Policy
	logger              *slog.Logger
	transcriptionPrompt string
	sentimentPrompt     string
	validate            *validator.Validate
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithModel sets the model name, e.g. "gemini-1.5-flash".
func WithModel(model string) ClientOption {
	return func(c *HTTPClient) {
		c.model = model
	}
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithPolicy sets the retry policy used by Transcribe and Classify.
func WithPolicy(p retry.Policy) ClientOption {
	return func(c *HTTPClient) {
		c.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// WithPrompts sets the system instructions for transcription and classification.
func WithPrompts(transcription, sentiment string) ClientOption {
	return func(c *HTTPClient) {
		c.transcriptionPrompt = transcription
		c.sentimentPrompt = sentiment
	}
}

// NewClient creates a new Gemini HTTP client.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &HTTPClient{
		apiKey:     apiKey,
		model:      "gemini-1.5-flash",
		baseURL:    "https://generativelanguage.googleapis.com",
		httpClient: &http.Client{Timeout: 120 * time.Second},
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

// Transcribe sends an audio file inline and returns the transcript.
// The boolean is false when every attempt failed or returned no text.
func (c *HTTPClient) Transcribe(ctx context.Context, audioPath string) (string, bool) {
	raw, err := os.ReadFile(audioPath) // #nosec G304 - path is a downloaded track
	if err != nil {
		c.logger.Error("read audio for transcription", slog.String("path", audioPath), slog.String("error", err.Error()))
		return "", false
	}

	req := generateRequest{
		SystemInstruction: c.instruction(c.transcriptionPrompt),
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: "."},
				{InlineData: &inlineData{MimeType: audioMime(audioPath), Data: base64.StdEncoding.EncodeToString(raw)}},
			},
		}},
		SafetySettings: blockNone(),
	}

	return retry.Do(ctx, c.policy, "transcribe", func(ctx context.Context) (string, error) {
		text, err := c.generate(ctx, req)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", retry.ErrEmptyResult
		}
		return text, nil
	})
}

// Classify asks the classifier whether text is safe for broadcast.
// The boolean is false when every attempt failed or produced no valid
// classification object.
func (c *HTTPClient) Classify(ctx context.Context, text string) (Classification, bool) {
	req := generateRequest{
		SystemInstruction: c.instruction(c.sentimentPrompt),
		Contents:          []content{{Role: "user", Parts: []part{{Text: text}}}},
	}

	return retry.Do(ctx, c.policy, "classify", func(ctx context.Context) (Classification, error) {
		out, err := c.generate(ctx, req)
		if err != nil {
			return Classification{}, err
		}
		if out == "" {
			return Classification{}, retry.ErrEmptyResult
		}
		return c.parseClassification(out)
	})
}

// parseClassification extracts the outermost JSON object from the model
// output and validates it.
func (c *HTTPClient) parseClassification(out string) (Classification, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return Classification{}, fmt.Errorf("%w: no JSON object in response", ErrMalformedClassification)
	}

	var p classificationPayload
	if err := json.Unmarshal([]byte(out[start:end+1]), &p); err != nil {
		return Classification{}, fmt.Errorf("%w: %w", ErrMalformedClassification, err)
	}
	p.Sentiment = strings.ToLower(strings.TrimSpace(p.Sentiment))
	if err := c.validate.Struct(p); err != nil {
		return Classification{}, fmt.Errorf("%w: %w", ErrMalformedClassification, err)
	}

	return Classification{
		Safe:        *p.IsSafe,
		Confidence:  float64(*p.Confidence),
		Sentiment:   p.Sentiment,
		Explanation: p.Explanation,
	}, nil
}

func (c *HTTPClient) instruction(prompt string) *content {
	if prompt == "" {
		return nil
	}
	return &content{Parts: []part{{Text: prompt}}}
}

// generate performs one generateContent call. Non-retryable failures are
// wrapped with retry.Permanent.
func (c *HTTPClient) generate(ctx context.Context, req generateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("gemini: marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))

	var resp generateResponse
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		if !isRetryable(err) {
			return "", retry.Permanent(err)
		}
		return "", err
	}
	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	return resp.text(), nil
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("gemini: request failed: %w", redact(err, c.apiKey))}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("gemini: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &retryableError{err: fmt.Errorf("gemini: unmarshal response: %w", err)}
		}
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// redact strips the API key from transport errors, which embed the request URL.
func redact(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}

func audioMime(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		return "audio/mp3"
	}
	return "audio/webm"
}
