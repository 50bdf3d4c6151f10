package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/radio-curator/internal/retry"
)

func textResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, serverURL string) *HTTPClient {
	t.Helper()
	c, err := NewClient("test-key",
		WithBaseURL(serverURL),
		WithModel("test-model"),
		WithPolicy(retry.Policy{Attempts: 3}),
		WithPrompts("transcribe please", "classify please"),
	)
	require.NoError(t, err)
	return c
}

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake audio"), 0o600))
	return path
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestTranscribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "transcribe please", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Equal(t, "audio/mp3", req.Contents[0].Parts[1].InlineData.MimeType)
		assert.Len(t, req.SafetySettings, 4)

		_, _ = io.WriteString(w, textResponse("  la la la  "))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	text, ok := c.Transcribe(context.Background(), writeAudio(t, "song.mp3"))
	require.True(t, ok)
	assert.Equal(t, "la la la", text)
}

func TestTranscribe_EmptyResultExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, textResponse(""))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, ok := c.Transcribe(context.Background(), writeAudio(t, "song.webm"))
	assert.False(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTranscribe_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, textResponse("words"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	text, ok := c.Transcribe(context.Background(), writeAudio(t, "song.webm"))
	require.True(t, ok)
	assert.Equal(t, "words", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTranscribe_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, ok := c.Transcribe(context.Background(), writeAudio(t, "song.webm"))
	assert.False(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTranscribe_MissingFile(t *testing.T) {
	c, err := NewClient("k")
	require.NoError(t, err)
	_, ok := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.webm"))
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		output string
		ok     bool
		want   Classification
	}{
		{
			name:   "fenced json",
			output: "```json\n{\"is_safe_for_radio\": true, \"confidence\": 0.93, \"sentiment\": \"Positive\"}\n```",
			ok:     true,
			want:   Classification{Safe: true, Confidence: 0.93, Sentiment: "positive"},
		},
		{
			name:   "unsafe with explanation",
			output: `{"is_safe_for_radio": false, "confidence": "0.8", "explanation": "violent"}`,
			ok:     true,
			want:   Classification{Safe: false, Confidence: 0.8, Explanation: "violent"},
		},
		{name: "missing safety flag", output: `{"confidence": 0.5, "sentiment": "neutral"}`},
		{name: "missing confidence", output: `{"is_safe_for_radio": true}`},
		{name: "confidence out of range", output: `{"is_safe_for_radio": true, "confidence": 1.5}`},
		{name: "unknown sentiment", output: `{"is_safe_for_radio": true, "confidence": 0.5, "sentiment": "angry"}`},
		{name: "no json", output: "I cannot help with that"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				var req generateRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "classify please", req.SystemInstruction.Parts[0].Text)
				assert.Equal(t, "some lyrics", req.Contents[0].Parts[0].Text)
				_, _ = io.WriteString(w, textResponse(tt.output))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)
			got, ok := c.Classify(context.Background(), "some lyrics")
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.Equal(t, int32(1), calls.Load())
			} else {
				assert.Equal(t, int32(3), calls.Load(), "malformed output counts as a failed attempt")
			}
		})
	}
}

func TestParseClassification_Error(t *testing.T) {
	c, err := NewClient("k")
	require.NoError(t, err)
	_, err = c.parseClassification(`{"is_safe_for_radio": "yes"}`)
	assert.ErrorIs(t, err, ErrMalformedClassification)
}

func TestClassify_BlockedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"promptFeedback": {"blockReason": "SAFETY"}}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, ok := c.Classify(context.Background(), "text")
	assert.False(t, ok)
}

func TestRedact(t *testing.T) {
	err := redact(assert.AnError, "")
	assert.Equal(t, assert.AnError, err)

	err = redact(io.ErrUnexpectedEOF, "EOF")
	assert.False(t, strings.Contains(err.Error(), "EOF"))
}

func TestAudioMime(t *testing.T) {
	assert.Equal(t, "audio/mp3", audioMime("a.MP3"))
	assert.Equal(t, "audio/webm", audioMime("a.webm"))
	assert.Equal(t, "audio/webm", audioMime("a.m4a"))
}
