// Package gemini provides an HTTP client for the Gemini generateContent API,
// used for lyric transcription and radio-safety classification.
package gemini

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Classification is the validated verdict of the safety classifier.
type Classification struct {
	Safe        bool
	Confidence  float64
	Sentiment   string
	Explanation string
}

// generateRequest is the request body of models/{model}:generateContent.
type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	SafetySettings    []safetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

// harmCategories are relaxed for transcription so explicit lyrics are
// transcribed rather than blocked; judging them is the classifier's job.
var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

func blockNone() []safetySetting {
	s := make([]safetySetting, 0, len(harmCategories))
	for _, c := range harmCategories {
		s = append(s, safetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}
	return s
}

// generateResponse is the subset of the generateContent response that is read.
type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// text concatenates the text parts of the first candidate.
func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// classificationPayload is the JSON object the classifier prompt asks for.
type classificationPayload struct {
	IsSafe      *bool  `json:"is_safe_for_radio" validate:"required"`
	Confidence  *score `json:"confidence" validate:"required,gte=0,lte=1"`
	Sentiment   string `json:"sentiment" validate:"omitempty,oneof=positive negative neutral"`
	Explanation string `json:"explanation"`
}

// score accepts a JSON number or a numeric string.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("confidence %s: %w", b, err)
	}
	*s = score(v)
	return nil
}

var _ json.Unmarshaler = (*score)(nil)
