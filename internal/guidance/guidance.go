// Package guidance asks a hosted generative model for disposal guidance and
// parses its three-section answer.
package guidance

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/upstream"
)

const service = "gemini"

// Failure categories surfaced to callers.
var (
	ErrNotConfigured = errors.New("generative model API key not configured")
	ErrNoInput       = errors.New("no text provided")
	ErrInvalidKey    = errors.New("invalid API key")
	ErrRateLimited   = errors.New("API rate limit exceeded")
	ErrSafetyBlocked = errors.New("content was blocked due to safety filters")
	ErrEmptyResponse = errors.New("no response from AI model")
)

// Request is the input to a guidance generation call.
type Request struct {
	Label       string
	Description string
	Location    *model.Coordinates
	Image       []byte
	ImageMIME   string
}

func (r Request) empty() bool {
	return strings.TrimSpace(r.Label) == "" && strings.TrimSpace(r.Description) == "" && len(r.Image) == 0
}

// Client calls the Gemini generateContent REST API.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a guidance client. endpoint is the API base, for example
// https://generativelanguage.googleapis.com/v1beta.
func NewClient(endpoint, modelName, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(0)
	}
	return &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		model:      strings.TrimSpace(modelName),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

// Enabled reports whether the client has a credential.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate returns the model's raw answer for the request.
func (c *Client) Generate(ctx context.Context, r Request) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if r.empty() {
		return "", ErrNoInput
	}

	parts := []geminiPart{{Text: BuildPrompt(r)}}
	if len(r.Image) > 0 {
		mime := r.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(r.Image),
		}})
	}

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.25,
			MaxOutputTokens: 1200,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := upstream.Do(c.httpClient, service, req)
	if err != nil {
		return "", categorize(err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrSafetyBlocked, parsed.PromptFeedback.BlockReason)
	}
	if len(parsed.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	candidate := parsed.Candidates[0]
	var b strings.Builder
	for _, p := range candidate.Content.Parts {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(p.Text))
	}
	if b.Len() == 0 {
		if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
			return "", fmt.Errorf("%w: %s", ErrSafetyBlocked, candidate.FinishReason)
		}
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// categorize maps an upstream failure onto the sentinel errors callers
// translate into distinct responses. The original error stays in the chain.
func categorize(err error) error {
	var upErr *upstream.Error
	if !errors.As(err, &upErr) {
		return err
	}

	message := upErr.Body
	var apiErr geminiError
	if json.Unmarshal([]byte(upErr.Body), &apiErr) == nil && apiErr.Error != nil {
		message = apiErr.Error.Status + " " + apiErr.Error.Message
	}
	lower := strings.ToLower(message)

	switch {
	case upErr.Status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case strings.Contains(lower, "api key"),
		upErr.Status == http.StatusUnauthorized,
		upErr.Status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "resource_exhausted"):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case strings.Contains(lower, "blocked"),
		strings.Contains(lower, "safety"):
		return fmt.Errorf("%w: %w", ErrSafetyBlocked, err)
	}
	return err
}
