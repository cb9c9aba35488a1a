// Package classify calls the hosted image classification endpoint.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/upstream"
)

const service = "huggingface"

var (
	// ErrNoImage is returned when there are no image bytes to classify.
	ErrNoImage = errors.New("no image provided")
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("classifier API key not configured")
)

// Client sends images to a Hugging Face inference endpoint. One Client is
// created per process and shared by all handlers.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a classification client.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(0)
	}
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

// Classify forwards the raw image bytes and returns the predictions in the
// order the endpoint ranked them.
func (c *Client) Classify(ctx context.Context, image []byte, contentType string) ([]model.Prediction, error) {
	if len(image) == 0 {
		return nil, ErrNoImage
	}
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("creating classification request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	body, err := upstream.Do(c.httpClient, service, req)
	if err != nil {
		return nil, err
	}

	predictions, err := parsePredictions(body)
	if err != nil {
		return nil, fmt.Errorf("decoding predictions: %w", err)
	}
	return predictions, nil
}

// parsePredictions accepts a flat prediction list or the nested form some
// endpoints return for single-image batches.
func parsePredictions(body []byte) ([]model.Prediction, error) {
	var flat []model.Prediction
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat, nil
	}

	var nested [][]model.Prediction
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return []model.Prediction{}, nil
		}
		return nested[0], nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("classifier error: %s", apiErr.Error)
	}
	return nil, fmt.Errorf("unexpected response: %.200s", body)
}
