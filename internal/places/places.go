// Package places searches for recycling facilities near a point and builds
// directions embeds.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/trashtalkers/trashtalkers/internal/upstream"
)

const service = "places"

// Search defaults.
const (
	DefaultRadius         = 5000.0
	DefaultPageSize       = 5
	DefaultRankPreference = "RELEVANCE"

	maxRadius   = 50000.0
	maxPageSize = 20
)

// fieldMask selects the response fields the search needs.
const fieldMask = "places.displayName,places.formattedAddress,places.location,places.id,places.types"

var (
	// ErrNotConfigured is returned when no Maps API key is set.
	ErrNotConfigured = errors.New("API configuration error")
	// ErrInvalidParams is returned for a missing query or bad coordinates.
	ErrInvalidParams = errors.New("missing required parameters: textQuery, latitude, longitude")
)

// SearchRequest is a text search biased to a circle around a point.
type SearchRequest struct {
	TextQuery      string
	Latitude       float64
	Longitude      float64
	Radius         float64
	PageSize       int
	RankPreference string
}

// Validate checks the request and fills in defaults.
func (r *SearchRequest) Validate() error {
	r.TextQuery = strings.TrimSpace(r.TextQuery)
	if r.TextQuery == "" {
		return fmt.Errorf("%w: empty textQuery", ErrInvalidParams)
	}
	if !validCoordinate(r.Latitude, 90) || !validCoordinate(r.Longitude, 180) {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidParams)
	}

	if r.Radius <= 0 {
		r.Radius = DefaultRadius
	}
	r.Radius = math.Min(r.Radius, maxRadius)

	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	r.PageSize = min(r.PageSize, maxPageSize)

	r.RankPreference = strings.ToUpper(strings.TrimSpace(r.RankPreference))
	switch r.RankPreference {
	case "":
		r.RankPreference = DefaultRankPreference
	case "RELEVANCE", "DISTANCE":
	default:
		return fmt.Errorf("%w: unknown rankPreference %q", ErrInvalidParams, r.RankPreference)
	}
	return nil
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// Place is a search result reduced to what the app stores.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Client calls the Places API text search endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a place search client.
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

type searchTextRequest struct {
	TextQuery      string       `json:"textQuery"`
	PageSize       int          `json:"pageSize"`
	RankPreference string       `json:"rankPreference"`
	LocationBias   locationBias `json:"locationBias"`
}

type locationBias struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Radius float64 `json:"radius"`
	Center latLng  `json:"center"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchTextResponse struct {
	Places []struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string   `json:"formattedAddress"`
		Location         latLng   `json:"location"`
		Types            []string `json:"types"`
	} `json:"places"`
}

// Search runs a text search and returns at most PageSize places.
func (c *Client) Search(ctx context.Context, r SearchRequest) ([]Place, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(searchTextRequest{
		TextQuery:      r.TextQuery,
		PageSize:       r.PageSize,
		RankPreference: r.RankPreference,
		LocationBias: locationBias{Circle: circle{
			Radius: r.Radius,
			Center: latLng{Latitude: r.Latitude, Longitude: r.Longitude},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding places request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating places request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	body, err := upstream.Do(c.httpClient, service, req)
	if err != nil {
		return nil, err
	}

	var parsed searchTextResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding places response: %w", err)
	}

	places := make([]Place, 0, min(len(parsed.Places), r.PageSize))
	for _, p := range parsed.Places {
		if len(places) == r.PageSize {
			break
		}
		places = append(places, Place{
			Name:      p.DisplayName.Text,
			Latitude:  p.Location.Latitude,
			Longitude: p.Location.Longitude,
			Address:   p.FormattedAddress,
		})
	}
	return places, nil
}
