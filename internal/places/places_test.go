package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashtalkers/trashtalkers/internal/upstream"
)

func placesServer(t *testing.T, n int, inspect func(r *http.Request, req searchTextRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if inspect != nil {
			inspect(r, req)
		}

		var results []map[string]any
		for i := 0; i < n; i++ {
			results = append(results, map[string]any{
				"id":               fmt.Sprintf("place-%d", i),
				"displayName":      map[string]any{"text": fmt.Sprintf("Recycler %d", i), "languageCode": "en"},
				"formattedAddress": fmt.Sprintf("%d Main St, Columbus, OH", i+1),
				"location":         map[string]any{"latitude": 40.0 + float64(i)/100, "longitude": -83.0},
				"types":            []string{"point_of_interest"},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"places": results})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch(t *testing.T) {
	srv := placesServer(t, 3, func(r *http.Request, req searchTextRequest) {
		assert.Equal(t, "maps-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Equal(t, fieldMask, r.Header.Get("X-Goog-FieldMask"))
		assert.Equal(t, "plastic recycling center", req.TextQuery)
		assert.Equal(t, DefaultPageSize, req.PageSize)
		assert.Equal(t, "RELEVANCE", req.RankPreference)
		assert.Equal(t, DefaultRadius, req.LocationBias.Circle.Radius)
		assert.Equal(t, 40.0, req.LocationBias.Circle.Center.Latitude)
		assert.Equal(t, -83.0, req.LocationBias.Circle.Center.Longitude)
	})

	c := NewClient(srv.URL, "maps-key", srv.Client())
	got, err := c.Search(context.Background(), SearchRequest{TextQuery: "plastic recycling center", Latitude: 40.0, Longitude: -83.0})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, p := range got {
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Address)
	}
	assert.Equal(t, Place{Name: "Recycler 0", Latitude: 40.0, Longitude: -83.0, Address: "1 Main St, Columbus, OH"}, got[0])
}

func TestSearchCapsResults(t *testing.T) {
	srv := placesServer(t, 8, nil)

	got, err := NewClient(srv.URL, "k", srv.Client()).Search(context.Background(), SearchRequest{TextQuery: "glass", Latitude: 1, Longitude: 1})
	require.NoError(t, err)
	assert.Len(t, got, DefaultPageSize)
}

func TestSearchNotConfigured(t *testing.T) {
	_, err := NewClient("http://unused", "", nil).Search(context.Background(), SearchRequest{TextQuery: "glass", Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"Places API (New) has not been used in project"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", srv.Client()).Search(context.Background(), SearchRequest{TextQuery: "glass", Latitude: 1, Longitude: 1})

	var upErr *upstream.Error
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusForbidden, upErr.Status)
	assert.Contains(t, upErr.Body, "has not been used")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     SearchRequest
		wantErr bool
	}{
		{"ok", SearchRequest{TextQuery: "bins", Latitude: 40, Longitude: -83}, false},
		{"empty query", SearchRequest{TextQuery: "  ", Latitude: 40, Longitude: -83}, true},
		{"latitude out of range", SearchRequest{TextQuery: "bins", Latitude: 91, Longitude: 0}, true},
		{"longitude out of range", SearchRequest{TextQuery: "bins", Latitude: 0, Longitude: -181}, true},
		{"bad rank", SearchRequest{TextQuery: "bins", RankPreference: "POPULARITY"}, true},
		{"distance rank", SearchRequest{TextQuery: "bins", RankPreference: "distance"}, false},
	}

	for _, tt := range tests {
		err := tt.req.Validate()
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidParams, tt.name)
		} else {
			assert.NoError(t, err, tt.name)
		}
	}
}

func TestValidateDefaultsAndClamps(t *testing.T) {
	r := SearchRequest{TextQuery: " bins ", Radius: 1e9, PageSize: 100}
	require.NoError(t, r.Validate())
	assert.Equal(t, "bins", r.TextQuery)
	assert.Equal(t, maxRadius, r.Radius)
	assert.Equal(t, maxPageSize, r.PageSize)
	assert.Equal(t, DefaultRankPreference, r.RankPreference)
}
