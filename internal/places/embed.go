package places

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/trashtalkers/trashtalkers/internal/model"
)

// DirectionsEmbedBase is the Maps Embed API directions endpoint.
const DirectionsEmbedBase = "https://www.google.com/maps/embed/v1/directions"

// ErrNoAddress is returned when origin or destination is empty.
var ErrNoAddress = errors.New("no address provided")

// EmbedURL builds a driving directions embed URL for an iframe source.
func EmbedURL(apiKey, origin, destination string) (string, error) {
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return "", ErrNoAddress
	}
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrNotConfigured
	}

	q := url.Values{}
	q.Set("key", strings.TrimSpace(apiKey))
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("mode", "driving")
	return DirectionsEmbedBase + "?" + q.Encode(), nil
}

// CoordinateOrigin formats a point as a "lat,lng" origin.
func CoordinateOrigin(c model.Coordinates) string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}
