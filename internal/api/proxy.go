package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/trashtalkers/trashtalkers/internal/classify"
	"github.com/trashtalkers/trashtalkers/internal/guidance"
	"github.com/trashtalkers/trashtalkers/internal/imaging"
	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/pipeline"
	"github.com/trashtalkers/trashtalkers/internal/places"
	"github.com/trashtalkers/trashtalkers/internal/upstream"
)

// errNoFile is returned when a multipart request has no usable file field.
var errNoFile = errors.New("no file provided")

// ProxyHandler forwards requests to the hosted classification, generative
// model and maps services.
type ProxyHandler struct {
	Classifier pipeline.Classifier
	Guidance   pipeline.GuidanceGenerator
	Searcher   pipeline.PlaceSearcher
	MapsAPIKey string
	// Development adds the error chain to failure payloads.
	Development bool
}

// fail writes an error response, with details in development mode.
func (h *ProxyHandler) fail(w http.ResponseWriter, status int, message string, err error) {
	if h.Development {
		jsonErrorDetails(w, status, message, err)
		return
	}
	jsonError(w, status, message)
}

type classificationResponse struct {
	Success          bool               `json:"success"`
	WastePredictions []model.Prediction `json:"wastePredictions"`
}

// Classification handles POST /api/classification.
func (h *ProxyHandler) Classification(w http.ResponseWriter, r *http.Request) {
	data, declared, err := readFile(w, r, "image")
	if err != nil {
		if errors.Is(err, errNoFile) {
			jsonError(w, http.StatusBadRequest, "No image provided")
			return
		}
		h.fail(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}

	contentType, err := checkImage(data, declared)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	predictions, err := h.Classifier.Classify(r.Context(), data, contentType)
	if err != nil {
		slog.Error("classification failed", "error", err)
		var upErr *upstream.Error
		switch {
		case errors.As(err, &upErr):
			jsonError(w, http.StatusInternalServerError,
				fmt.Sprintf("Hugging Face API error (%d): %s", upErr.Status, upErr.Text()))
		case errors.Is(err, classify.ErrNotConfigured):
			jsonError(w, http.StatusInternalServerError, "Hugging Face API key not configured")
		default:
			h.fail(w, http.StatusInternalServerError, "Failed to classify image", err)
		}
		return
	}

	jsonResponse(w, http.StatusOK, classificationResponse{Success: true, WastePredictions: predictions})
}

type answerResponse struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer"`
}

// configurable is implemented by clients that can report a missing credential
// before any request is made.
type configurable interface {
	Enabled() bool
}

// Gemini handles POST /api/gemini. A missing credential is reported before
// the input is validated.
func (h *ProxyHandler) Gemini(w http.ResponseWriter, r *http.Request) {
	if c, ok := h.Guidance.(configurable); ok && !c.Enabled() {
		h.fail(w, http.StatusUnauthorized, "Invalid API key", guidance.ErrNotConfigured)
		return
	}

	fields, err := readFields(w, r)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := guidance.Request{
		Label:       strings.TrimSpace(fields.Get("huggingfaceText")),
		Description: strings.TrimSpace(fields.Get("userDescription")),
		Location:    coordinates(fields),
	}
	if req.Description == "" {
		req.Description = strings.TrimSpace(fields.Get("userText"))
	}

	if isMultipart(r) {
		data, declared, err := readFile(w, r, "image")
		switch {
		case errors.Is(err, errNoFile):
		case err != nil:
			h.fail(w, http.StatusBadRequest, "Invalid upload", err)
			return
		default:
			contentType, err := checkImage(data, declared)
			if err != nil {
				jsonError(w, http.StatusBadRequest, err.Error())
				return
			}
			req.Image, req.ImageMIME = data, contentType
		}
	}

	if req.Label == "" && req.Description == "" && len(req.Image) == 0 {
		jsonError(w, http.StatusBadRequest, "No text provided")
		return
	}

	answer, err := h.Guidance.Generate(r.Context(), req)
	if err != nil {
		slog.Error("guidance generation failed", "error", err)
		switch {
		case errors.Is(err, guidance.ErrNotConfigured), errors.Is(err, guidance.ErrInvalidKey):
			h.fail(w, http.StatusUnauthorized, "Invalid API key", err)
		case errors.Is(err, guidance.ErrNoInput):
			jsonError(w, http.StatusBadRequest, "No text provided")
		case errors.Is(err, guidance.ErrRateLimited):
			h.fail(w, http.StatusTooManyRequests, "API rate limit exceeded. Please try again later.", err)
		case errors.Is(err, guidance.ErrSafetyBlocked):
			h.fail(w, http.StatusBadRequest, "Content was blocked due to safety filters", err)
		default:
			jsonErrorDetails(w, http.StatusInternalServerError, "Failed to generate response", err)
		}
		return
	}

	jsonResponse(w, http.StatusOK, answerResponse{Success: true, Answer: answer})
}

type placesResponse struct {
	Success bool           `json:"success"`
	Places  []places.Place `json:"places"`
}

// Places handles POST /api/places.
func (h *ProxyHandler) Places(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	const missing = "Missing required parameters: textQuery, latitude, longitude"
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(fields.Get("latitude")), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(fields.Get("longitude")), 64)
	if strings.TrimSpace(fields.Get("textQuery")) == "" || latErr != nil || lngErr != nil {
		jsonError(w, http.StatusBadRequest, missing)
		return
	}

	req := places.SearchRequest{
		TextQuery:      fields.Get("textQuery"),
		Latitude:       lat,
		Longitude:      lng,
		RankPreference: fields.Get("rankPreference"),
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(fields.Get("radius")), 64); err == nil {
		req.Radius = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(fields.Get("pageSize"))); err == nil {
		req.PageSize = v
	}

	found, err := h.Searcher.Search(r.Context(), req)
	if err != nil {
		var upErr *upstream.Error
		switch {
		case errors.Is(err, places.ErrInvalidParams):
			h.fail(w, http.StatusBadRequest, missing, err)
		case errors.Is(err, places.ErrNotConfigured):
			jsonError(w, http.StatusInternalServerError, "API configuration error")
		case errors.As(err, &upErr):
			slog.Error("place search failed", "error", err)
			jsonError(w, http.StatusInternalServerError,
				fmt.Sprintf("Google Places API error (%d): %s", upErr.Status, upErr.Text()))
		default:
			slog.Error("place search failed", "error", err)
			h.fail(w, http.StatusInternalServerError, "Failed to search places", err)
		}
		return
	}
	if found == nil {
		found = []places.Place{}
	}

	jsonResponse(w, http.StatusOK, placesResponse{Success: true, Places: found})
}

type mapsRequest struct {
	Origin      json.RawMessage `json:"origin"`
	Destination json.RawMessage `json:"destination"`
}

type mapsResponse struct {
	Success  bool    `json:"success"`
	EmbedURL *string `json:"embedUrl"`
	Error    string  `json:"error,omitempty"`
}

// Maps handles POST /api/maps.
func (h *ProxyHandler) Maps(w http.ResponseWriter, r *http.Request) {
	var req mapsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "No address provided")
		return
	}

	embedURL, err := places.EmbedURL(h.MapsAPIKey, address(req.Origin), address(req.Destination))
	if err != nil {
		if errors.Is(err, places.ErrNoAddress) {
			jsonError(w, http.StatusBadRequest, "No address provided")
			return
		}
		slog.Error("building directions url failed", "error", err)
		jsonResponse(w, http.StatusInternalServerError, mapsResponse{Error: err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, mapsResponse{Success: true, EmbedURL: &embedURL})
}

// address reads a location given either as a string or as
// {"latitude": .., "longitude": ..}.
func address(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var c struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(raw, &c); err == nil && c.Latitude != nil && c.Longitude != nil {
		return places.CoordinateOrigin(model.Coordinates{Latitude: *c.Latitude, Longitude: *c.Longitude})
	}
	return ""
}

// coordinates returns the latitude/longitude fields, or nil unless both parse.
func coordinates(fields url.Values) *model.Coordinates {
	lat, err := strconv.ParseFloat(strings.TrimSpace(fields.Get("latitude")), 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(fields.Get("longitude")), 64)
	if err != nil {
		return nil
	}
	return &model.Coordinates{Latitude: lat, Longitude: lng}
}

// checkImage returns the sniffed content type of an upload whose declared
// type is on the allow-list.
func checkImage(data []byte, declared string) (string, error) {
	if declared != "" && !imaging.Allowed(declared) {
		return "", imaging.ErrUnsupportedFormat
	}
	return imaging.Sniff(data)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "multipart/form-data"
}

// maxRequestSize bounds request bodies: one image plus form fields.
const maxRequestSize = imaging.MaxUploadSize + 1<<20

// readFields returns the request fields from a JSON object, a multipart form
// or a urlencoded form. JSON numbers and booleans are returned as text.
func readFields(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var raw map[string]any
		if err := decodeJSON(r, &raw); err != nil {
			return nil, fmt.Errorf("decoding json body: %w", err)
		}
		values := url.Values{}
		for k, v := range raw {
			switch v := v.(type) {
			case string:
				values.Set(k, v)
			case float64:
				values.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
			case bool:
				values.Set(k, strconv.FormatBool(v))
			}
		}
		return values, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(imaging.MaxUploadSize); err != nil {
			return nil, fmt.Errorf("parsing multipart form: %w", err)
		}
		return r.Form, nil
	default:
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parsing form: %w", err)
		}
		return r.Form, nil
	}
}

// readFile returns the bytes and declared content type of a multipart file.
// A generic octet-stream type counts as undeclared.
func readFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, error) {
	if r.MultipartForm == nil {
		if !isMultipart(r) {
			return nil, "", errNoFile
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
		if err := r.ParseMultipartForm(imaging.MaxUploadSize); err != nil {
			return nil, "", fmt.Errorf("parsing multipart form: %w", err)
		}
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", errNoFile
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, "", errNoFile
	}
	declared := header.Header.Get("Content-Type")
	if declared == "application/octet-stream" {
		declared = ""
	}
	return data, declared, nil
}
