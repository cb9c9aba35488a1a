package web

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trashtalkers/trashtalkers/internal/imaging"
	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/pipeline"
)

// Steps of the new item page.
const (
	stepUpload      = "upload"
	stepPredictions = "predictions"
)

const locationRequiredMessage = "Location access is required to submit. Please allow location access and try again."

const unverifiedPredictionsMessage = "Your classification could not be verified. Please classify the photo again."

// maxFormSize bounds a new item form: the image travels base64 encoded in
// the submit form.
const maxFormSize = 2*imaging.MaxUploadSize + 1<<20

type newItemPage struct {
	PageData
	Step            string
	Photo           string
	Predictions     []model.Prediction
	PredictionsJSON string
	// PredictionsSig binds PredictionsJSON to the user and photo.
	PredictionsSig string
	Label          string
	Description    string
	// CanRetry offers classification again for the photo already chosen.
	CanRetry bool
	Accept   string
}

func (s *Server) newItemPage(r *http.Request) *newItemPage {
	return &newItemPage{
		PageData: PageData{Title: "New Item", User: GetWebClaims(r.Context())},
		Step:     stepUpload,
		Accept:   acceptTypes(),
	}
}

// NewItemPage handles GET /dashboard/{uid}/newitem.
func (s *Server) NewItemPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "newitem.html", s.newItemPage(r))
}

// ClassifySubmit handles POST /dashboard/{uid}/newitem/classify. The image
// comes from the file input, or from the photo field when a failed
// classification is retried.
func (s *Server) ClassifySubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	page := s.newItemPage(r)

	if err := parseForm(w, r); err != nil {
		page.Error = "The upload is too large or malformed."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "newitem.html", page)
		return
	}

	data, declared, err := uploadedImage(r)
	if err != nil {
		page.Error = "Please choose an image to upload."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "newitem.html", page)
		return
	}

	run := s.Pipeline.NewRun(claims.UserID())
	if err := run.SelectImage(data, declared); err != nil {
		page.Error = imageError(err)
		s.Templates.RenderStatus(w, http.StatusBadRequest, "newitem.html", page)
		return
	}
	page.Photo = imaging.DataURL(run.ImageMIME, run.Image)

	if err := run.Classify(r.Context()); err != nil {
		page.Error = "Classification failed: " + err.Error()
		page.CanRetry = true
		s.Templates.RenderStatus(w, http.StatusInternalServerError, "newitem.html", page)
		return
	}

	page.setPredictions(run.Predictions, run.Label)
	page.PredictionsSig = s.signPredictions(claims.UserID(), page.Photo, page.PredictionsJSON)
	s.Templates.Render(w, "newitem.html", page)
}

// ItemSubmit handles POST /dashboard/{uid}/newitem/submit.
func (s *Server) ItemSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	page := s.newItemPage(r)

	if err := parseForm(w, r); err != nil {
		page.Error = "The form is too large or malformed."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "newitem.html", page)
		return
	}

	mime, data, err := imaging.ParseDataURL(r.FormValue("photo"))
	if err != nil {
		page.Error = "Your photo was not received. Please upload it again."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "newitem.html", page)
		return
	}

	var predictions []model.Prediction
	if raw := r.FormValue("predictions"); raw != "" {
		if !s.predictionsSigned(claims.UserID(), r.FormValue("photo"), raw, r.FormValue("predictionsSig")) {
			slog.Warn("rejecting unsigned predictions", "user", claims.UserID())
			page.Photo = r.FormValue("photo")
			page.CanRetry = isImageDataURL(page.Photo)
			page.Error = unverifiedPredictionsMessage
			s.Templates.RenderStatus(w, http.StatusBadRequest, "newitem.html", page)
			return
		}
		if err := json.Unmarshal([]byte(raw), &predictions); err != nil {
			slog.Warn("ignoring malformed predictions", "user", claims.UserID(), "error", err)
			predictions = nil
		}
	}

	run, err := s.Pipeline.Resume(claims.UserID(), data, mime, predictions)
	if err != nil {
		page.Error = imageError(err)
		s.Templates.RenderStatus(w, http.StatusBadRequest, "newitem.html", page)
		return
	}

	label := r.FormValue("label")
	description := r.FormValue("description")
	page.Photo = imaging.DataURL(run.ImageMIME, run.Image)
	page.setPredictions(run.Predictions, label)
	page.PredictionsSig = s.signPredictions(claims.UserID(), page.Photo, page.PredictionsJSON)
	page.Description = description

	item, err := run.Submit(r.Context(), label, description, formCoordinates(r))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrMissingFields):
			status = http.StatusBadRequest
			page.Error = "Please describe the item and choose a label."
		case errors.Is(err, pipeline.ErrLocationRequired):
			status = http.StatusBadRequest
			page.Error = locationRequiredMessage
		default:
			page.Error = "Could not create the item: " + err.Error()
		}
		s.Templates.RenderStatus(w, status, "newitem.html", page)
		return
	}

	http.Redirect(w, r, itemPath(claims.UserID(), item.ItemHash), http.StatusSeeOther)
}

func (p *newItemPage) setPredictions(predictions []model.Prediction, label string) {
	p.Step = stepPredictions
	p.Predictions = predictions
	p.Label = label
	if p.Label == "" && len(predictions) > 0 {
		p.Label = predictions[0].Label
	}
	if predictions == nil {
		predictions = []model.Prediction{}
	}
	if b, err := json.Marshal(predictions); err == nil {
		p.PredictionsJSON = string(b)
	}
}

// signPredictions returns an HMAC over the user, a digest of the photo and
// the predictions, keyed with the session secret.
func (s *Server) signPredictions(uid, photo, predictions string) string {
	sig, err := jwt.SigningMethodHS256.Sign(predictionsSigningString(uid, photo, predictions), s.signingKey())
	if err != nil {
		slog.Error("signing predictions", "user", uid, "error", err)
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(sig)
}

func (s *Server) predictionsSigned(uid, photo, predictions, sig string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || len(raw) == 0 {
		return false
	}
	return jwt.SigningMethodHS256.Verify(predictionsSigningString(uid, photo, predictions), raw, s.signingKey()) == nil
}

func (s *Server) signingKey() []byte {
	return []byte(s.Accounts.JWTSecret)
}

func predictionsSigningString(uid, photo, predictions string) string {
	digest := sha256.Sum256([]byte(photo))
	return uid + "." + base64.RawURLEncoding.EncodeToString(digest[:]) + "." + predictions
}

// parseForm reads a multipart or urlencoded form.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	err := r.ParseMultipartForm(imaging.MaxUploadSize)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

// uploadedImage returns the image file, falling back to the photo field.
func uploadedImage(r *http.Request) ([]byte, string, error) {
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		if len(data) > 0 {
			declared := header.Header.Get("Content-Type")
			if declared == "application/octet-stream" {
				declared = ""
			}
			return data, declared, nil
		}
	}

	mime, data, err := imaging.ParseDataURL(r.FormValue("photo"))
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

func imageError(err error) string {
	if errors.Is(err, imaging.ErrUnsupportedFormat) {
		return "Please upload a JPEG, PNG, or WebP image."
	}
	return "The image could not be read. Please try another one."
}

// formCoordinates returns the latitude and longitude fields, or nil unless
// both are valid.
func formCoordinates(r *http.Request) *model.Coordinates {
	lat, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("latitude")), 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("longitude")), 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil
	}
	return &model.Coordinates{Latitude: lat, Longitude: lng}
}

// acceptTypes lists the allowed image types for a file input.
func acceptTypes() string {
	types := make([]string, 0, len(imaging.AllowedMIME))
	for t := range imaging.AllowedMIME {
		types = append(types, t)
	}
	slices.Sort(types)
	return strings.Join(types, ",")
}

func isImageDataURL(s string) bool {
	mime, _, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ";")
	return strings.HasPrefix(s, "data:") && ok && imaging.Allowed(mime)
}
