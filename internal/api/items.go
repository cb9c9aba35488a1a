package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/pipeline"
	"github.com/trashtalkers/trashtalkers/internal/store"
)

// ItemsHandler handles a user's item collection.
type ItemsHandler struct {
	DB       *sql.DB
	Pipeline *pipeline.Pipeline
	// Development adds the error chain to failure payloads.
	Development bool
}

// List handles GET /api/users/{uid}/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListItems(r.Context(), h.DB, r.PathValue("uid"))
	if err != nil {
		slog.Error("failed to list items", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/users/{uid}/items/{itemHash}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := store.GetItem(r.Context(), h.DB, r.PathValue("uid"), r.PathValue("itemHash"))
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/users/{uid}/items/{itemHash}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, hash := r.PathValue("uid"), r.PathValue("itemHash")
	if err := store.DeleteItem(r.Context(), h.DB, uid, hash); err != nil {
		slog.Error("failed to delete item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	slog.Info("item deleted", "user", uid, "item", hash)
	w.WriteHeader(http.StatusNoContent)
}

// Create handles POST /api/users/{uid}/items. The multipart body carries the
// image, a description, the coordinates and optionally the chosen label.
// Without a label the image is classified first and the top label is used.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	data, declared, err := readFile(w, r, "image")
	if err != nil {
		if errors.Is(err, errNoFile) {
			jsonError(w, http.StatusBadRequest, "No image provided")
			return
		}
		h.fail(w, http.StatusBadRequest, "invalid upload", err)
		return
	}

	uid := r.PathValue("uid")
	label := strings.TrimSpace(fields.Get("label"))

	var run *pipeline.Run
	if label != "" {
		run, err = h.Pipeline.Resume(uid, data, declared, nil)
	} else {
		run = h.Pipeline.NewRun(uid)
		err = run.SelectImage(data, declared)
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if label == "" {
		if err := run.Classify(r.Context()); err != nil {
			slog.Error("classification failed", "user", uid, "error", err)
			h.fail(w, http.StatusInternalServerError, "Failed to classify image", err)
			return
		}
		label = run.Label
	}

	item, err := run.Submit(r.Context(), label, fields.Get("description"), coordinates(fields))
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrMissingFields), errors.Is(err, pipeline.ErrLocationRequired):
			jsonError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("item submission failed", "user", uid, "state", run.State, "error", err)
			h.fail(w, http.StatusInternalServerError, "Failed to create item", err)
		}
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

func (h *ItemsHandler) fail(w http.ResponseWriter, status int, message string, err error) {
	if h.Development {
		jsonErrorDetails(w, status, message, err)
		return
	}
	jsonError(w, status, message)
}
