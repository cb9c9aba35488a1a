package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/places"
	"github.com/trashtalkers/trashtalkers/internal/store"
)

// directions is a recycling location with its embedded map, if any.
type directions struct {
	model.RecyclingLocation
	EmbedURL string
}

// ItemDetailPage handles GET /dashboard/{uid}/items/{itemHash}.
func (s *Server) ItemDetailPage(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	item, err := store.GetItem(r.Context(), s.DB, claims.UserID(), r.PathValue("itemHash"))
	if err != nil {
		slog.Error("failed to get item", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if item == nil {
		http.Redirect(w, r, dashboardPath(claims.UserID()), http.StatusSeeOther)
		return
	}

	s.Templates.Render(w, "item_detail.html", &struct {
		PageData
		Item       *model.Item
		Directions []directions
	}{
		PageData:   PageData{Title: item.Name, User: claims},
		Item:       item,
		Directions: s.itemDirections(item),
	})
}

// itemDirections pairs each recycling location with a driving directions embed
// from the position the item was submitted at.
func (s *Server) itemDirections(item *model.Item) []directions {
	origin := ""
	if item.UserLocation != nil {
		origin = places.CoordinateOrigin(*item.UserLocation)
	}

	out := make([]directions, 0, len(item.RecyclingLocations))
	for _, loc := range item.RecyclingLocations {
		d := directions{RecyclingLocation: loc}
		destination := loc.Address
		if destination == "" {
			destination = strconv.FormatFloat(loc.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
		}

		embedURL, err := places.EmbedURL(s.MapsAPIKey, origin, destination)
		switch {
		case err == nil:
			d.EmbedURL = embedURL
		case !errors.Is(err, places.ErrNoAddress):
			slog.Warn("directions unavailable", "item", item.ItemHash, "error", err)
		}
		out = append(out, d)
	}
	return out
}

// ItemDeleteSubmit handles POST /dashboard/{uid}/items/{itemHash}/delete.
func (s *Server) ItemDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	hash := r.PathValue("itemHash")

	if err := store.DeleteItem(r.Context(), s.DB, claims.UserID(), hash); err != nil {
		slog.Error("failed to delete item", "error", err)
		http.Error(w, "failed to delete", http.StatusInternalServerError)
		return
	}

	slog.Info("item deleted", "user", claims.UserID(), "item", hash)
	http.Redirect(w, r, dashboardPath(claims.UserID()), http.StatusSeeOther)
}
