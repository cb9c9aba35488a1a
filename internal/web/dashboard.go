package web

import (
	"cmp"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/store"
)

// Dashboard sort orders.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortAZ     = "a-z"
	SortZA     = "z-a"
)

// DashboardRedirect handles GET / and GET /dashboard.
func (s *Server) DashboardRedirect(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	http.Redirect(w, r, dashboardPath(claims.UserID()), http.StatusSeeOther)
}

// Dashboard handles GET /dashboard/{uid}.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	sortBy := r.URL.Query().Get("sort")
	switch sortBy {
	case SortNewest, SortOldest, SortAZ, SortZA:
	default:
		sortBy = SortNewest
	}

	page := PageData{Title: "Your Items", User: claims}
	items, err := store.ListItems(r.Context(), s.DB, claims.UserID())
	if err != nil {
		slog.Error("failed to list items for dashboard", "error", err)
		page.Error = "Could not load your items."
	}

	s.Templates.Render(w, "dashboard.html", &struct {
		PageData
		Items []model.Item
		Query string
		Sort  string
	}{
		PageData: page,
		Items:    sortItems(filterItems(items, query), sortBy),
		Query:    query,
		Sort:     sortBy,
	})
}

// filterItems keeps items whose name or description contains query,
// ignoring case.
func filterItems(items []model.Item, query string) []model.Item {
	if query == "" {
		return items
	}
	q := strings.ToLower(query)
	var out []model.Item
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), q) ||
			strings.Contains(strings.ToLower(item.Description), q) {
			out = append(out, item)
		}
	}
	return out
}

// sortItems orders items in place. Items without a creation time go last
// in both date orders.
func sortItems(items []model.Item, by string) []model.Item {
	slices.SortStableFunc(items, func(a, b model.Item) int {
		switch by {
		case SortAZ:
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case SortZA:
			return cmp.Compare(strings.ToLower(b.Name), strings.ToLower(a.Name))
		}

		switch {
		case a.CreatedAt == nil && b.CreatedAt == nil:
			return 0
		case a.CreatedAt == nil:
			return 1
		case b.CreatedAt == nil:
			return -1
		case by == SortOldest:
			return a.CreatedAt.Compare(*b.CreatedAt)
		default:
			return b.CreatedAt.Compare(*a.CreatedAt)
		}
	})
	return items
}
