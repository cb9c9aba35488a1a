package api

import (
	"database/sql"
	"net/http"

	"github.com/trashtalkers/trashtalkers/internal/account"
	"github.com/trashtalkers/trashtalkers/internal/auth"
	"github.com/trashtalkers/trashtalkers/internal/pipeline"
)

// Deps are the collaborators the API routes are built from.
type Deps struct {
	DB       *sql.DB
	Guard    *auth.Guard
	Accounts *account.Service
	Pipeline *pipeline.Pipeline
	// Limiter throttles the proxy routes per client IP. Nil disables it.
	Limiter *RateLimiter

	MapsAPIKey    string
	SecureCookies bool
	Development   bool
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	proxy := &ProxyHandler{
		Classifier:  d.Pipeline.Classifier,
		Guidance:    d.Pipeline.Guidance,
		Searcher:    d.Pipeline.Places,
		MapsAPIKey:  d.MapsAPIKey,
		Development: d.Development,
	}
	itemsHandler := &ItemsHandler{DB: d.DB, Pipeline: d.Pipeline, Development: d.Development}
	sessionHandler := &SessionHandler{Accounts: d.Accounts, SecureCookies: d.SecureCookies}

	authMW := AuthMiddleware(d.Guard)
	limit := func(h http.Handler) http.Handler { return h }
	if d.Limiter != nil {
		limit = d.Limiter.Middleware
	}

	// Public proxies, rate limited.
	mux.Handle("POST /api/classification", limit(http.HandlerFunc(proxy.Classification)))
	mux.Handle("POST /api/gemini", limit(http.HandlerFunc(proxy.Gemini)))
	mux.Handle("POST /api/places", limit(http.HandlerFunc(proxy.Places)))
	mux.Handle("POST /api/maps", limit(http.HandlerFunc(proxy.Maps)))

	// Sessions.
	mux.Handle("POST /api/session", limit(http.HandlerFunc(sessionHandler.Create)))
	mux.Handle("DELETE /api/session", authMW(http.HandlerFunc(sessionHandler.Delete)))

	// Items, owner only.
	mux.Handle("GET /api/users/{uid}/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/users/{uid}/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/users/{uid}/items/{itemHash}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("DELETE /api/users/{uid}/items/{itemHash}", authMW(http.HandlerFunc(itemsHandler.Delete)))

	return mux
}
