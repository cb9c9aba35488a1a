package web

import (
	"database/sql"
	"net/http"
	"net/url"

	"github.com/trashtalkers/trashtalkers/internal/account"
	"github.com/trashtalkers/trashtalkers/internal/auth"
	"github.com/trashtalkers/trashtalkers/internal/pipeline"
	webembed "github.com/trashtalkers/trashtalkers/web"
)

// Deps are the collaborators the page routes are built from.
type Deps struct {
	DB            *sql.DB
	Guard         *auth.Guard
	Accounts      *account.Service
	Pipeline      *pipeline.Pipeline
	MapsAPIKey    string
	SecureCookies bool
}

// NewRouter creates the web page router with all page routes registered.
func NewRouter(d Deps) (http.Handler, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		DB:            d.DB,
		Templates:     templates,
		Guard:         d.Guard,
		Accounts:      d.Accounts,
		Pipeline:      d.Pipeline,
		MapsAPIKey:    d.MapsAPIKey,
		SecureCookies: d.SecureCookies,
	}

	mux := http.NewServeMux()
	cookieAuth := CookieAuthMiddleware(d.Guard, d.SecureCookies)

	// Static assets.
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	// Public routes.
	mux.HandleFunc("GET /login", s.LoginPage)
	mux.HandleFunc("POST /login", s.LoginSubmit)
	mux.HandleFunc("GET /signup", s.SignupPage)
	mux.HandleFunc("POST /signup", s.SignupSubmit)
	mux.HandleFunc("POST /logout", s.Logout)

	// Authenticated routes.
	mux.Handle("GET /{$}", cookieAuth(http.HandlerFunc(s.DashboardRedirect)))
	mux.Handle("GET /dashboard", cookieAuth(http.HandlerFunc(s.DashboardRedirect)))
	mux.Handle("GET /dashboard/{uid}", cookieAuth(http.HandlerFunc(s.Dashboard)))

	mux.Handle("GET /dashboard/{uid}/newitem", cookieAuth(http.HandlerFunc(s.NewItemPage)))
	mux.Handle("POST /dashboard/{uid}/newitem/classify", cookieAuth(http.HandlerFunc(s.ClassifySubmit)))
	mux.Handle("POST /dashboard/{uid}/newitem/submit", cookieAuth(http.HandlerFunc(s.ItemSubmit)))

	mux.Handle("GET /dashboard/{uid}/items/{itemHash}", cookieAuth(http.HandlerFunc(s.ItemDetailPage)))
	mux.Handle("POST /dashboard/{uid}/items/{itemHash}/delete", cookieAuth(http.HandlerFunc(s.ItemDeleteSubmit)))

	return mux, nil
}

func dashboardPath(uid string) string {
	return "/dashboard/" + url.PathEscape(uid)
}

func itemPath(uid, itemHash string) string {
	return dashboardPath(uid) + "/items/" + url.PathEscape(itemHash)
}
