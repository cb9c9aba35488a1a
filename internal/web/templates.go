package web

import (
	"database/sql"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trashtalkers/trashtalkers/internal/account"
	"github.com/trashtalkers/trashtalkers/internal/auth"
	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/pipeline"
	webembed "github.com/trashtalkers/trashtalkers/web"
)

// Templates holds parsed HTML templates.
type Templates struct {
	templates map[string]*template.Template
}

// FuncMap returns the template function map.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"money": func(v *decimal.Decimal) string {
			if v == nil {
				return "Unknown"
			}
			if v.IsNegative() {
				return "-$" + v.Abs().StringFixed(2)
			}
			return "$" + v.StringFixed(2)
		},
		"date": func(t *time.Time) string {
			if t == nil {
				return "Unknown date"
			}
			return t.Local().Format("Jan 2, 2006")
		},
		"km": func(v *float64) string {
			if v == nil {
				return ""
			}
			return fmt.Sprintf("%.1f km", *v)
		},
		"percent": func(score float64) string {
			return fmt.Sprintf("%.0f%%", score*100)
		},
		"outcomeClass": func(outcome string) string {
			switch outcome {
			case model.OutcomeProfitable, model.OutcomeLegacyWin:
				return "profit"
			case model.OutcomeNonProfitable, model.OutcomeLegacyLose:
				return "loss"
			default:
				return "neutral"
			}
		},
		"photoURL": photoURL,
	}
}

// photoURL passes data: image URLs and https URLs through to src attributes.
// Anything else renders as an empty source.
func photoURL(s string) template.URL {
	if isImageDataURL(s) {
		return template.URL(s)
	}
	if u, err := url.Parse(s); err == nil && u.Scheme == "https" && u.Host != "" {
		return template.URL(u.String())
	}
	return ""
}

// LoadTemplates parses all page templates with the layout.
func LoadTemplates() (*Templates, error) {
	tfs := webembed.TemplatesFS()

	// Read layout.
	layoutBytes, err := fs.ReadFile(tfs, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout template: %w", err)
	}

	pages := []string{
		"login.html",
		"signup.html",
		"dashboard.html",
		"newitem.html",
		"item_detail.html",
	}

	ts := &Templates{templates: make(map[string]*template.Template)}

	for _, page := range pages {
		pageBytes, err := fs.ReadFile(tfs, page)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", page, err)
		}

		tmpl := template.New(page).Funcs(FuncMap())
		tmpl, err = tmpl.Parse(string(layoutBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", page, err)
		}
		tmpl, err = tmpl.Parse(string(pageBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}

		ts.templates[page] = tmpl
	}

	return ts, nil
}

// Render renders a template with the given data.
func (ts *Templates) Render(w http.ResponseWriter, name string, data any) {
	ts.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders a template with the given status code.
func (ts *Templates) RenderStatus(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := ts.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
	}
}

// PageData is the base data passed to all templates.
type PageData struct {
	Title   string
	User    *auth.Claims
	Error   string
	Success string
}

// Server holds all dependencies for page handlers.
type Server struct {
	DB            *sql.DB
	Templates     *Templates
	Guard         *auth.Guard
	Accounts      *account.Service
	Pipeline      *pipeline.Pipeline
	MapsAPIKey    string
	SecureCookies bool
}
