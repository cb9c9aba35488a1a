package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/trashtalkers/trashtalkers/internal/account"
	"github.com/trashtalkers/trashtalkers/internal/auth"
	"github.com/trashtalkers/trashtalkers/internal/model"
)

type authPage struct {
	PageData
	Email    string
	Remember bool
}

// LoginPage handles GET /login.
func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "login.html", &authPage{PageData: PageData{Title: "Log in"}})
}

// LoginSubmit handles POST /login.
func (s *Server) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")
	remember := r.FormValue("remember") != ""

	page := &authPage{PageData: PageData{Title: "Log in"}, Email: email, Remember: remember}
	if email == "" || password == "" {
		page.Error = "Please enter your email and password."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "login.html", page)
		return
	}

	session, err := s.Accounts.Login(r.Context(), email, password, remember)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			page.Error = "Incorrect email or password."
			s.Templates.RenderStatus(w, http.StatusUnauthorized, "login.html", page)
			return
		}
		slog.Error("login failed", "error", err)
		page.Error = "Something went wrong while logging in. Please try again."
		s.Templates.RenderStatus(w, http.StatusInternalServerError, "login.html", page)
		return
	}

	auth.SetSessionCookie(w, session.Token, session.Lifetime, s.SecureCookies)
	http.Redirect(w, r, dashboardPath(session.User.ID), http.StatusSeeOther)
}

// SignupPage handles GET /signup.
func (s *Server) SignupPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "signup.html", &authPage{PageData: PageData{Title: "Sign up"}})
}

// SignupSubmit handles POST /signup.
func (s *Server) SignupSubmit(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")
	confirm := r.FormValue("confirm")
	remember := r.FormValue("remember") != ""

	page := &authPage{PageData: PageData{Title: "Sign up"}, Email: email, Remember: remember}
	if password != confirm {
		page.Error = "Passwords do not match."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "signup.html", page)
		return
	}

	session, err := s.Accounts.Signup(r.Context(), email, password, remember)
	if err != nil {
		var status int
		switch {
		case errors.Is(err, account.ErrEmailTaken):
			status = http.StatusConflict
			page.Error = "An account with this email already exists."
		case errors.Is(err, model.ErrInvalidEmail):
			status = http.StatusBadRequest
			page.Error = "Please enter a valid email address."
		case errors.Is(err, model.ErrWeakPassword):
			status = http.StatusBadRequest
			page.Error = "Password must be at least 8 characters."
		default:
			slog.Error("signup failed", "error", err)
			status = http.StatusInternalServerError
			page.Error = "Something went wrong while creating your account. Please try again."
		}
		s.Templates.RenderStatus(w, status, "signup.html", page)
		return
	}

	auth.SetSessionCookie(w, session.Token, session.Lifetime, s.SecureCookies)
	http.Redirect(w, r, dashboardPath(session.User.ID), http.StatusSeeOther)
}

// Logout handles POST /logout.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil && cookie.Value != "" {
		if claims, err := s.Guard.Authenticate(r.Context(), cookie.Value); err == nil {
			if err := s.Accounts.Logout(r.Context(), claims); err != nil {
				slog.Error("failed to revoke session", "error", err)
			}
		}
	}
	auth.ClearSessionCookie(w, s.SecureCookies)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
