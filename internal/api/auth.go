package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/trashtalkers/trashtalkers/internal/account"
	"github.com/trashtalkers/trashtalkers/internal/auth"
)

// SessionHandler exchanges identity provider tokens for session cookies.
type SessionHandler struct {
	Accounts      *account.Service
	SecureCookies bool
}

type sessionRequest struct {
	IDToken  string `json:"idToken"`
	Remember bool   `json:"remember"`
}

type sessionResponse struct {
	Success bool   `json:"success"`
	UID     string `json:"uid"`
}

// Create handles POST /api/session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IDToken == "" {
		jsonError(w, http.StatusBadRequest, "idToken required")
		return
	}

	session, err := h.Accounts.Exchange(r.Context(), req.IDToken, req.Remember)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrProviderDisabled):
			jsonError(w, http.StatusNotImplemented, err.Error())
		case errors.Is(err, auth.ErrInvalidToken):
			slog.Warn("id token rejected", "remote", r.RemoteAddr, "error", err)
			jsonError(w, http.StatusUnauthorized, "invalid token")
		default:
			slog.Error("session exchange failed", "error", err)
			jsonError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	auth.SetSessionCookie(w, session.Token, session.Lifetime, h.SecureCookies)
	jsonResponse(w, http.StatusOK, sessionResponse{Success: true, UID: session.User.ID})
}

// Delete handles DELETE /api/session.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.Logout(r.Context(), GetClaims(r.Context())); err != nil {
		slog.Error("failed to revoke session", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	auth.ClearSessionCookie(w, h.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}
