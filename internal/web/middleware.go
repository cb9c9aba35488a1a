package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/trashtalkers/trashtalkers/internal/auth"
)

type webContextKey string

const webClaimsKey webContextKey = "webclaims"

// CookieAuthMiddleware validates the session cookie, checks token revocation
// and adds the claims to the context. A route {uid} that is not the
// session's own sends the user to their own dashboard.
func CookieAuthMiddleware(guard *auth.Guard, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.CookieName)
			if err != nil || cookie.Value == "" {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			claims, err := guard.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrRevoked) {
					slog.Error("failed to authenticate session", "error", err)
				}
				auth.ClearSessionCookie(w, secure)
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			if uid := r.PathValue("uid"); uid != "" && uid != claims.UserID() {
				http.Redirect(w, r, dashboardPath(claims.UserID()), http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), webClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWebClaims retrieves the session claims from web context.
func GetWebClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(webClaimsKey).(*auth.Claims)
	return claims
}
