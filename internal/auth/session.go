package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/trashtalkers/trashtalkers/internal/store"
)

// CookieName is the session cookie name.
const CookieName = "token"

// ErrRevoked is returned for a token that was logged out.
var ErrRevoked = errors.New("token revoked")

// Guard verifies session tokens and rejects revoked ones.
type Guard struct {
	Verifier Verifier
	DB       *sql.DB
}

// Authenticate verifies a session token and checks it against the
// revocation list.
func (g *Guard) Authenticate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims, err := g.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	if claims.ID != "" {
		revoked, err := store.IsTokenRevoked(ctx, g.DB, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("checking token revocation: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}
	return claims, nil
}

// TokenFromRequest returns the bearer token, or the session cookie value.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetSessionCookie stores a session token for the given lifetime.
func SetSessionCookie(w http.ResponseWriter, token string, lifetime time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(lifetime.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie with consistent attributes.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
