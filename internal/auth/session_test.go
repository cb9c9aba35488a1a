package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trashtalkers/trashtalkers/internal/db"
	"github.com/trashtalkers/trashtalkers/internal/store"
)

func TestGuardAuthenticate(t *testing.T) {
	database := db.NewTestDB(t)
	g := &Guard{Verifier: LocalVerifier{Secret: "s"}, DB: database}
	ctx := context.Background()

	token, _ := GenerateToken("s", "uid-1", "", TokenExpiry)
	claims, err := g.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.UserID() != "uid-1" {
		t.Errorf("expected uid-1, got %q", claims.UserID())
	}

	if err := store.RevokeToken(ctx, database, claims.ID, claims.ExpiresAt.Time); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := g.Authenticate(ctx, token); !errors.Is(err, ErrRevoked) {
		t.Errorf("expected ErrRevoked, got %v", err)
	}

	if _, err := g.Authenticate(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := TokenFromRequest(r); got != "" {
		t.Errorf("expected no token, got %q", got)
	}

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	if got := TokenFromRequest(r); got != "from-cookie" {
		t.Errorf("expected cookie token, got %q", got)
	}

	r.Header.Set("Authorization", "Bearer from-header")
	if got := TokenFromRequest(r); got != "from-header" {
		t.Errorf("expected header token to win, got %q", got)
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "tok", RememberExpiry, true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "token" || c.Path != "/" || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected cookie attributes: %+v", c)
	}
	if c.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Errorf("expected 30 day max-age, got %d", c.MaxAge)
	}

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, false)
	if c := rec.Result().Cookies()[0]; c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("expected cleared cookie, got %+v", c)
	}
}
