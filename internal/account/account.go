// Package account creates user profiles and issues session tokens.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/trashtalkers/trashtalkers/internal/auth"
	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/store"
)

// Account errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrProviderDisabled   = errors.New("identity provider sign-in is not configured")
)

// Session is an issued session token.
type Session struct {
	Token    string
	Lifetime time.Duration
	User     *model.User
}

// Service handles signup, login and logout.
type Service struct {
	DB        *sql.DB
	JWTSecret string
	// Provider verifies identity provider ID tokens. Nil disables the exchange.
	Provider auth.Verifier
}

// Signup creates a local account and signs it in.
func (s *Service) Signup(ctx context.Context, email, password string, remember bool) (*Session, error) {
	email = normalizeEmail(email)
	if err := model.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := model.ValidatePassword(password); err != nil {
		return nil, err
	}

	existing, err := store.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := store.CreateUser(ctx, s.DB, uuid.NewString(), email, string(hash))
	if err != nil {
		return nil, err
	}

	slog.Info("user signed up", "user", user.ID)
	return s.issue(user, remember)
}

// Login checks a local account's password, touches its last login and
// issues a session.
func (s *Service) Login(ctx context.Context, email, password string, remember bool) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := store.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login failed", "user", user.ID)
		return nil, ErrInvalidCredentials
	}

	if err := store.TouchLastLogin(ctx, s.DB, user.ID); err != nil {
		return nil, err
	}

	slog.Info("user logged in", "user", user.ID)
	return s.issue(user, remember)
}

// Exchange verifies an identity provider ID token, creating the profile on
// first sign-in, and issues a local session for its subject. Provider
// profiles are never linked to local accounts: when the token's email already
// belongs to another account, or the token has none, the profile is stored
// without an email.
func (s *Service) Exchange(ctx context.Context, idToken string, remember bool) (*Session, error) {
	if s.Provider == nil {
		return nil, ErrProviderDisabled
	}

	claims, err := s.Provider.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	user, err := store.GetUser(ctx, s.DB, claims.UserID())
	if err != nil {
		return nil, err
	}
	if user == nil {
		email, err := s.providerEmail(ctx, claims)
		if err != nil {
			return nil, err
		}
		user, err = store.CreateUser(ctx, s.DB, claims.UserID(), email, "")
		if err != nil {
			return nil, err
		}
		slog.Info("provider user created", "user", user.ID)
	} else if err := store.TouchLastLogin(ctx, s.DB, user.ID); err != nil {
		return nil, err
	}

	return s.issue(user, remember)
}

// providerEmail returns the email to store for a new provider profile, or ""
// when it is missing or already taken.
func (s *Service) providerEmail(ctx context.Context, claims *auth.Claims) (string, error) {
	email := normalizeEmail(claims.Email)
	if email == "" {
		return "", nil
	}
	existing, err := store.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		slog.Warn("provider email belongs to another account", "user", claims.UserID(), "existing", existing.ID)
		return "", nil
	}
	return email, nil
}

// Logout revokes a session token until it would have expired.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	if err := store.RevokeToken(ctx, s.DB, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	slog.Info("user logged out", "user", claims.UserID())
	return nil
}

func (s *Service) issue(user *model.User, remember bool) (*Session, error) {
	lifetime := auth.Expiry(remember)
	token, err := auth.GenerateToken(s.JWTSecret, user.ID, user.Email, lifetime)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Lifetime: lifetime, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
