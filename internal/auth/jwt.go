package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the session token claims. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// Session lifetimes.
const (
	TokenExpiry    = 7 * 24 * time.Hour
	RememberExpiry = 30 * 24 * time.Hour
)

// ErrInvalidToken is returned when a token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Expiry returns the session lifetime for the remember-me choice.
func Expiry(remember bool) time.Duration {
	if remember {
		return RememberExpiry
	}
	return TokenExpiry
}

// GenerateToken creates a new HS256 session token for a user with a unique JTI.
func GenerateToken(secret, userID, email string, lifetime time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("generating token: empty user id")
	}

	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a locally issued JWT, returning the claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", errors.Join(ErrInvalidToken, err))
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Verifier verifies a session token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// LocalVerifier verifies tokens issued by this server.
type LocalVerifier struct {
	Secret string
}

// Verify implements Verifier.
func (v LocalVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	return ValidateToken(v.Secret, token)
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

// Verify implements Verifier.
func (c Chain) Verify(ctx context.Context, token string) (*Claims, error) {
	if len(c) == 0 {
		return nil, ErrInvalidToken
	}
	var errs []error
	for _, v := range c {
		claims, err := v.Verify(ctx, token)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
