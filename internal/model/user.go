package model

import (
	"errors"
	"net/mail"
	"time"
)

// User is the profile stored under users/{uid}. Accounts created through the
// identity provider have no password hash.
type User struct {
	ID           string    `json:"uid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin"`
}

// MinPasswordLength is the shortest password accepted for local accounts.
const MinPasswordLength = 8

// Validation errors.
var (
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	ErrInvalidEmail = errors.New("invalid email address")
)

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// ValidateEmail checks that email is a single bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}
