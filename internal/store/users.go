package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trashtalkers/trashtalkers/internal/model"
)

// CreateUser creates a user profile. passwordHash is empty for accounts
// managed by the identity provider. An empty email is stored as NULL.
func CreateUser(ctx context.Context, db *sql.DB, id, email, passwordHash string) (*model.User, error) {
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, last_login) VALUES (?, ?, ?, ?, ?)`,
		id, nullString(email), nullString(passwordHash), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, or nil if none exists.
func GetUser(ctx context.Context, db *sql.DB, id string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, last_login FROM users WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by email, or nil if none exists.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, last_login FROM users WHERE email = ?`, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// TouchLastLogin records a successful login.
func TouchLastLogin(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var email, hash sql.NullString
	if err := row.Scan(&u.ID, &email, &hash, &u.CreatedAt, &u.LastLogin); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.PasswordHash = hash.String
	return u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
