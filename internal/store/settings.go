package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// GetJWTSecret retrieves the session signing secret from the database.
// If no secret exists, it generates one, stores it, and returns it.
// Concurrent first starts race on the insert; the loser's insert fails on the
// primary key and both read back the winner's value.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	candidate := hex.EncodeToString(buf)

	var secret string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE name = 'jwt_secret'`,
	).Scan(&secret)
	if err == nil {
		return secret, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("querying jwt_secret: %w", err)
	}

	_, insertErr := db.ExecContext(ctx,
		`INSERT INTO settings (name, value) VALUES ('jwt_secret', ?)`,
		candidate,
	)

	// Always read back (either our insert or a concurrent one).
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE name = 'jwt_secret'`,
	).Scan(&secret)
	if err != nil {
		if insertErr != nil {
			return "", fmt.Errorf("storing jwt_secret: %w", insertErr)
		}
		return "", fmt.Errorf("querying jwt_secret: %w", err)
	}

	return secret, nil
}
