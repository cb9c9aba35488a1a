package db

import (
	"database/sql"
	"fmt"
)

// sqliteSchema is the full SQLite schema. Items are keyed by the owning user
// and the caller-generated item hash; there is no foreign key to users.
// Provider accounts may have no email, so users.email is nullable and unique
// only among non-null values.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT,
    password_hash TEXT,
    created_at    DATETIME NOT NULL,
    last_login    DATETIME NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	`CREATE TABLE IF NOT EXISTS items (
    user_id             TEXT NOT NULL,
    item_hash           TEXT NOT NULL,
    name                TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    photo               TEXT NOT NULL DEFAULT '',
    outcome             TEXT NOT NULL DEFAULT '',
    redemption_value    TEXT,
    confidence_rating   REAL NOT NULL DEFAULT 0,
    guidance_parsed     INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT,
    user_latitude       REAL,
    user_longitude      REAL,
    recycling_locations TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (user_id, item_hash)
)`,
	`CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS settings (
    name  TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
}

// mysqlSchema mirrors sqliteSchema for hosted MySQL deployments.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id            VARCHAR(128) NOT NULL PRIMARY KEY,
    email         VARCHAR(255),
    password_hash VARCHAR(255),
    created_at    DATETIME(6) NOT NULL,
    last_login    DATETIME(6) NOT NULL,
    UNIQUE KEY idx_users_email (email)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS items (
    user_id             VARCHAR(128) NOT NULL,
    item_hash           VARCHAR(64) NOT NULL,
    name                VARCHAR(255) NOT NULL,
    description         TEXT NOT NULL,
    photo               LONGTEXT NOT NULL,
    outcome             VARCHAR(64) NOT NULL DEFAULT '',
    redemption_value    VARCHAR(32),
    confidence_rating   DOUBLE NOT NULL DEFAULT 0,
    guidance_parsed     TINYINT(1) NOT NULL DEFAULT 0,
    created_at          VARCHAR(40),
    user_latitude       DOUBLE,
    user_longitude      DOUBLE,
    recycling_locations JSON NOT NULL,
    PRIMARY KEY (user_id, item_hash)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        VARCHAR(64) NOT NULL PRIMARY KEY,
    expires_at DATETIME(6) NOT NULL
) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS settings (
    name  VARCHAR(64) NOT NULL PRIMARY KEY,
    value TEXT NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	statements := sqliteSchema
	if DialectOf(db) == MySQL {
		statements = mysqlSchema
	}

	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema (statement %d): %w", i+1, err)
		}
	}
	return nil
}
