package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trashtalkers/trashtalkers/internal/model"
)

const itemColumns = `user_id, item_hash, name, description, photo, outcome, redemption_value,
	confidence_rating, guidance_parsed, created_at, user_latitude, user_longitude, recycling_locations`

// storedTimeLayout is fixed-width so created_at sorts lexically.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeLayouts are the created_at encodings found in stored records, newest first.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// CreateItem writes an item under its owner's collection, keyed by its hash.
// An existing item with the same key is fully replaced.
func CreateItem(ctx context.Context, db *sql.DB, item *model.Item) error {
	if item.UserID == "" || item.ItemHash == "" {
		return fmt.Errorf("creating item: user id and item hash required")
	}

	locations := item.RecyclingLocations
	if locations == nil {
		locations = []model.RecyclingLocation{}
	}
	locationsJSON, err := json.Marshal(locations)
	if err != nil {
		return fmt.Errorf("encoding recycling locations: %w", err)
	}

	var redemption decimal.NullDecimal
	if item.RedemptionValue != nil {
		redemption = decimal.NewNullDecimal(*item.RedemptionValue)
	}

	var createdAt sql.NullString
	if item.CreatedAt != nil {
		createdAt = sql.NullString{String: item.CreatedAt.UTC().Format(storedTimeLayout), Valid: true}
	}

	var lat, lng sql.NullFloat64
	if item.UserLocation != nil {
		lat = sql.NullFloat64{Float64: item.UserLocation.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: item.UserLocation.Longitude, Valid: true}
	}

	_, err = db.ExecContext(ctx,
		`REPLACE INTO items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.UserID, item.ItemHash, item.Name, item.Description, item.Photo, item.Outcome, redemption,
		item.ConfidenceRating, item.GuidanceParsed, createdAt, lat, lng, string(locationsJSON),
	)
	if err != nil {
		return fmt.Errorf("creating item: %w", err)
	}
	return nil
}

// GetItem returns a user's item by hash, or nil if it does not exist.
func GetItem(ctx context.Context, db *sql.DB, userID, itemHash string) (*model.Item, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE user_id = ? AND item_hash = ?`,
		userID, itemHash,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns every item in a user's collection, newest first. Items
// with an unknown creation time sort last.
func ListItems(ctx context.Context, db *sql.DB, userID string) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE user_id = ? ORDER BY created_at DESC, item_hash`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// DeleteItem removes a user's item. Deleting a missing item is not an error.
func DeleteItem(ctx context.Context, db *sql.DB, userID, itemHash string) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM items WHERE user_id = ? AND item_hash = ?`,
		userID, itemHash,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	var (
		item       model.Item
		redemption decimal.NullDecimal
		createdAt  sql.NullString
		lat, lng   sql.NullFloat64
		locations  string
	)
	err := row.Scan(&item.UserID, &item.ItemHash, &item.Name, &item.Description, &item.Photo, &item.Outcome,
		&redemption, &item.ConfidenceRating, &item.GuidanceParsed, &createdAt, &lat, &lng, &locations)
	if err != nil {
		return nil, err
	}

	item.ID = item.ItemHash
	if redemption.Valid {
		v := redemption.Decimal
		item.RedemptionValue = &v
	}
	if lat.Valid && lng.Valid {
		item.UserLocation = &model.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
	}

	item.CreatedAt = parseCreatedAt(createdAt)
	if item.CreatedAt == nil {
		slog.Warn("item has unknown creation time", "user", item.UserID, "item", item.ItemHash, "raw", createdAt.String)
	}

	item.RecyclingLocations = []model.RecyclingLocation{}
	if strings.TrimSpace(locations) != "" {
		if err := json.Unmarshal([]byte(locations), &item.RecyclingLocations); err != nil {
			return nil, fmt.Errorf("decoding recycling locations: %w", err)
		}
	}

	return &item, nil
}

// parseCreatedAt normalizes a stored creation time to UTC. Missing or
// unparseable values yield nil rather than a substitute time.
func parseCreatedAt(raw sql.NullString) *time.Time {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(raw.String)); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
