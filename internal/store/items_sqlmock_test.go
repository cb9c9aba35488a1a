package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, mock
}

func TestCreateItemUsesReplace(t *testing.T) {
	database, mock := newMockDB(t)

	item := newTestItem("uid-1", "hash-1")
	mock.ExpectExec("REPLACE INTO items \\(user_id, item_hash, (.+)\\) VALUES").
		WithArgs("uid-1", "hash-1", item.Name, item.Description, item.Photo, item.Outcome,
			sqlmock.AnyArg(), item.ConfidenceRating, true, sqlmock.AnyArg(), 40.0, -83.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := CreateItem(context.Background(), database, item); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepositoryErrorsAreWrapped(t *testing.T) {
	dbErr := errors.New("connection reset")

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		call   func(database *sql.DB) error
	}{
		{
			name: "create",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("REPLACE INTO items").WillReturnError(dbErr)
			},
			call: func(database *sql.DB) error {
				return CreateItem(context.Background(), database, newTestItem("uid-1", "hash-1"))
			},
		},
		{
			name: "get",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM items WHERE user_id = \\? AND item_hash = \\?").
					WithArgs("uid-1", "hash-1").WillReturnError(dbErr)
			},
			call: func(database *sql.DB) error {
				_, err := GetItem(context.Background(), database, "uid-1", "hash-1")
				return err
			},
		},
		{
			name: "list",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM items WHERE user_id = \\?").WillReturnError(dbErr)
			},
			call: func(database *sql.DB) error {
				_, err := ListItems(context.Background(), database, "uid-1")
				return err
			},
		},
		{
			name: "delete",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM items WHERE user_id = \\? AND item_hash = \\?").
					WithArgs("uid-1", "hash-1").WillReturnError(dbErr)
			},
			call: func(database *sql.DB) error {
				return DeleteItem(context.Background(), database, "uid-1", "hash-1")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database, mock := newMockDB(t)
			tt.expect(mock)

			err := tt.call(database)
			if !errors.Is(err, dbErr) {
				t.Errorf("expected wrapped driver error, got %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestGetItemScansMockRow(t *testing.T) {
	database, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"user_id", "item_hash", "name", "description", "photo", "outcome",
		"redemption_value", "confidence_rating", "guidance_parsed", "created_at", "user_latitude",
		"user_longitude", "recycling_locations"}).
		AddRow("uid-1", "hash-1", "can", "crush it", "", "Profitable", "0.05", 0.8, true,
			"2025-01-02T03:04:05.000000000Z", nil, nil, `[{"name":"Depot","address":"1 Main","lat":1,"long":2}]`)
	mock.ExpectQuery("SELECT (.+) FROM items").WillReturnRows(rows)

	item, err := GetItem(context.Background(), database, "uid-1", "hash-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.RedemptionValue == nil || item.RedemptionValue.String() != "0.05" {
		t.Errorf("expected redemption 0.05, got %v", item.RedemptionValue)
	}
	if item.UserLocation != nil {
		t.Errorf("expected no user location, got %+v", item.UserLocation)
	}
	if len(item.RecyclingLocations) != 1 || item.RecyclingLocations[0].Name != "Depot" {
		t.Errorf("unexpected recycling locations: %+v", item.RecyclingLocations)
	}
}
