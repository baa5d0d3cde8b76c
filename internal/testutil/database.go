// Package testutil provides shared test helpers for runway packages.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/storage"
	"github.com/shopspring/decimal"
)

// TestDB is a migrated in-memory database.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database. Migrations run
// automatically and the database is closed when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// WithEvents seeds canonical events.
func (db *TestDB) WithEvents(events ...model.Event) *TestDB {
	db.t.Helper()
	if err := db.Storage.SaveEvents(context.Background(), events); err != nil {
		db.t.Fatalf("failed to seed events: %v", err)
	}
	return db
}

// WithCash seeds the starting cash position for userID.
func (db *TestDB) WithCash(userID, amount string) *TestDB {
	db.t.Helper()
	if err := db.Storage.SetStartingCash(context.Background(), userID, decimal.RequireFromString(amount)); err != nil {
		db.t.Fatalf("failed to seed starting cash: %v", err)
	}
	return db
}

// WithRules seeds financial rules.
func (db *TestDB) WithRules(rules ...model.FinancialRule) *TestDB {
	db.t.Helper()
	for i := range rules {
		if err := db.Storage.SaveRule(context.Background(), &rules[i]); err != nil {
			db.t.Fatalf("failed to seed rule %q: %v", rules[i].ID, err)
		}
	}
	return db
}
