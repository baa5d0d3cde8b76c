package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEvent(id, date, amount string, dir model.Direction) model.Event {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return model.Event{
		ID:         id,
		UserID:     "u1",
		Date:       d,
		Amount:     decimal.RequireFromString(amount),
		Direction:  dir,
		Category:   model.CategoryRetainer,
		Confidence: model.ConfidenceHigh,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)

	for _, table := range []string{"events", "cash_positions", "scenarios", "scenario_deltas", "committed_deltas", "financial_rules", "rule_evaluations"} {
		var n int
		require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestMemoryStorage(t *testing.T) {
	store, err := NewSQLiteStorage(MemoryPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(context.Background()))

	_, err = store.NewCheckpointManager()
	assert.Error(t, err)
}

func TestEvents_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	recurring := testEvent("e-2", "2025-02-15", "10000.50", model.DirectionIn)
	recurring.ClientID = "acme"
	recurring.IsRecurring = true
	recurring.RecurrencePattern = model.RecurrenceMonthly
	recurring.Gate = "contract_signed"

	past := testEvent("e-0", "2024-12-01", "5", model.DirectionOut)

	require.NoError(t, store.SaveEvents(ctx, []model.Event{
		recurring,
		testEvent("e-1", "2025-01-15", "250", model.DirectionOut),
		past,
	}))

	asOf := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	future, err := store.GetFutureEvents(ctx, "u1", asOf)
	require.NoError(t, err)
	require.Len(t, future, 2)
	assert.Equal(t, "e-1", future[0].ID)
	assert.Equal(t, "e-2", future[1].ID)

	got := future[1]
	assert.True(t, got.Amount.Equal(recurring.Amount))
	assert.Equal(t, recurring.Date, got.Date)
	assert.Equal(t, "acme", got.ClientID)
	assert.Equal(t, model.RecurrenceMonthly, got.RecurrencePattern)
	assert.True(t, got.IsRecurring)
	assert.Equal(t, "contract_signed", got.Gate)
	assert.True(t, got.IsCanonical())

	all, err := store.ListEvents(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	other, err := store.ListEvents(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSaveEvents_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveEvents(ctx, nil), ErrNilParameter)
	assert.ErrorIs(t, store.SaveEvents(ctx, []model.Event{}), ErrEmptySlice)

	bad := testEvent("e-1", "2025-01-15", "-1", model.DirectionOut)
	assert.ErrorIs(t, store.SaveEvents(ctx, []model.Event{bad}), model.ErrInvalidEvent)

	orphan := testEvent("e-2", "2025-01-15", "1", model.DirectionOut)
	orphan.UserID = ""
	assert.ErrorIs(t, store.SaveEvents(ctx, []model.Event{orphan}), model.ErrInvalidEvent)
}

func TestGetEvent_NotFound(t *testing.T) {
	store := createTestStorage(t)
	_, err := store.GetEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStartingCash(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	cash, err := store.GetStartingCash(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, cash.IsZero())

	require.NoError(t, store.SetStartingCash(ctx, "u1", decimal.RequireFromString("42000.10")))
	require.NoError(t, store.SetStartingCash(ctx, "u1", decimal.RequireFromString("50000")))

	cash, err = store.GetStartingCash(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "50000", cash.String())
}
