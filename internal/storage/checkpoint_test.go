package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/runway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_CreateListRestore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runway.db")
	ctx := context.Background()

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.SaveEvents(ctx, []model.Event{testEvent("e-1", "2025-02-01", "100", model.DirectionIn)}))

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-commit", "safety net")
	require.NoError(t, err)
	assert.Equal(t, "before-commit", info.ID)
	assert.Equal(t, 1, info.Events)
	assert.Positive(t, info.FileSize)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)

	_, err = cm.Create(ctx, "before-commit", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	require.NoError(t, store.SaveEvents(ctx, []model.Event{testEvent("e-2", "2025-02-02", "100", model.DirectionIn)}))

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, cm.Restore(ctx, "before-commit"))

	reopened, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	events, err := reopened.ListEvents(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e-1", events[0].ID)

	_, err = os.Stat(dbPath + ".restore-backup")
	assert.True(t, os.IsNotExist(err))
}

func TestCheckpoint_AutoPrunes(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	for i := 0; i < maxAutoCheckpoints+2; i++ {
		_, err := cm.create(ctx, "auto-"+string(rune('a'+i)), "auto", true)
		require.NoError(t, err)
	}
	require.NoError(t, cm.pruneAuto(ctx))

	list, err := cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, maxAutoCheckpoints)
}

func TestCheckpoint_RejectsTraversal(t *testing.T) {
	store := createTestStorage(t)
	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	_, err = cm.Create(context.Background(), "../escape", "")
	assert.Error(t, err)
	assert.ErrorIs(t, cm.Delete(context.Background(), "missing"), ErrCheckpointNotFound)
	assert.ErrorIs(t, cm.Restore(context.Background(), "missing"), ErrCheckpointNotFound)
}
