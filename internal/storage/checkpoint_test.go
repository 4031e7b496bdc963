package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage_Snapshot(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := newTestTransaction(t, "Coffee", "4.50", time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveTransaction(ctx, txn))

	dest := filepath.Join(t.TempDir(), "backups", "snapshot.db")
	require.NoError(t, store.Snapshot(ctx, dest))

	copied, err := NewSQLiteStorage(dest)
	require.NoError(t, err)
	defer func() { _ = copied.Close() }()

	got, err := copied.GetTransaction(ctx, txn.UID())
	require.NoError(t, err)
	assert.Equal(t, "Coffee", got.Description)

	t.Run("refuses to overwrite", func(t *testing.T) {
		assert.ErrorIs(t, store.Snapshot(ctx, dest), ErrInvalidSnapshotPath)
	})

	t.Run("rejects unsafe paths", func(t *testing.T) {
		for _, path := range []string{"relative.db", "/tmp/it's.db", "/tmp/../etc/x.db"} {
			assert.ErrorIs(t, store.Snapshot(ctx, path), ErrInvalidSnapshotPath, path)
		}
	})
}

func TestCheckpointManager_Create(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SaveTransaction(ctx, newTestTransaction(t, "Rent", "1200", time.Now().UTC())))
	template := newTestTransaction(t, "Allowance", "20", time.Now().UTC())
	template.IsTemplate = true
	require.NoError(t, store.SaveTransaction(ctx, template))
	require.NoError(t, store.SaveScheduledAction(ctx, newTestAction(t, model.ActionTransaction)))

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-import", "Before OFX import")
	require.NoError(t, err)

	assert.Equal(t, "before-import", info.ID)
	assert.Equal(t, "Before OFX import", info.Description)
	assert.Equal(t, 2, info.Accounts)
	assert.Equal(t, 1, info.Transactions)
	assert.Equal(t, 1, info.Templates)
	assert.Equal(t, 1, info.ScheduledActions)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)
	assert.False(t, info.IsAuto)

	_, err = cm.Create(ctx, "before-import", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	_, err = cm.Create(ctx, "../escape", "")
	assert.ErrorIs(t, err, ErrInvalidCheckpointID)

	var stored int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM checkpoint_metadata WHERE id = ?", "before-import").Scan(&stored))
	assert.Equal(t, 1, stored)
}

func TestCheckpointManager_RequiresFileDatabase(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.NewCheckpointManager()
	assert.Error(t, err)
}

func TestCheckpointManager_ListAndDelete(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	_, err = cm.Create(ctx, "first", "")
	require.NoError(t, err)
	_, err = cm.Create(ctx, "second", "")
	require.NoError(t, err)

	checkpoints, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)
	assert.Equal(t, "second", checkpoints[0].ID)
	assert.Equal(t, "first", checkpoints[1].ID)

	require.NoError(t, cm.Delete(ctx, "first"))
	assert.ErrorIs(t, cm.Delete(ctx, "first"), ErrCheckpointNotFound)

	checkpoints, err = cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	assert.Equal(t, "second", checkpoints[0].ID)
}

func TestCheckpointManager_Restore(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	kept := newTestTransaction(t, "Kept", "10", at)
	require.NoError(t, store.SaveTransaction(ctx, kept))

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	_, err = cm.Create(ctx, "baseline", "")
	require.NoError(t, err)

	discarded := newTestTransaction(t, "Discarded", "99", at)
	require.NoError(t, store.SaveTransaction(ctx, discarded))

	assert.ErrorIs(t, cm.Restore(ctx, "missing"), ErrCheckpointNotFound)
	require.NoError(t, cm.Restore(ctx, "baseline"))

	reopened, err := NewSQLiteStorage(store.Path())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	_, err = reopened.GetTransaction(ctx, kept.UID())
	assert.NoError(t, err)
	_, err = reopened.GetTransaction(ctx, discarded.UID())
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, statErr := os.Stat(store.Path() + ".restore-backup")
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheckpointManager_RestoreRejectsCorruptCheckpoint(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	_, err = cm.Create(ctx, "broken", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cm.checkpointPath("broken"), []byte("not a database"), 0600))
	assert.Error(t, cm.Restore(ctx, "broken"))

	// The live database is untouched
	_, err = store.SchemaVersion(ctx)
	assert.NoError(t, err)
}

func TestCheckpointManager_AutoCheckpointCleanup(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	_, err = cm.Create(ctx, "manual", "")
	require.NoError(t, err)
	for i := 0; i < maxAutoCheckpoints+2; i++ {
		_, err := cm.create(ctx, fmt.Sprintf("auto-sweep-%d", i), "", true)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	info, err := cm.AutoCheckpoint(ctx, "schedule-run")
	require.NoError(t, err)
	assert.True(t, info.IsAuto)

	checkpoints, err := cm.List(ctx)
	require.NoError(t, err)

	autos := 0
	ids := make([]string, 0, len(checkpoints))
	for _, cp := range checkpoints {
		ids = append(ids, cp.ID)
		if cp.IsAuto {
			autos++
		}
	}
	assert.Equal(t, maxAutoCheckpoints, autos)
	assert.Contains(t, ids, "manual")
	assert.Contains(t, ids, info.ID)
	assert.NotContains(t, ids, "auto-sweep-0")
}
