package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAction(t *testing.T, actionType model.ActionType) *model.ScheduledAction {
	t.Helper()
	rec := model.NewRecurrence(model.Week)
	rec.Multiplier = 2
	rec.PeriodStart = time.Date(2016, 6, 6, 9, 0, 0, 0, time.UTC)
	rec.PeriodEnd = time.Date(2016, 9, 12, 8, 0, 0, 0, time.UTC)
	rec.SetByDays([]time.Weekday{time.Monday, time.Thursday})

	action, err := model.NewScheduledAction(actionType, rec)
	require.NoError(t, err)
	return action
}

func TestSQLiteStorage_SaveAndGetScheduledAction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	action := newTestAction(t, model.ActionBackup)
	action.Tag = "DB;LOCAL;0;false;"
	action.TotalFrequency = 10
	action.ExecutionCount = 3
	action.LastRun = time.Date(2016, 6, 20, 9, 0, 0, 0, time.UTC)
	action.AutoNotify = true
	action.AdvanceCreateDays = 2
	action.AdvanceNotifyDays = 1
	action.TemplateAccountUID = "tmpl-acct"

	require.NoError(t, store.SaveScheduledAction(ctx, action))

	got, err := store.GetScheduledAction(ctx, action.UID)
	require.NoError(t, err)

	assert.Equal(t, action.UID, got.UID)
	assert.Equal(t, model.ActionBackup, got.ActionType)
	assert.Equal(t, action.Tag, got.Tag)
	assert.Equal(t, 10, got.TotalFrequency)
	assert.Equal(t, 3, got.ExecutionCount)
	assert.Equal(t, action.LastRun, got.LastRun)
	assert.True(t, got.Enabled)
	assert.True(t, got.AutoCreate)
	assert.True(t, got.AutoNotify)
	assert.Equal(t, 2, got.AdvanceCreateDays)
	assert.Equal(t, 1, got.AdvanceNotifyDays)
	assert.Equal(t, "tmpl-acct", got.TemplateAccountUID)

	rec := got.Recurrence()
	require.NotNil(t, rec)
	assert.Equal(t, action.Recurrence().UID, rec.UID)
	assert.Equal(t, model.Week, rec.PeriodType)
	assert.Equal(t, 2, rec.Multiplier)
	assert.Equal(t, action.StartTime(), got.StartTime())
	assert.Equal(t, action.EndTime(), got.EndTime())
	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, rec.ByDays())
	assert.Equal(t, action.RuleString(), got.RuleString())
}

func TestSQLiteStorage_ScheduledActionNeverRun(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	action := newTestAction(t, model.ActionTransaction)
	action.SetEndTime(time.Time{})
	require.NoError(t, store.SaveScheduledAction(ctx, action))

	got, err := store.GetScheduledAction(ctx, action.UID)
	require.NoError(t, err)
	assert.False(t, got.HasRun())
	assert.True(t, got.EndTime().IsZero())
}

func TestSQLiteStorage_SaveScheduledActionValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveScheduledAction(ctx, nil), ErrNilParameter)

	var noRecurrence model.ScheduledAction
	noRecurrence.UID = "abc"
	noRecurrence.ActionType = model.ActionTransaction
	err := store.SaveScheduledAction(ctx, &noRecurrence)
	assert.ErrorIs(t, err, ErrInvalidScheduledAction)
	assert.ErrorIs(t, err, model.ErrNoRecurrence)

	bad := newTestAction(t, model.ActionTransaction)
	bad.Recurrence().Multiplier = 0
	assert.ErrorIs(t, store.SaveScheduledAction(ctx, bad), model.ErrInvalidRecurrence)
}

func TestSQLiteStorage_ListAndDeleteScheduledActions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	enabled := newTestAction(t, model.ActionTransaction)
	fixClock(store, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	enabled.CreatedAt = time.Time{}
	require.NoError(t, store.SaveScheduledAction(ctx, enabled))

	disabled := newTestAction(t, model.ActionBackup)
	disabled.Enabled = false
	fixClock(store, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	disabled.CreatedAt = time.Time{}
	require.NoError(t, store.SaveScheduledAction(ctx, disabled))

	all, err := store.ListScheduledActions(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, enabled.UID, all[0].UID)
	assert.Equal(t, disabled.UID, all[1].UID)

	active, err := store.ListScheduledActions(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, enabled.UID, active[0].UID)

	require.NoError(t, store.DeleteScheduledAction(ctx, enabled.UID))
	_, err = store.GetScheduledAction(ctx, enabled.UID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, store.DeleteScheduledAction(ctx, enabled.UID), common.ErrNotFound)

	var recurrences int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM recurrences").Scan(&recurrences))
	assert.Equal(t, 1, recurrences)
}

func TestSQLiteStorage_RecordOccurrence(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	action := newTestAction(t, model.ActionTransaction)
	require.NoError(t, store.SaveScheduledAction(ctx, action))

	due := time.Date(2016, 6, 6, 9, 0, 0, 0, time.UTC)
	txn := newTestTransaction(t, "Allowance", "20", due)
	txn.ScheduledActionUID = action.UID
	action.ExecutionCount = 1
	action.LastRun = due

	require.NoError(t, store.RecordOccurrence(ctx, txn, action))

	got, err := store.GetScheduledAction(ctx, action.UID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ExecutionCount)
	assert.Equal(t, due, got.LastRun)

	materialized, err := store.GetTransactions(ctx, service.TransactionFilter{ScheduledActionUID: action.UID})
	require.NoError(t, err)
	require.Len(t, materialized, 1)
	assert.Equal(t, txn.UID(), materialized[0].UID())
}

func TestSQLiteStorage_RecordOccurrenceIsAtomic(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	action := newTestAction(t, model.ActionTransaction)
	require.NoError(t, store.SaveScheduledAction(ctx, action))

	// Force the bookkeeping half to fail after the transaction insert.
	_, err := store.db.Exec(`CREATE TRIGGER reject_updates BEFORE UPDATE ON scheduled_actions
		BEGIN SELECT RAISE(ABORT, 'read only'); END`)
	require.NoError(t, err)

	txn := newTestTransaction(t, "Allowance", "20", action.StartTime())
	action.ExecutionCount = 1
	action.LastRun = action.StartTime()

	assert.Error(t, store.RecordOccurrence(ctx, txn, action))

	_, err = store.GetTransaction(ctx, txn.UID())
	assert.ErrorIs(t, err, common.ErrNotFound)
}
