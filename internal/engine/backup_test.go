package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/export"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// seedLedger stores one ordinary transaction so the ledger has modifications.
func seedLedger(t *testing.T, db *testutil.TestDB) {
	t.Helper()
	txn := testutil.NewTemplate(t, "Coffee", "4.50")
	txn.IsTemplate = false
	txn.Timestamp = time.Now().UTC()
	require.NoError(t, db.Storage.SaveTransaction(context.Background(), txn))
}

func TestProcessor_BackupRunsOncePerSweep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedLedger(t, db)

	start := time.Now().UTC().Add(-30 * 24 * time.Hour).Truncate(time.Second)
	action := db.MustSaveAction(testutil.NewActionBuilder(t, model.ActionBackup, start).
		Every(1, model.Week).
		Tagged("CSV;LOCAL;0;false;/srv/backups").
		Build())

	backups := &mockBackups{}
	backups.On("RunBackup", mock.Anything, mock.MatchedBy(func(p export.Params) bool {
		return p.Format == export.FormatCSV && p.Location == "/srv/backups" && p.StartTime.IsZero()
	})).Return("/srv/backups/export.csv", nil).Once()

	processor := New(db.Storage, backups)
	now := time.Now().UTC()

	sweep := processor.Process(context.Background(), now, []*model.ScheduledAction{action})
	result := sweep.Results[0]
	require.NoError(t, result.Err)
	assert.Equal(t, StatusExecuted, result.Status)
	assert.Equal(t, "/srv/backups/export.csv", result.BackupPath)
	assert.Equal(t, 1, sweep.BackupsWritten())

	stored := db.MustGetAction(action.UID)
	assert.Equal(t, 1, stored.ExecutionCount)
	assert.Equal(t, now, stored.LastRun)

	// An immediate second sweep has nothing due
	again := processor.Process(context.Background(), now, []*model.ScheduledAction{stored})
	assert.Equal(t, StatusNoop, again.Results[0].Status)
	assert.Equal(t, "nothing due", again.Results[0].Reason)

	reloaded := db.MustGetAction(action.UID)
	assert.Equal(t, 1, reloaded.ExecutionCount)
	assert.Equal(t, now, reloaded.LastRun)
	backups.AssertNumberOfCalls(t, "RunBackup", 1)
}

func TestProcessor_BackupSkipsWhenUnmodified(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedLedger(t, db)

	lastRun := time.Now().UTC().Add(time.Millisecond)
	start := lastRun.Add(-10 * 24 * time.Hour)
	action := db.MustSaveAction(testutil.NewActionBuilder(t, model.ActionBackup, start).
		Every(1, model.Day).
		LastRun(lastRun).
		Build())
	action.ExecutionCount = 10
	db.MustSaveAction(action)

	backups := &mockBackups{}
	sweep := New(db.Storage, backups).
		Process(context.Background(), lastRun.Add(3*24*time.Hour), []*model.ScheduledAction{action})

	assert.Equal(t, StatusNoop, sweep.Results[0].Status)
	assert.Equal(t, "no changes since last run", sweep.Results[0].Reason)
	backups.AssertNotCalled(t, "RunBackup", mock.Anything, mock.Anything)

	stored := db.MustGetAction(action.UID)
	assert.Equal(t, 10, stored.ExecutionCount)
	assert.Equal(t, lastRun, stored.LastRun)
}

func TestProcessor_BackupExportsSinceLastRun(t *testing.T) {
	lastRun := date(2024, time.March, 4, 0)
	now := date(2024, time.March, 20, 0)
	action := testutil.NewActionBuilder(t, model.ActionBackup, date(2024, time.January, 1, 0)).
		Every(1, model.Week).
		LastRun(lastRun).
		Build()

	ledger := &mockLedger{}
	ledger.On("HasModificationsSince", mock.Anything, lastRun).Return(true, nil)
	ledger.On("SaveScheduledAction", mock.Anything, action).Return(nil)

	backups := &mockBackups{}
	backups.On("RunBackup", mock.Anything, mock.MatchedBy(func(p export.Params) bool {
		return p.Format == export.FormatDB && p.StartTime.Equal(lastRun)
	})).Return("/backups/ledger.db", nil)

	sweep := New(ledger, backups).Process(context.Background(), now, []*model.ScheduledAction{action})

	assert.Equal(t, StatusExecuted, sweep.Results[0].Status)
	assert.Equal(t, now, action.LastRun)
	assert.Equal(t, 1, action.ExecutionCount)
	ledger.AssertExpectations(t)
	backups.AssertExpectations(t)
}

func TestProcessor_BackupFailureLeavesStateForRetry(t *testing.T) {
	lastRun := date(2024, time.March, 4, 0)
	action := testutil.NewActionBuilder(t, model.ActionBackup, date(2024, time.January, 1, 0)).
		Every(1, model.Week).
		LastRun(lastRun).
		Build()

	ledger := &mockLedger{}
	ledger.On("HasModificationsSince", mock.Anything, lastRun).Return(true, nil)
	backups := &mockBackups{}
	backups.On("RunBackup", mock.Anything, mock.Anything).Return("", errors.New("permission denied"))

	sweep := New(ledger, backups).
		Process(context.Background(), date(2024, time.March, 20, 0), []*model.ScheduledAction{action})

	result := sweep.Results[0]
	assert.Equal(t, StatusFailed, result.Status)
	assert.ErrorIs(t, result.Err, common.ErrBackup)
	assert.Equal(t, "backup", result.Category())
	assert.Equal(t, lastRun, action.LastRun)
	assert.Equal(t, 0, action.ExecutionCount)
	ledger.AssertNotCalled(t, "SaveScheduledAction", mock.Anything, mock.Anything)
}

func TestProcessor_BackupNoops(t *testing.T) {
	start := date(2024, time.January, 1, 0)
	now := date(2024, time.March, 20, 0)

	tests := []struct {
		build  func(t *testing.T) *model.ScheduledAction
		setup  func(ledger *mockLedger, backups *mockBackups)
		name   string
		reason string
	}{
		{
			name:   "lapsed end time is not caught up",
			reason: "schedule ended",
			build: func(t *testing.T) *model.ScheduledAction {
				t.Helper()
				return testutil.NewActionBuilder(t, model.ActionBackup, start).
					Every(1, model.Week).Until(date(2024, time.February, 1, 0)).Build()
			},
		},
		{
			name:   "latest occurrence already covered",
			reason: "nothing due",
			build: func(t *testing.T) *model.ScheduledAction {
				t.Helper()
				return testutil.NewActionBuilder(t, model.ActionBackup, start).
					Every(1, model.Week).LastRun(date(2024, time.March, 18, 12)).Build()
			},
		},
		{
			name:   "exporter finds nothing",
			reason: "nothing to export",
			build: func(t *testing.T) *model.ScheduledAction {
				t.Helper()
				return testutil.NewActionBuilder(t, model.ActionBackup, start).
					Every(1, model.Week).Tagged("CSV;LOCAL;0;false;").Build()
			},
			setup: func(ledger *mockLedger, backups *mockBackups) {
				ledger.On("HasModificationsSince", mock.Anything, time.Time{}).Return(true, nil)
				backups.On("RunBackup", mock.Anything, mock.Anything).Return("", common.ErrNothingToExport)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &mockLedger{}
			backups := &mockBackups{}
			if tt.setup != nil {
				tt.setup(ledger, backups)
			}
			action := tt.build(t)
			ledger.On("SaveScheduledAction", mock.Anything, action).Return(nil).Once()
			lastRun, count := action.LastRun, action.ExecutionCount

			sweep := New(ledger, backups).Process(context.Background(), now, []*model.ScheduledAction{action})

			assert.Equal(t, StatusNoop, sweep.Results[0].Status)
			assert.Equal(t, tt.reason, sweep.Results[0].Reason)
			assert.Equal(t, lastRun, action.LastRun)
			assert.Equal(t, count, action.ExecutionCount)
			ledger.AssertExpectations(t)
		})
	}
}

func TestProcessor_BackupInvalidTag(t *testing.T) {
	action := testutil.NewActionBuilder(t, model.ActionBackup, date(2024, time.January, 1, 0)).
		Every(1, model.Week).
		Tagged("XML;LOCAL;0;false;").
		Build()

	ledger := &mockLedger{}
	ledger.On("HasModificationsSince", mock.Anything, time.Time{}).Return(true, nil)

	sweep := New(ledger, &mockBackups{}).
		Process(context.Background(), date(2024, time.February, 1, 0), []*model.ScheduledAction{action})

	assert.Equal(t, "configuration", sweep.Results[0].Category())
	assert.ErrorIs(t, sweep.Results[0].Err, export.ErrInvalidParams)
}
