package engine

import (
	"context"
	"time"

	"github.com/Veraticus/spice-ledger/internal/export"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Ledger is the storage the processor reads templates from and records
// occurrences into.
type Ledger interface {
	GetTemplate(ctx context.Context, uid string) (*model.Transaction, error)
	// RecordOccurrence persists a materialized transaction and the action's
	// advanced bookkeeping as one unit.
	RecordOccurrence(ctx context.Context, txn *model.Transaction, action *model.ScheduledAction) error
	SaveScheduledAction(ctx context.Context, action *model.ScheduledAction) error
	HasModificationsSince(ctx context.Context, since time.Time) (bool, error)
}

// BackupRunner performs a backup and returns the written file's path.
type BackupRunner interface {
	RunBackup(ctx context.Context, params export.Params) (string, error)
}

// Observer is notified after each action is processed.
type Observer interface {
	ActionProcessed(result ActionResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(result ActionResult)

// ActionProcessed calls f.
func (f ObserverFunc) ActionProcessed(result ActionResult) {
	f(result)
}
