package engine

import (
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Status is the outcome of processing one scheduled action.
type Status string

// Action outcomes.
const (
	// StatusSkipped means the action was not eligible to run.
	StatusSkipped Status = "skipped"
	// StatusExecuted means at least one occurrence or backup was performed.
	StatusExecuted Status = "executed"
	// StatusNoop means the action was processed but nothing was due or changed.
	StatusNoop Status = "noop"
	// StatusFailed means processing stopped on an error.
	StatusFailed Status = "failed"
)

// ReasonInterrupted marks actions left unprocessed because the sweep's
// context was canceled.
const ReasonInterrupted = "interrupted"

// ActionResult describes what the processor did with one action.
type ActionResult struct {
	LastRun            time.Time
	Err                error
	ScheduledActionUID string
	Reason             string
	BackupPath         string
	Kind               model.ActionType
	Status             Status
	Materialized       []string
	ExecutionCount     int
}

// Category returns the failure class: "configuration", "storage", "backup"
// or empty.
func (r ActionResult) Category() string {
	return common.Category(r.Err)
}

// SweepResult collects the results of one Process call.
type SweepResult struct {
	Now     time.Time
	Results []ActionResult
}

// Count returns how many actions finished with status.
func (s SweepResult) Count(status Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Interrupted returns how many actions were cut short by cancellation.
func (s SweepResult) Interrupted() int {
	n := 0
	for _, r := range s.Results {
		if r.Reason == ReasonInterrupted {
			n++
		}
	}
	return n
}

// Failed returns the results of actions that failed.
func (s SweepResult) Failed() []ActionResult {
	var failed []ActionResult
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

// TransactionsCreated returns the number of materialized transactions.
func (s SweepResult) TransactionsCreated() int {
	n := 0
	for _, r := range s.Results {
		n += len(r.Materialized)
	}
	return n
}

// BackupsWritten returns the number of backups performed.
func (s SweepResult) BackupsWritten() int {
	n := 0
	for _, r := range s.Results {
		if r.BackupPath != "" {
			n++
		}
	}
	return n
}
