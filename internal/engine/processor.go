// Package engine implements the scheduled action processor: the sweep that
// materializes recurring transactions from templates and runs scheduled backups.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/export"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Processor decides which scheduled actions are due and performs them.
// It is not safe for concurrent sweeps.
type Processor struct {
	ledger     Ledger
	backups    BackupRunner
	observer   Observer
	maxReplays int
}

// Config holds configuration options for the processor.
type Config struct {
	// MaxReplays caps the occurrences materialized for one action per sweep.
	MaxReplays int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxReplays: 10000,
	}
}

// New creates a processor with the default configuration.
func New(ledger Ledger, backups BackupRunner) *Processor {
	return NewWithConfig(ledger, backups, DefaultConfig())
}

// NewWithConfig creates a processor with custom configuration.
func NewWithConfig(ledger Ledger, backups BackupRunner, config Config) *Processor {
	if config.MaxReplays <= 0 {
		config.MaxReplays = DefaultConfig().MaxReplays
	}
	return &Processor{
		ledger:     ledger,
		backups:    backups,
		maxReplays: config.MaxReplays,
	}
}

// SetObserver registers an observer for per-action results.
func (p *Processor) SetObserver(observer Observer) {
	p.observer = observer
}

// replayFunc processes one eligible action of a given kind.
type replayFunc func(ctx context.Context, now time.Time, action *model.ScheduledAction) ActionResult

// Process runs one sweep over actions. Failures are isolated per action and
// reported in the result; the sweep always reports every action. Once ctx is
// canceled the remaining actions are skipped as interrupted.
func (p *Processor) Process(ctx context.Context, now time.Time, actions []*model.ScheduledAction) SweepResult {
	now = now.UTC()
	sweep := SweepResult{
		Now:     now,
		Results: make([]ActionResult, 0, len(actions)),
	}

	slog.Info("Starting scheduled action sweep", "now", now, "actions", len(actions))

	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			common.LogInfo("Scheduled action sweep interrupted", common.Fields{
				"remaining": len(actions) - i,
				"cause":     err.Error(),
			})
			for _, rest := range actions[i:] {
				result := interrupted(rest)
				p.report(result)
				sweep.Results = append(sweep.Results, result)
			}
			break
		}
		result := p.processAction(ctx, now, action)
		p.report(result)
		sweep.Results = append(sweep.Results, result)
	}

	common.LogInfo("Scheduled action sweep complete", common.Fields{
		"executed":     sweep.Count(StatusExecuted),
		"skipped":      sweep.Count(StatusSkipped),
		"noop":         sweep.Count(StatusNoop),
		"failed":       sweep.Count(StatusFailed),
		"interrupted":  sweep.Interrupted(),
		"transactions": sweep.TransactionsCreated(),
		"backups":      sweep.BackupsWritten(),
	})
	return sweep
}

func interrupted(action *model.ScheduledAction) ActionResult {
	result := ActionResult{Status: StatusSkipped, Reason: ReasonInterrupted}
	if action != nil {
		result.ScheduledActionUID = action.UID
		result.Kind = action.ActionType
		result.LastRun = action.LastRun
		result.ExecutionCount = action.ExecutionCount
	}
	return result
}

func (p *Processor) processAction(ctx context.Context, now time.Time, action *model.ScheduledAction) ActionResult {
	if action == nil {
		return failed(ActionResult{}, fmt.Errorf("%w: nil scheduled action", common.ErrConfiguration))
	}

	result := ActionResult{
		ScheduledActionUID: action.UID,
		Kind:               action.ActionType,
		LastRun:            action.LastRun,
		ExecutionCount:     action.ExecutionCount,
	}

	if err := action.Validate(); err != nil {
		return failed(result, fmt.Errorf("%w: %w", common.ErrConfiguration, err))
	}
	if reason, skip := gate(now, action); skip {
		result.Status = StatusSkipped
		result.Reason = reason
		return result
	}

	replay, err := p.strategy(action.ActionType)
	if err != nil {
		return failed(result, err)
	}
	return replay(ctx, now, action)
}

// gate reports why an action is not eligible to run at now.
func gate(now time.Time, action *model.ScheduledAction) (string, bool) {
	switch {
	case !action.Enabled:
		return "disabled", true
	case action.StartTime().After(now):
		return "not started", true
	case action.IsExhausted():
		return "exhausted", true
	}
	return "", false
}

func (p *Processor) strategy(actionType model.ActionType) (replayFunc, error) {
	switch actionType {
	case model.ActionTransaction:
		return p.replayTransactions, nil
	case model.ActionBackup:
		return p.replayBackup, nil
	default:
		return nil, fmt.Errorf("%w: unsupported action type %q", common.ErrConfiguration, actionType)
	}
}

// replayTransactions materializes every occurrence due since the last run,
// bounded by now and the action's end time.
func (p *Processor) replayTransactions(ctx context.Context, now time.Time, action *model.ScheduledAction) (result ActionResult) {
	result = ActionResult{
		ScheduledActionUID: action.UID,
		Kind:               action.ActionType,
	}
	defer func() {
		result.LastRun = action.LastRun
		result.ExecutionCount = action.ExecutionCount
	}()

	if action.ActionUID == "" {
		return failed(result, fmt.Errorf("%w: transaction action %s has no template", common.ErrConfiguration, action.UID))
	}
	template, err := p.ledger.GetTemplate(ctx, action.ActionUID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return failed(result, fmt.Errorf("%w: template %s: %w", common.ErrConfiguration, action.ActionUID, err))
		}
		return failed(result, fmt.Errorf("%w: failed to load template %s: %w", common.ErrStorage, action.ActionUID, err))
	}

	bound := now
	if end := action.EndTime(); !end.IsZero() && end.Before(bound) {
		bound = end
	}

	for replays := 0; replays < p.maxReplays && !action.IsExhausted(); replays++ {
		// Each recorded occurrence already saved the action.
		if ctx.Err() != nil {
			result.Status = StatusSkipped
			if len(result.Materialized) > 0 {
				result.Status = StatusExecuted
			}
			result.Reason = ReasonInterrupted
			return result
		}
		due := action.NextDueTime()
		if due.After(bound) {
			break
		}

		next := *action
		next.ExecutionCount++

		// Occurrences at or before the cursor were already materialized.
		if action.HasRun() && !due.After(action.LastRun) {
			*action = next
			continue
		}
		next.LastRun = due

		txn := materialize(template, action, due)
		if err := p.ledger.RecordOccurrence(ctx, txn, &next); err != nil {
			return failed(result, fmt.Errorf("%w: failed to record occurrence %s: %w",
				common.ErrStorage, due.Format(time.RFC3339), err))
		}
		*action = next
		result.Materialized = append(result.Materialized, txn.UID())

		common.LogDebug("Materialized scheduled transaction", common.Fields{
			"action_uid":      action.UID,
			"transaction_uid": txn.UID(),
			"due":             due,
			"execution_count": action.ExecutionCount,
		})
	}

	if err := p.ledger.SaveScheduledAction(ctx, action); err != nil {
		return failed(result, fmt.Errorf("%w: failed to save scheduled action: %w", common.ErrStorage, err))
	}

	if len(result.Materialized) == 0 {
		result.Status = StatusNoop
		result.Reason = "nothing due"
		return result
	}
	result.Status = StatusExecuted
	return result
}

// materialize clones template into a concrete transaction due at due.
func materialize(template *model.Transaction, action *model.ScheduledAction, due time.Time) *model.Transaction {
	txn := template.Clone(true)
	txn.Timestamp = due
	txn.IsTemplate = false
	txn.IsExported = false
	txn.ScheduledActionUID = action.UID
	txn.SetSplits(txn.Splits())
	return txn
}

// replayBackup runs at most one backup per sweep when an occurrence has
// come due since the last run and the ledger changed.
func (p *Processor) replayBackup(ctx context.Context, now time.Time, action *model.ScheduledAction) ActionResult {
	result := ActionResult{
		ScheduledActionUID: action.UID,
		Kind:               action.ActionType,
		LastRun:            action.LastRun,
		ExecutionCount:     action.ExecutionCount,
	}

	if end := action.EndTime(); !end.IsZero() && end.Before(now) {
		result.Status = StatusNoop
		result.Reason = "schedule ended"
		return p.saveNoop(ctx, action, result)
	}

	latest, ok := action.Recurrence().LatestOccurrence(now)
	if !ok || (action.HasRun() && !latest.After(action.LastRun)) {
		result.Status = StatusNoop
		result.Reason = "nothing due"
		return p.saveNoop(ctx, action, result)
	}

	modified, err := p.ledger.HasModificationsSince(ctx, action.LastRun)
	if err != nil {
		return failed(result, fmt.Errorf("%w: failed to check for modifications: %w", common.ErrStorage, err))
	}
	if !modified {
		result.Status = StatusNoop
		result.Reason = "no changes since last run"
		return p.saveNoop(ctx, action, result)
	}

	params := export.DefaultParams()
	if action.Tag != "" {
		params, err = export.ParseParams(action.Tag)
		if err != nil {
			return failed(result, fmt.Errorf("%w: %w", common.ErrConfiguration, err))
		}
	}
	params.StartTime = action.LastRun

	path, err := p.backups.RunBackup(ctx, params)
	if errors.Is(err, common.ErrNothingToExport) {
		result.Status = StatusNoop
		result.Reason = "nothing to export"
		return p.saveNoop(ctx, action, result)
	}
	if err != nil {
		return failed(result, fmt.Errorf("%w: %w", common.ErrBackup, err))
	}

	action.LastRun = now
	action.ExecutionCount++
	result.LastRun = action.LastRun
	result.ExecutionCount = action.ExecutionCount
	result.BackupPath = path

	if err := p.ledger.SaveScheduledAction(ctx, action); err != nil {
		return failed(result, fmt.Errorf("%w: backup %s written but action not saved: %w", common.ErrStorage, path, err))
	}

	common.LogInfo("Scheduled backup complete", common.Fields{"action_uid": action.UID, "path": path})
	result.Status = StatusExecuted
	return result
}

func (p *Processor) saveNoop(ctx context.Context, action *model.ScheduledAction, result ActionResult) ActionResult {
	if err := p.ledger.SaveScheduledAction(ctx, action); err != nil {
		return failed(result, fmt.Errorf("%w: failed to save scheduled action: %w", common.ErrStorage, err))
	}
	return result
}

func (p *Processor) report(result ActionResult) {
	if result.Status == StatusFailed {
		common.LogError(result.Err, "Scheduled action failed", common.Fields{
			"action_uid": result.ScheduledActionUID,
			"kind":       string(result.Kind),
			"category":   result.Category(),
		})
	} else {
		common.LogDebug("Scheduled action processed", common.Fields{
			"action_uid": result.ScheduledActionUID,
			"status":     string(result.Status),
			"reason":     result.Reason,
		})
	}
	if p.observer != nil {
		p.observer.ActionProcessed(result)
	}
}

func failed(result ActionResult, err error) ActionResult {
	result.Status = StatusFailed
	result.Err = err
	return result
}
