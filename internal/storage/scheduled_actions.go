package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// SaveScheduledAction inserts or updates an action together with its recurrence.
func (s *SQLiteStorage) SaveScheduledAction(ctx context.Context, action *model.ScheduledAction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateScheduledAction(action); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveScheduledActionTx(ctx, tx, action); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) saveScheduledActionTx(ctx context.Context, q queryable, action *model.ScheduledAction) error {
	rec := action.Recurrence()
	if rec.UID == "" {
		rec.UID = model.NewUID()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO recurrences (uid, period_type, multiplier, period_start, period_end, by_days)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			period_type = excluded.period_type,
			multiplier = excluded.multiplier,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			by_days = excluded.by_days
	`,
		rec.UID,
		string(rec.PeriodType),
		rec.Multiplier,
		toUnix(rec.PeriodStart),
		toNullUnix(rec.PeriodEnd),
		encodeWeekdays(rec.ByDays()),
	)
	if err != nil {
		return fmt.Errorf("failed to save recurrence %s: %w", rec.UID, err)
	}

	action.ModifiedAt = s.now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = action.ModifiedAt
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO scheduled_actions (
			uid, action_type, action_uid, recurrence_uid, last_run, total_frequency,
			execution_count, enabled, auto_create, auto_notify, advance_create_days,
			advance_notify_days, template_account_uid, tag, created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			action_type = excluded.action_type,
			action_uid = excluded.action_uid,
			recurrence_uid = excluded.recurrence_uid,
			last_run = excluded.last_run,
			total_frequency = excluded.total_frequency,
			execution_count = excluded.execution_count,
			enabled = excluded.enabled,
			auto_create = excluded.auto_create,
			auto_notify = excluded.auto_notify,
			advance_create_days = excluded.advance_create_days,
			advance_notify_days = excluded.advance_notify_days,
			template_account_uid = excluded.template_account_uid,
			tag = excluded.tag,
			modified_at = excluded.modified_at
	`,
		action.UID,
		string(action.ActionType),
		action.ActionUID,
		rec.UID,
		toNullUnix(action.LastRun),
		action.TotalFrequency,
		action.ExecutionCount,
		action.Enabled,
		action.AutoCreate,
		action.AutoNotify,
		action.AdvanceCreateDays,
		action.AdvanceNotifyDays,
		action.TemplateAccountUID,
		action.Tag,
		toUnix(action.CreatedAt),
		toUnix(action.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save scheduled action %s: %w", action.UID, err)
	}
	return nil
}

// GetScheduledAction retrieves an action and its recurrence by UID.
func (s *SQLiteStorage) GetScheduledAction(ctx context.Context, uid string) (*model.ScheduledAction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(uid, "uid"); err != nil {
		return nil, err
	}
	return s.getScheduledActionTx(ctx, s.db, uid)
}

func (s *SQLiteStorage) getScheduledActionTx(ctx context.Context, q queryable, uid string) (*model.ScheduledAction, error) {
	row := q.QueryRowContext(ctx, scheduledActionQuery+` WHERE a.uid = ?`, uid)
	action, err := scanScheduledAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scheduled action %s: %w", uid, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled action: %w", err)
	}
	return action, nil
}

// ListScheduledActions returns actions ordered by creation time.
func (s *SQLiteStorage) ListScheduledActions(ctx context.Context, enabledOnly bool) ([]*model.ScheduledAction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listScheduledActionsTx(ctx, s.db, enabledOnly)
}

func (s *SQLiteStorage) listScheduledActionsTx(ctx context.Context, q queryable, enabledOnly bool) ([]*model.ScheduledAction, error) {
	query := scheduledActionQuery
	if enabledOnly {
		query += ` WHERE a.enabled = 1`
	}
	query += ` ORDER BY a.created_at, a.uid`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []*model.ScheduledAction
	for rows.Next() {
		action, err := scanScheduledAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled action: %w", err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// DeleteScheduledAction removes an action and its recurrence. Transactions it
// materialized stay in the ledger.
func (s *SQLiteStorage) DeleteScheduledAction(ctx context.Context, uid string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(uid, "uid"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteScheduledActionTx(ctx, tx, uid); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) deleteScheduledActionTx(ctx context.Context, q queryable, uid string) error {
	var recurrenceUID string
	err := q.QueryRowContext(ctx, `SELECT recurrence_uid FROM scheduled_actions WHERE uid = ?`, uid).Scan(&recurrenceUID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("scheduled action %s: %w", uid, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up scheduled action: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM scheduled_actions WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("failed to delete scheduled action: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM recurrences WHERE uid = ?`, recurrenceUID); err != nil {
		return fmt.Errorf("failed to delete recurrence: %w", err)
	}
	return nil
}

// RecordOccurrence stores a materialized transaction and the action's advanced
// bookkeeping in a single database transaction, so a crash can never leave
// one without the other.
func (s *SQLiteStorage) RecordOccurrence(ctx context.Context, txn *model.Transaction, action *model.ScheduledAction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if err := validateScheduledAction(action); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.recordOccurrenceTx(ctx, tx, txn, action); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) recordOccurrenceTx(ctx context.Context, q queryable, txn *model.Transaction, action *model.ScheduledAction) error {
	if err := s.saveTransactionTx(ctx, q, txn); err != nil {
		return err
	}
	return s.saveScheduledActionTx(ctx, q, action)
}

const scheduledActionQuery = `
	SELECT a.uid, a.action_type, a.action_uid, a.last_run, a.total_frequency,
	       a.execution_count, a.enabled, a.auto_create, a.auto_notify,
	       a.advance_create_days, a.advance_notify_days, a.template_account_uid,
	       a.tag, a.created_at, a.modified_at,
	       r.uid, r.period_type, r.multiplier, r.period_start, r.period_end, r.by_days
	FROM scheduled_actions a
	JOIN recurrences r ON r.uid = a.recurrence_uid`

func scanScheduledAction(row scanner) (*model.ScheduledAction, error) {
	var (
		uid, actionType, actionUID, templateAccountUID, tag string
		lastRun, periodEnd                                  sql.NullInt64
		createdAt, modifiedAt, periodStart                  int64
		totalFrequency, executionCount, multiplier          int
		advanceCreateDays, advanceNotifyDays                int
		enabled, autoCreate, autoNotify                     bool
		recurrenceUID, periodType, byDays                   string
	)
	if err := row.Scan(&uid, &actionType, &actionUID, &lastRun, &totalFrequency,
		&executionCount, &enabled, &autoCreate, &autoNotify,
		&advanceCreateDays, &advanceNotifyDays, &templateAccountUID,
		&tag, &createdAt, &modifiedAt,
		&recurrenceUID, &periodType, &multiplier, &periodStart, &periodEnd, &byDays); err != nil {
		return nil, err
	}

	kind, err := model.ParseActionType(actionType)
	if err != nil {
		return nil, err
	}
	days, err := decodeWeekdays(byDays)
	if err != nil {
		return nil, err
	}

	rec := model.NewRecurrence(model.PeriodType(periodType))
	rec.UID = recurrenceUID
	rec.Multiplier = multiplier
	rec.PeriodStart = fromUnix(periodStart)
	rec.PeriodEnd = fromNullUnix(periodEnd)
	rec.SetByDays(days)

	action, err := model.NewScheduledAction(kind, rec)
	if err != nil {
		return nil, err
	}
	action.UID = uid
	action.ActionUID = actionUID
	action.LastRun = fromNullUnix(lastRun)
	action.TotalFrequency = totalFrequency
	action.ExecutionCount = executionCount
	action.Enabled = enabled
	action.AutoCreate = autoCreate
	action.AutoNotify = autoNotify
	action.AdvanceCreateDays = advanceCreateDays
	action.AdvanceNotifyDays = advanceNotifyDays
	action.TemplateAccountUID = templateAccountUID
	action.Tag = tag
	action.CreatedAt = fromUnix(createdAt)
	action.ModifiedAt = fromUnix(modifiedAt)
	return action, nil
}

var weekdayNames = []string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func encodeWeekdays(days []time.Weekday) string {
	codes := make([]string, 0, len(days))
	for _, d := range days {
		codes = append(codes, weekdayNames[d])
	}
	return strings.Join(codes, ",")
}

func decodeWeekdays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, code := range strings.Split(s, ",") {
		found := false
		for i, name := range weekdayNames {
			if name == code {
				days = append(days, time.Weekday(i))
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown weekday %q", code)
		}
	}
	return days, nil
}
