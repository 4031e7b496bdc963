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
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/shopspring/decimal"
)

// SaveTransaction inserts or replaces a transaction and all of its splits.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	// Validate inputs
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveTransactionTx(ctx, tx, txn); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveTransactionTx(ctx context.Context, q queryable, txn *model.Transaction) error {
	if err := s.resolveSplitAccounts(ctx, q, txn); err != nil {
		return err
	}

	txn.ModifiedAt = s.now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = txn.ModifiedAt
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (
			uid, description, notes, commodity, timestamp, created_at,
			modified_at, is_template, is_exported, scheduled_action_uid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			description = excluded.description,
			notes = excluded.notes,
			commodity = excluded.commodity,
			timestamp = excluded.timestamp,
			modified_at = excluded.modified_at,
			is_template = excluded.is_template,
			is_exported = excluded.is_exported,
			scheduled_action_uid = excluded.scheduled_action_uid
	`,
		txn.UID(),
		txn.Description,
		txn.Notes,
		txn.Commodity.Mnemonic,
		toUnix(txn.Timestamp),
		toUnix(txn.CreatedAt),
		toUnix(txn.ModifiedAt),
		txn.IsTemplate,
		txn.IsExported,
		nullString(txn.ScheduledActionUID),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", txn.UID(), err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM splits WHERE transaction_uid = ?`, txn.UID()); err != nil {
		return fmt.Errorf("failed to clear splits of %s: %w", txn.UID(), err)
	}

	for position, split := range txn.Splits() {
		_, err := q.ExecContext(ctx, `
			INSERT INTO splits (
				uid, transaction_uid, position, account_uid, split_type,
				value_amount, value_commodity, quantity_amount, quantity_commodity,
				memo, reconcile_state, reconcile_date
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			split.UID,
			txn.UID(),
			position,
			split.AccountUID,
			string(split.Type),
			split.Value().Amount().String(),
			split.Value().Commodity().Mnemonic,
			split.Quantity().Amount().String(),
			split.Quantity().Commodity().Mnemonic,
			split.Memo,
			string(split.ReconcileState),
			toNullUnix(split.ReconcileDate),
		)
		if err != nil {
			return fmt.Errorf("failed to insert split %s: %w", split.UID, err)
		}
	}

	return nil
}

// GetTransaction retrieves a transaction, template or not, by UID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, uid string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(uid, "uid"); err != nil {
		return nil, err
	}
	return s.getTransactionTx(ctx, s.db, uid)
}

func (s *SQLiteStorage) getTransactionTx(ctx context.Context, q queryable, uid string) (*model.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE uid = ?`, uid)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", uid, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if err := s.loadSplits(ctx, q, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// GetTemplate retrieves a template transaction by UID.
func (s *SQLiteStorage) GetTemplate(ctx context.Context, uid string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(uid, "uid"); err != nil {
		return nil, err
	}
	return s.getTemplateTx(ctx, s.db, uid)
}

func (s *SQLiteStorage) getTemplateTx(ctx context.Context, q queryable, uid string) (*model.Transaction, error) {
	txn, err := s.getTransactionTx(ctx, q, uid)
	if err != nil {
		return nil, err
	}
	if !txn.IsTemplate {
		return nil, fmt.Errorf("template %s: %w", uid, common.ErrNotFound)
	}
	return txn, nil
}

// GetTransactions retrieves transactions matching the filter, oldest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	return s.getTransactionsTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getTransactionsTx(ctx context.Context, q queryable, filter service.TransactionFilter) ([]*model.Transaction, error) {
	var (
		conditions []string
		args       []any
	)
	if !filter.IncludeTemplates {
		conditions = append(conditions, "is_template = 0")
	}
	if filter.OnlyUnexported {
		conditions = append(conditions, "is_exported = 0")
	}
	if filter.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, toUnix(*filter.StartDate))
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, toUnix(*filter.EndDate))
	}
	if filter.ModifiedSince != nil && !filter.ModifiedSince.IsZero() {
		conditions = append(conditions, "modified_at > ?")
		args = append(args, toUnix(*filter.ModifiedSince))
	}
	if filter.ScheduledActionUID != "" {
		conditions = append(conditions, "scheduled_action_uid = ?")
		args = append(args, filter.ScheduledActionUID)
	}
	if filter.AccountUID != "" {
		conditions = append(conditions, "uid IN (SELECT transaction_uid FROM splits WHERE account_uid = ?)")
		args = append(args, filter.AccountUID)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp, uid"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	var transactions []*model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Splits are loaded after the cursor closes; the pool holds one connection.
	_ = rows.Close()

	for _, txn := range transactions {
		if err := s.loadSplits(ctx, q, txn); err != nil {
			return nil, err
		}
	}
	return transactions, nil
}

// HasModificationsSince reports whether any ledger transaction changed after since.
func (s *SQLiteStorage) HasModificationsSince(ctx context.Context, since time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return s.hasModificationsSinceTx(ctx, s.db, since)
}

func (s *SQLiteStorage) hasModificationsSinceTx(ctx context.Context, q queryable, since time.Time) (bool, error) {
	var exists bool
	var err error
	if since.IsZero() {
		err = q.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM transactions WHERE is_template = 0)`).Scan(&exists)
	} else {
		err = q.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM transactions WHERE is_template = 0 AND modified_at > ?)`,
			toUnix(since)).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check modifications: %w", err)
	}
	return exists, nil
}

// MarkTransactionsExported flags transactions as exported.
func (s *SQLiteStorage) MarkTransactionsExported(ctx context.Context, uids []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.markTransactionsExportedTx(ctx, s.db, uids)
}

func (s *SQLiteStorage) markTransactionsExportedTx(ctx context.Context, q queryable, uids []string) error {
	if len(uids) == 0 {
		return nil
	}
	placeholders, args := inClause(uids)
	// #nosec G202 - placeholders only contains '?' markers
	_, err := q.ExecContext(ctx, `UPDATE transactions SET is_exported = 1 WHERE uid IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark transactions exported: %w", err)
	}
	return nil
}

// DeleteTransaction removes a transaction and its splits.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, uid string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(uid, "uid"); err != nil {
		return err
	}
	if _, err := s.getTransactionTx(ctx, s.db, uid); err != nil {
		return err
	}
	return s.DeleteTransactions(ctx, []string{uid})
}

// DeleteTransactions removes transactions and their splits.
func (s *SQLiteStorage) DeleteTransactions(ctx context.Context, uids []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteTransactionsTx(ctx, tx, uids); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) deleteTransactionsTx(ctx context.Context, q queryable, uids []string) error {
	if len(uids) == 0 {
		return nil
	}
	placeholders, args := inClause(uids)
	// #nosec G202 - placeholders only contains '?' markers
	if _, err := q.ExecContext(ctx, `DELETE FROM splits WHERE transaction_uid IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}
	// #nosec G202 - placeholders only contains '?' markers
	if _, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE uid IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}

const transactionColumns = `uid, description, notes, commodity, timestamp, created_at,
	modified_at, is_template, is_exported, scheduled_action_uid`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var (
		uid, description, notes, commodity string
		timestamp, createdAt, modifiedAt   int64
		isTemplate, isExported             bool
		scheduledActionUID                 sql.NullString
	)
	if err := row.Scan(&uid, &description, &notes, &commodity, &timestamp, &createdAt,
		&modifiedAt, &isTemplate, &isExported, &scheduledActionUID); err != nil {
		return nil, err
	}

	txn := model.NewTransaction(description)
	txn.SetUID(uid)
	txn.Notes = notes
	txn.Commodity = model.CommodityByCode(commodity)
	txn.Timestamp = fromUnix(timestamp)
	txn.CreatedAt = fromUnix(createdAt)
	txn.ModifiedAt = fromUnix(modifiedAt)
	txn.IsTemplate = isTemplate
	txn.IsExported = isExported
	txn.ScheduledActionUID = scheduledActionUID.String
	return txn, nil
}

func (s *SQLiteStorage) loadSplits(ctx context.Context, q queryable, txn *model.Transaction) error {
	rows, err := q.QueryContext(ctx, `
		SELECT uid, account_uid, split_type, value_amount, value_commodity,
		       quantity_amount, quantity_commodity, memo, reconcile_state, reconcile_date
		FROM splits
		WHERE transaction_uid = ?
		ORDER BY position
	`, txn.UID())
	if err != nil {
		return fmt.Errorf("failed to query splits of %s: %w", txn.UID(), err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			uid, accountUID, splitType, memo, reconcileState string
			valueAmount, valueCommodity                      string
			quantityAmount, quantityCommodity                string
			reconcileDate                                    sql.NullInt64
		)
		if err := rows.Scan(&uid, &accountUID, &splitType, &valueAmount, &valueCommodity,
			&quantityAmount, &quantityCommodity, &memo, &reconcileState, &reconcileDate); err != nil {
			return fmt.Errorf("failed to scan split: %w", err)
		}

		value, err := decimal.NewFromString(valueAmount)
		if err != nil {
			return fmt.Errorf("split %s has invalid value %q: %w", uid, valueAmount, err)
		}
		quantity, err := decimal.NewFromString(quantityAmount)
		if err != nil {
			return fmt.Errorf("split %s has invalid quantity %q: %w", uid, quantityAmount, err)
		}
		kind, err := model.ParseSplitType(splitType)
		if err != nil {
			return fmt.Errorf("split %s: %w", uid, err)
		}

		split := model.NewSplitWithQuantity(
			model.NewMoney(value, model.CommodityByCode(valueCommodity)),
			model.NewMoney(quantity, model.CommodityByCode(quantityCommodity)),
			accountUID,
		)
		split.UID = uid
		split.Type = kind
		split.Memo = memo
		split.ReconcileState = model.ReconcileState(reconcileState)
		split.ReconcileDate = fromNullUnix(reconcileDate)
		txn.AddSplit(split)
	}
	return rows.Err()
}

// queryable is an interface satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Instants are stored as UTC unix nanoseconds so range comparisons stay numeric.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toNullUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(t), Valid: true}
}

func fromNullUnix(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromUnix(n.Int64)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}
