package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	now    func() time.Time
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Validate input
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	dsn := ":memory:"
	if dbPath != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	// Open database
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite doesn't benefit from multiple connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		now:    time.Now,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// NewCheckpointManager creates a new checkpoint manager for this storage instance.
func (s *SQLiteStorage) NewCheckpointManager() (*CheckpointManager, error) {
	return NewCheckpointManager(s, s.dbPath)
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}
	return t.storage.saveAccountTx(ctx, t.tx, account)
}

func (t *sqliteTransaction) GetAccount(ctx context.Context, uid string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(uid, "uid"); err != nil {
		return nil, err
	}
	return t.storage.getAccountTx(ctx, t.tx, uid)
}

func (t *sqliteTransaction) FindAccount(ctx context.Context, ref string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ref, "account"); err != nil {
		return nil, err
	}
	return t.storage.findAccountTx(ctx, t.tx, strings.TrimSpace(ref))
}

func (t *sqliteTransaction) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listAccountsTx(ctx, t.tx)
}

func (t *sqliteTransaction) GetOrCreateImbalanceAccount(ctx context.Context, commodity model.Commodity) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getOrCreateImbalanceAccountTx(ctx, t.tx, commodity)
}

func (t *sqliteTransaction) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	return t.storage.saveTransactionTx(ctx, t.tx, txn)
}

func (t *sqliteTransaction) GetTransaction(ctx context.Context, uid string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(uid, "uid"); err != nil {
		return nil, err
	}
	return t.storage.getTransactionTx(ctx, t.tx, uid)
}

func (t *sqliteTransaction) GetTemplate(ctx context.Context, uid string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(uid, "uid"); err != nil {
		return nil, err
	}
	return t.storage.getTemplateTx(ctx, t.tx, uid)
}

func (t *sqliteTransaction) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	return t.storage.getTransactionsTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) DeleteTransaction(ctx context.Context, uid string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(uid, "uid"); err != nil {
		return err
	}
	return t.storage.deleteTransactionsTx(ctx, t.tx, []string{uid})
}

func (t *sqliteTransaction) DeleteTransactions(ctx context.Context, uids []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteTransactionsTx(ctx, t.tx, uids)
}

func (t *sqliteTransaction) MarkTransactionsExported(ctx context.Context, uids []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.markTransactionsExportedTx(ctx, t.tx, uids)
}

func (t *sqliteTransaction) HasModificationsSince(ctx context.Context, since time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return t.storage.hasModificationsSinceTx(ctx, t.tx, since)
}

func (t *sqliteTransaction) SaveScheduledAction(ctx context.Context, action *model.ScheduledAction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateScheduledAction(action); err != nil {
		return err
	}
	return t.storage.saveScheduledActionTx(ctx, t.tx, action)
}

func (t *sqliteTransaction) GetScheduledAction(ctx context.Context, uid string) (*model.ScheduledAction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(uid, "uid"); err != nil {
		return nil, err
	}
	return t.storage.getScheduledActionTx(ctx, t.tx, uid)
}

func (t *sqliteTransaction) ListScheduledActions(ctx context.Context, enabledOnly bool) ([]*model.ScheduledAction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listScheduledActionsTx(ctx, t.tx, enabledOnly)
}

func (t *sqliteTransaction) DeleteScheduledAction(ctx context.Context, uid string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(uid, "uid"); err != nil {
		return err
	}
	return t.storage.deleteScheduledActionTx(ctx, t.tx, uid)
}

func (t *sqliteTransaction) RecordOccurrence(ctx context.Context, txn *model.Transaction, action *model.ScheduledAction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if err := validateScheduledAction(action); err != nil {
		return err
	}
	return t.storage.recordOccurrenceTx(ctx, t.tx, txn, action)
}

func (t *sqliteTransaction) Snapshot(_ context.Context, _ string) error {
	// VACUUM cannot run inside a transaction
	return fmt.Errorf("snapshots cannot be taken within a transaction")
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
