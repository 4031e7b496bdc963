package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Ledger transactions and splits",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS transactions (
					uid TEXT PRIMARY KEY,
					description TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT '',
					commodity TEXT NOT NULL,
					timestamp INTEGER NOT NULL,
					created_at INTEGER NOT NULL,
					modified_at INTEGER NOT NULL,
					is_template INTEGER NOT NULL DEFAULT 0,
					is_exported INTEGER NOT NULL DEFAULT 0,
					scheduled_action_uid TEXT
				)`,
				`CREATE INDEX idx_transactions_timestamp ON transactions(timestamp)`,
				`CREATE INDEX idx_transactions_modified_at ON transactions(modified_at)`,

				`CREATE TABLE IF NOT EXISTS splits (
					uid TEXT PRIMARY KEY,
					transaction_uid TEXT NOT NULL,
					position INTEGER NOT NULL,
					account_uid TEXT NOT NULL,
					split_type TEXT NOT NULL CHECK (split_type IN ('DEBIT', 'CREDIT')),
					value_amount TEXT NOT NULL,
					value_commodity TEXT NOT NULL,
					quantity_amount TEXT NOT NULL,
					quantity_commodity TEXT NOT NULL,
					memo TEXT NOT NULL DEFAULT '',
					reconcile_state TEXT NOT NULL DEFAULT 'n',
					reconcile_date INTEGER,
					FOREIGN KEY (transaction_uid) REFERENCES transactions(uid)
				)`,
				`CREATE INDEX idx_splits_transaction ON splits(transaction_uid, position)`,
				`CREATE INDEX idx_splits_account ON splits(account_uid)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Recurrences and scheduled actions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS recurrences (
					uid TEXT PRIMARY KEY,
					period_type TEXT NOT NULL CHECK (period_type IN ('DAY', 'WEEK', 'MONTH', 'YEAR')),
					multiplier INTEGER NOT NULL DEFAULT 1 CHECK (multiplier > 0),
					period_start INTEGER NOT NULL,
					period_end INTEGER,
					by_days TEXT NOT NULL DEFAULT ''
				)`,

				`CREATE TABLE IF NOT EXISTS scheduled_actions (
					uid TEXT PRIMARY KEY,
					action_type TEXT NOT NULL CHECK (action_type IN ('TRANSACTION', 'BACKUP')),
					action_uid TEXT NOT NULL DEFAULT '',
					recurrence_uid TEXT NOT NULL,
					last_run INTEGER,
					total_frequency INTEGER NOT NULL DEFAULT 0,
					execution_count INTEGER NOT NULL DEFAULT 0,
					enabled INTEGER NOT NULL DEFAULT 1,
					auto_create INTEGER NOT NULL DEFAULT 1,
					auto_notify INTEGER NOT NULL DEFAULT 0,
					advance_create_days INTEGER NOT NULL DEFAULT 0,
					advance_notify_days INTEGER NOT NULL DEFAULT 0,
					template_account_uid TEXT NOT NULL DEFAULT '',
					tag TEXT NOT NULL DEFAULT '',
					created_at INTEGER NOT NULL,
					modified_at INTEGER NOT NULL,
					FOREIGN KEY (recurrence_uid) REFERENCES recurrences(uid)
				)`,
				`CREATE INDEX idx_scheduled_actions_enabled ON scheduled_actions(enabled)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Link materialized transactions to their scheduled action",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE INDEX idx_transactions_scheduled_action ON transactions(scheduled_action_uid)`,
				`CREATE INDEX idx_transactions_template ON transactions(is_template)`,
			)
		},
	},
	{
		Version:     4,
		Description: "Checkpoint metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
					id TEXT PRIMARY KEY,
					created_at INTEGER NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto INTEGER NOT NULL DEFAULT 0,
					parent_checkpoint TEXT
				)`,
			)
		},
	},
	{
		Version:     5,
		Description: "Chart of accounts",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS accounts (
					uid TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					account_type TEXT NOT NULL,
					commodity TEXT NOT NULL,
					parent_uid TEXT REFERENCES accounts(uid),
					placeholder INTEGER NOT NULL DEFAULT 0,
					hidden INTEGER NOT NULL DEFAULT 0,
					created_at INTEGER NOT NULL,
					modified_at INTEGER NOT NULL
				)`,
				`CREATE UNIQUE INDEX idx_accounts_name ON accounts(name COLLATE NOCASE)`,
				`CREATE INDEX idx_accounts_parent ON accounts(parent_uid)`,

				// Splits written before accounts existed keep working: every
				// account they name becomes a real account.
				`INSERT OR IGNORE INTO accounts (uid, name, account_type, commodity, created_at, modified_at)
				 SELECT s.account_uid,
				        CASE WHEN s.account_uid LIKE 'imbalance-%'
				             THEN 'Imbalance-' || substr(s.account_uid, 11)
				             ELSE s.account_uid END,
				        CASE WHEN s.account_uid LIKE 'imbalance-%' THEN 'BANK' ELSE 'ASSET' END,
				        MIN(s.quantity_commodity),
				        MIN(t.created_at),
				        MIN(t.created_at)
				 FROM splits s JOIN transactions t ON t.uid = s.transaction_uid
				 GROUP BY s.account_uid`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
