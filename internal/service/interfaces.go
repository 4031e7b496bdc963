// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	// ModifiedSince selects transactions modified strictly after the instant.
	ModifiedSince      *time.Time
	ScheduledActionUID string
	// AccountUID selects transactions with at least one split in the account.
	AccountUID         string
	Limit              int
	Offset             int
	IncludeTemplates   bool
	OnlyUnexported     bool
}

// TransactionStore persists ledger transactions and their splits.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, uid string) (*model.Transaction, error)
	GetTemplate(ctx context.Context, uid string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]*model.Transaction, error)
	DeleteTransaction(ctx context.Context, uid string) error
	DeleteTransactions(ctx context.Context, uids []string) error
	MarkTransactionsExported(ctx context.Context, uids []string) error
	HasModificationsSince(ctx context.Context, since time.Time) (bool, error)
}

// AccountStore persists the chart of accounts.
type AccountStore interface {
	SaveAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, uid string) (*model.Account, error)
	// FindAccount resolves a UID or an account name.
	FindAccount(ctx context.Context, ref string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]*model.Account, error)
	GetOrCreateImbalanceAccount(ctx context.Context, commodity model.Commodity) (*model.Account, error)
}

// ScheduleStore persists scheduled actions together with their recurrences.
type ScheduleStore interface {
	SaveScheduledAction(ctx context.Context, action *model.ScheduledAction) error
	GetScheduledAction(ctx context.Context, uid string) (*model.ScheduledAction, error)
	ListScheduledActions(ctx context.Context, enabledOnly bool) ([]*model.ScheduledAction, error)
	DeleteScheduledAction(ctx context.Context, uid string) error
	// RecordOccurrence saves a materialized transaction and the action's
	// updated bookkeeping as one unit.
	RecordOccurrence(ctx context.Context, txn *model.Transaction, action *model.ScheduledAction) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	AccountStore
	TransactionStore
	ScheduleStore

	// Database management
	Snapshot(ctx context.Context, destPath string) error
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}
