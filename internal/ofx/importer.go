package ofx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Store is the part of the ledger storage the importer writes to.
type Store interface {
	GetAccount(ctx context.Context, uid string) (*model.Account, error)
	SaveAccount(ctx context.Context, account *model.Account) error
	GetTransaction(ctx context.Context, uid string) (*model.Transaction, error)
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Imported        int
	Duplicates      int
	AccountsCreated int
}

// Import creates the statement accounts that are missing, then saves
// transactions that are not in store yet. Existing transactions with the same
// UID are left untouched.
func Import(ctx context.Context, store Store, accounts []*model.Account, txns []*model.Transaction) (ImportResult, error) {
	var result ImportResult
	for _, account := range accounts {
		_, err := store.GetAccount(ctx, account.UID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, common.ErrNotFound):
			return result, fmt.Errorf("failed to check for account %s: %w", account.UID, err)
		}
		if err := store.SaveAccount(ctx, account); err != nil {
			return result, fmt.Errorf("failed to create account %s: %w", account.Name, err)
		}
		slog.Info("Created statement account", "account", account.Name, "type", account.Type)
		result.AccountsCreated++
	}

	for _, txn := range txns {
		_, err := store.GetTransaction(ctx, txn.UID())
		switch {
		case err == nil:
			result.Duplicates++
			continue
		case !errors.Is(err, common.ErrNotFound):
			return result, fmt.Errorf("failed to check for transaction %s: %w", txn.UID(), err)
		}

		if err := store.SaveTransaction(ctx, txn); err != nil {
			return result, fmt.Errorf("failed to save transaction %s: %w", txn.UID(), err)
		}
		result.Imported++
	}
	return result, nil
}
