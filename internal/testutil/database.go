// Package testutil provides test helpers for working with a real ledger database.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// TestDB represents a migrated in-memory database and its fixtures.
type TestDB struct {
	Storage   service.Storage
	t         *testing.T
	Templates map[string]*model.Transaction
}

// SetupTestDB creates a new in-memory test database with migrations applied
// and the fixture accounts in place. Cleanup is registered on t.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	tmpl := db.MustSaveTemplate(testutil.NewTemplate(t, "Allowance", "20.00"))
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db := &TestDB{
		Storage:   store,
		Templates: make(map[string]*model.Transaction),
		t:         t,
	}
	db.MustSaveAccount(ExpensesAccount, model.AccountExpense, model.USD)
	db.MustSaveAccount(CheckingAccount, model.AccountBank, model.USD)
	return db
}

// MustSaveAccount stores an account whose UID doubles as its name.
func (db *TestDB) MustSaveAccount(uid string, accountType model.AccountType, commodity model.Commodity) *model.Account {
	db.t.Helper()
	account := model.NewAccount(uid, accountType, commodity)
	account.UID = uid
	if err := db.Storage.SaveAccount(context.Background(), account); err != nil {
		db.t.Fatalf("failed to save account %q: %v", uid, err)
	}
	return account
}

// MustSaveTemplate stores a template transaction or fails the test.
func (db *TestDB) MustSaveTemplate(tmpl *model.Transaction) *model.Transaction {
	db.t.Helper()
	tmpl.IsTemplate = true
	if err := db.Storage.SaveTransaction(context.Background(), tmpl); err != nil {
		db.t.Fatalf("failed to save template %q: %v", tmpl.Description, err)
	}
	db.Templates[tmpl.UID()] = tmpl
	return tmpl
}

// MustSaveAction stores a scheduled action or fails the test.
func (db *TestDB) MustSaveAction(action *model.ScheduledAction) *model.ScheduledAction {
	db.t.Helper()
	if err := db.Storage.SaveScheduledAction(context.Background(), action); err != nil {
		db.t.Fatalf("failed to save scheduled action: %v", err)
	}
	return action
}

// MustGetAction reloads a scheduled action or fails the test.
func (db *TestDB) MustGetAction(uid string) *model.ScheduledAction {
	db.t.Helper()
	action, err := db.Storage.GetScheduledAction(context.Background(), uid)
	if err != nil {
		db.t.Fatalf("failed to load scheduled action %s: %v", uid, err)
	}
	return action
}

// Materialized returns the transactions generated for an action, oldest first.
func (db *TestDB) Materialized(actionUID string) []*model.Transaction {
	db.t.Helper()
	txns, err := db.Storage.GetTransactions(context.Background(), service.TransactionFilter{
		ScheduledActionUID: actionUID,
	})
	if err != nil {
		db.t.Fatalf("failed to list materialized transactions: %v", err)
	}
	return txns
}
