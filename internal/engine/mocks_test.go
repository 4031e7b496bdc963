package engine

import (
	"context"
	"time"

	"github.com/Veraticus/spice-ledger/internal/export"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/stretchr/testify/mock"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetTemplate(ctx context.Context, uid string) (*model.Transaction, error) {
	args := m.Called(ctx, uid)
	txn, _ := args.Get(0).(*model.Transaction)
	return txn, args.Error(1)
}

func (m *mockLedger) RecordOccurrence(ctx context.Context, txn *model.Transaction, action *model.ScheduledAction) error {
	return m.Called(ctx, txn, action).Error(0)
}

func (m *mockLedger) SaveScheduledAction(ctx context.Context, action *model.ScheduledAction) error {
	return m.Called(ctx, action).Error(0)
}

func (m *mockLedger) HasModificationsSince(ctx context.Context, since time.Time) (bool, error) {
	args := m.Called(ctx, since)
	return args.Bool(0), args.Error(1)
}

type mockBackups struct {
	mock.Mock
}

func (m *mockBackups) RunBackup(ctx context.Context, params export.Params) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}
