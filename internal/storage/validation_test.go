package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateTransaction(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		build   func() *model.Transaction
		wantErr error
		name    string
	}{
		{
			name:    "nil",
			build:   func() *model.Transaction { return nil },
			wantErr: ErrNilParameter,
		},
		{
			name:  "valid",
			build: func() *model.Transaction { return newTestTransaction(t, "ok", "1", at) },
		},
		{
			name: "missing timestamp",
			build: func() *model.Transaction {
				txn := newTestTransaction(t, "ok", "1", at)
				txn.Timestamp = time.Time{}
				return txn
			},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "split owned elsewhere",
			build: func() *model.Transaction {
				txn := newTestTransaction(t, "ok", "1", at)
				txn.Splits()[0].TransactionUID = "other"
				return txn
			},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "split without account",
			build: func() *model.Transaction {
				txn := newTestTransaction(t, "ok", "1", at)
				txn.Splits()[1].AccountUID = ""
				return txn
			},
			wantErr: ErrInvalidTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTransaction(tt.build())
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateContextAndString(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	assert.ErrorIs(t, validateContext(nil), ErrNilContext)
	assert.NoError(t, validateContext(context.Background()))

	assert.ErrorIs(t, validateString("   ", "uid"), ErrEmptyString)
	assert.NoError(t, validateString("abc", "uid"))
}
