// Package storage provides the data persistence layer for the ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Validation errors.
var (
	ErrNilContext              = errors.New("context cannot be nil")
	ErrEmptyString             = errors.New("string parameter cannot be empty")
	ErrNilParameter            = errors.New("parameter cannot be nil")
	ErrInvalidDateRange        = errors.New("start date must be before end date")
	ErrInvalidTransaction      = errors.New("invalid transaction")
	ErrInvalidScheduledAction  = errors.New("invalid scheduled action")
	ErrInvalidAccount          = errors.New("invalid account")
	ErrUnknownAccount          = errors.New("unknown account")
	ErrInvalidPaginationParams = errors.New("invalid pagination parameters")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransaction validates a single transaction and its splits.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.UID() == "" {
		return fmt.Errorf("%w: missing UID", ErrInvalidTransaction)
	}
	if txn.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidTransaction)
	}
	if txn.Commodity.Mnemonic == "" {
		return fmt.Errorf("%w: missing commodity", ErrInvalidTransaction)
	}
	for i, split := range txn.Splits() {
		if split.UID == "" {
			return fmt.Errorf("%w: split %d missing UID", ErrInvalidTransaction, i)
		}
		if split.AccountUID == "" {
			return fmt.Errorf("%w: split %d missing account", ErrInvalidTransaction, i)
		}
		if split.TransactionUID != txn.UID() {
			return fmt.Errorf("%w: split %d belongs to %q", ErrInvalidTransaction, i, split.TransactionUID)
		}
	}
	return nil
}

// validateAccount validates an account's own fields.
func validateAccount(account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	return nil
}

// validateScheduledAction validates an action and its recurrence.
func validateScheduledAction(action *model.ScheduledAction) error {
	if action == nil {
		return fmt.Errorf("%w: scheduled action", ErrNilParameter)
	}
	if action.UID == "" {
		return fmt.Errorf("%w: missing UID", ErrInvalidScheduledAction)
	}
	if _, err := model.ParseActionType(string(action.ActionType)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScheduledAction, err)
	}
	if err := action.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScheduledAction, err)
	}
	return nil
}

// validateFilter validates transaction query options.
func validateFilter(filter service.TransactionFilter) error {
	if filter.Limit < 0 || filter.Offset < 0 {
		return fmt.Errorf("%w: limit=%d offset=%d", ErrInvalidPaginationParams, filter.Limit, filter.Offset)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}
	return nil
}
