package model

import (
	"fmt"
	"time"
)

// SplitType is the direction of a split. Amounts are always stored as
// magnitudes; the type alone carries the sign.
type SplitType string

// Split directions.
const (
	Debit  SplitType = "DEBIT"
	Credit SplitType = "CREDIT"
)

// Invert returns the opposite direction.
func (t SplitType) Invert() SplitType {
	if t == Debit {
		return Credit
	}
	return Debit
}

// ParseSplitType parses "DEBIT" or "CREDIT".
func ParseSplitType(s string) (SplitType, error) {
	switch SplitType(s) {
	case Debit, Credit:
		return SplitType(s), nil
	default:
		return "", fmt.Errorf("unknown split type %q", s)
	}
}

// ReconcileState tracks whether a split has been checked against a statement.
type ReconcileState string

// Reconcile states.
const (
	NotReconciled ReconcileState = "n"
	Cleared       ReconcileState = "c"
	Reconciled    ReconcileState = "y"
)

// Split is one leg of a transaction, tied to exactly one account.
type Split struct {
	ReconcileDate  time.Time
	value          Money
	quantity       Money
	UID            string
	AccountUID     string
	TransactionUID string
	Memo           string
	Type           SplitType
	ReconcileState ReconcileState
}

// NewSplit creates a credit split whose quantity equals its value.
func NewSplit(value Money, accountUID string) *Split {
	return NewSplitWithQuantity(value, value, accountUID)
}

// NewSplitWithQuantity creates a credit split with distinct value and quantity,
// used when the account commodity differs from the transaction's.
func NewSplitWithQuantity(value, quantity Money, accountUID string) *Split {
	return &Split{
		UID:            NewUID(),
		value:          value.Abs(),
		quantity:       quantity.Abs(),
		AccountUID:     accountUID,
		Type:           Credit,
		ReconcileState: NotReconciled,
	}
}

// Value returns the magnitude in the transaction's commodity.
func (s *Split) Value() Money {
	return s.value
}

// SetValue stores the magnitude of amount.
func (s *Split) SetValue(amount Money) {
	s.value = amount.Abs()
}

// Quantity returns the magnitude in the account's commodity.
func (s *Split) Quantity() Money {
	return s.quantity
}

// SetQuantity stores the magnitude of amount.
func (s *Split) SetQuantity(amount Money) {
	s.quantity = amount.Abs()
}

// SignedValue returns the value with debits positive and credits negative.
func (s *Split) SignedValue() Money {
	if s.Type == Credit {
		return s.value.Negate()
	}
	return s.value
}

// Clone copies the split. With generateUID the copy gets a fresh UID.
func (s *Split) Clone(generateUID bool) *Split {
	clone := *s
	if generateUID {
		clone.UID = NewUID()
	}
	return &clone
}

// CreatePair returns the opposite leg of s in another account.
func (s *Split) CreatePair(accountUID string) *Split {
	return &Split{
		UID:            NewUID(),
		value:          s.value,
		quantity:       s.quantity,
		AccountUID:     accountUID,
		TransactionUID: s.TransactionUID,
		Memo:           s.Memo,
		Type:           s.Type.Invert(),
		ReconcileState: NotReconciled,
	}
}

// IsPairOf reports whether other is the opposite leg of s.
func (s *Split) IsPairOf(other *Split) bool {
	if other == nil {
		return false
	}
	if s.TransactionUID != "" && other.TransactionUID != "" && s.TransactionUID != other.TransactionUID {
		return false
	}
	return s.value.Equal(other.value) &&
		s.quantity.Equal(other.quantity) &&
		s.Type.Invert() == other.Type
}

// IsEquivalentTo compares everything except UIDs.
func (s *Split) IsEquivalentTo(other *Split) bool {
	if other == nil {
		return false
	}
	return s.value.Equal(other.value) &&
		s.quantity.Equal(other.quantity) &&
		s.AccountUID == other.AccountUID &&
		s.Type == other.Type &&
		s.Memo == other.Memo
}
