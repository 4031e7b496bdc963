package model

import (
	"time"
)

// Transaction is a balanced set of splits. It owns its splits: adding one
// stamps it with the transaction's UID.
type Transaction struct {
	Timestamp          time.Time
	CreatedAt          time.Time
	ModifiedAt         time.Time
	Commodity          Commodity
	uid                string
	Description        string
	Notes              string
	ScheduledActionUID string
	splits             []*Split
	IsTemplate         bool
	IsExported         bool
}

// NewTransaction creates an empty transaction in the default commodity.
func NewTransaction(description string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		uid:         NewUID(),
		Description: description,
		Commodity:   DefaultCommodity,
		Timestamp:   now,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
}

// UID returns the transaction's identifier.
func (t *Transaction) UID() string {
	return t.uid
}

// SetUID changes the identifier and re-stamps every owned split.
func (t *Transaction) SetUID(uid string) {
	t.uid = uid
	for _, s := range t.splits {
		s.TransactionUID = uid
	}
}

// Splits returns the splits in order.
func (t *Transaction) Splits() []*Split {
	out := make([]*Split, len(t.splits))
	copy(out, t.splits)
	return out
}

// SplitsForAccount returns the splits posted to accountUID.
func (t *Transaction) SplitsForAccount(accountUID string) []*Split {
	var out []*Split
	for _, s := range t.splits {
		if s.AccountUID == accountUID {
			out = append(out, s)
		}
	}
	return out
}

// AddSplit appends a split and takes ownership of it.
func (t *Transaction) AddSplit(s *Split) {
	s.TransactionUID = t.uid
	t.splits = append(t.splits, s)
}

// SetSplits replaces all splits, re-stamping each one.
func (t *Transaction) SetSplits(splits []*Split) {
	t.splits = make([]*Split, 0, len(splits))
	for _, s := range splits {
		t.AddSplit(s)
	}
}

// Clone copies the transaction and its splits. With generateNewUID the clone
// and its splits get fresh UIDs and the bookkeeping flags are reset; otherwise
// the copy is structurally equal to t.
func (t *Transaction) Clone(generateNewUID bool) *Transaction {
	clone := &Transaction{
		uid:         t.uid,
		Description: t.Description,
		Notes:       t.Notes,
		Commodity:   t.Commodity,
		Timestamp:   t.Timestamp,
		CreatedAt:   t.CreatedAt,
		ModifiedAt:  t.ModifiedAt,
	}
	if generateNewUID {
		now := time.Now().UTC()
		clone.uid = NewUID()
		clone.CreatedAt = now
		clone.ModifiedAt = now
	} else {
		clone.IsTemplate = t.IsTemplate
		clone.IsExported = t.IsExported
		clone.ScheduledActionUID = t.ScheduledActionUID
	}
	for _, s := range t.splits {
		clone.AddSplit(s.Clone(generateNewUID))
	}
	return clone
}

// Imbalance returns the signed sum of split values, debits positive. It is
// zero for transactions holding splits in another commodity, which are
// balanced per commodity elsewhere.
func (t *Transaction) Imbalance() Money {
	total := ZeroMoney(t.Commodity)
	for _, s := range t.splits {
		if s.quantity.commodity.Mnemonic != t.Commodity.Mnemonic ||
			s.value.commodity.Mnemonic != t.Commodity.Mnemonic {
			return ZeroMoney(t.Commodity)
		}
		total.amount = total.amount.Add(s.SignedValue().amount)
	}
	return total
}

// IsBalanced reports whether the splits sum to zero.
func (t *Transaction) IsBalanced() bool {
	return t.Imbalance().IsZero()
}

// CreateAutoBalanceSplit appends and returns the split that brings the
// transaction to zero, posted to the commodity's imbalance account. It returns
// nil and leaves t untouched when nothing needs balancing.
func (t *Transaction) CreateAutoBalanceSplit() *Split {
	imbalance := t.Imbalance()
	if imbalance.IsZero() {
		return nil
	}
	split := NewSplit(imbalance, ImbalanceAccountUID(t.Commodity))
	if imbalance.IsNegative() {
		split.Type = Debit
	} else {
		split.Type = Credit
	}
	t.AddSplit(split)
	return split
}

// BalanceForAccount returns the effect of t on account, in the account's
// commodity and signed by its normal balance: a debit raises a debit-normal
// account and lowers a credit-normal one.
func (t *Transaction) BalanceForAccount(account *Account) Money {
	balance := ZeroMoney(account.Commodity)
	for _, s := range t.splits {
		if s.AccountUID != account.UID {
			continue
		}
		amount := s.quantity
		if s.value.commodity.Mnemonic == account.Commodity.Mnemonic {
			amount = s.value
		}
		if (s.Type == Debit) != account.Type.HasDebitNormalBalance() {
			amount = amount.Negate()
		}
		balance.amount = balance.amount.Add(amount.amount)
	}
	return balance
}
