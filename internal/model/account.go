package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidAccount is returned for accounts that fail validation.
var ErrInvalidAccount = errors.New("invalid account")

// AccountType classifies an account and determines its normal balance.
type AccountType string

// Account types.
const (
	AccountCash       AccountType = "CASH"
	AccountBank       AccountType = "BANK"
	AccountCredit     AccountType = "CREDIT"
	AccountAsset      AccountType = "ASSET"
	AccountLiability  AccountType = "LIABILITY"
	AccountIncome     AccountType = "INCOME"
	AccountExpense    AccountType = "EXPENSE"
	AccountPayable    AccountType = "PAYABLE"
	AccountReceivable AccountType = "RECEIVABLE"
	AccountEquity     AccountType = "EQUITY"
	AccountCurrency   AccountType = "CURRENCY"
	AccountStock      AccountType = "STOCK"
	AccountMutual     AccountType = "MUTUAL"
	AccountTrading    AccountType = "TRADING"
	AccountRoot       AccountType = "ROOT"
)

// AccountTypes lists every account type in display order.
var AccountTypes = []AccountType{
	AccountCash, AccountBank, AccountCredit, AccountAsset, AccountLiability,
	AccountIncome, AccountExpense, AccountPayable, AccountReceivable, AccountEquity,
	AccountCurrency, AccountStock, AccountMutual, AccountTrading, AccountRoot,
}

// ParseAccountType parses an account type name, ignoring case.
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AccountTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown account type %q", ErrInvalidAccount, s)
}

// HasDebitNormalBalance reports whether debits increase accounts of this type.
func (t AccountType) HasDebitNormalBalance() bool {
	switch t {
	case AccountCash, AccountBank, AccountAsset, AccountExpense,
		AccountReceivable, AccountStock, AccountMutual:
		return true
	default:
		return false
	}
}

// Account is a node in the chart of accounts. Splits post to accounts by UID.
type Account struct {
	CreatedAt   time.Time
	ModifiedAt  time.Time
	Commodity   Commodity
	UID         string
	Name        string
	Description string
	ParentUID   string
	Type        AccountType
	// Placeholder accounts only group children and cannot hold splits.
	Placeholder bool
	Hidden      bool
}

// NewAccount creates an account with a fresh UID.
func NewAccount(name string, accountType AccountType, commodity Commodity) *Account {
	now := time.Now().UTC()
	return &Account{
		UID:        NewUID(),
		Name:       strings.TrimSpace(name),
		Type:       accountType,
		Commodity:  commodity,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// Validate checks the account's own fields. Parent existence is a storage concern.
func (a *Account) Validate() error {
	switch {
	case a.UID == "":
		return fmt.Errorf("%w: missing UID", ErrInvalidAccount)
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("%w: missing name", ErrInvalidAccount)
	case a.Commodity.Mnemonic == "":
		return fmt.Errorf("%w: missing commodity", ErrInvalidAccount)
	case a.ParentUID == a.UID:
		return fmt.Errorf("%w: %s cannot be its own parent", ErrInvalidAccount, a.Name)
	}
	if _, err := ParseAccountType(string(a.Type)); err != nil {
		return err
	}
	return nil
}

// ImbalanceAccountUID is the fixed UID of the account that receives
// auto-balance splits for a commodity.
func ImbalanceAccountUID(c Commodity) string {
	return "imbalance-" + c.Mnemonic
}

// ImbalanceAccountName is the display name of a commodity's imbalance account.
func ImbalanceAccountName(c Commodity) string {
	return "Imbalance-" + c.Mnemonic
}

// ImbalanceCommodity returns the commodity whose imbalance account uid names.
func ImbalanceCommodity(uid string) (Commodity, bool) {
	code, ok := strings.CutPrefix(uid, "imbalance-")
	if !ok || code == "" {
		return Commodity{}, false
	}
	c := CommodityByCode(code)
	return c, ImbalanceAccountUID(c) == uid
}

// NewImbalanceAccount builds the imbalance account for a commodity.
func NewImbalanceAccount(c Commodity) *Account {
	a := NewAccount(ImbalanceAccountName(c), AccountBank, c)
	a.UID = ImbalanceAccountUID(c)
	a.Description = "Unbalanced amounts awaiting a transfer account"
	return a
}
