package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// SaveAccount inserts or updates an account.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}
	return s.saveAccountTx(ctx, s.db, account)
}

func (s *SQLiteStorage) saveAccountTx(ctx context.Context, q queryable, account *model.Account) error {
	if account.ParentUID != "" {
		parent, err := s.getAccountTx(ctx, q, account.ParentUID)
		if err != nil {
			return fmt.Errorf("%w: parent of %s: %w", ErrInvalidAccount, account.Name, err)
		}
		if err := s.checkAncestry(ctx, q, account.UID, parent); err != nil {
			return err
		}
	}

	var taken bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE name = ? COLLATE NOCASE AND uid != ?)`,
		strings.TrimSpace(account.Name), account.UID).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check account name: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: name %q already in use", ErrInvalidAccount, account.Name)
	}

	account.ModifiedAt = s.now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = account.ModifiedAt
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (
			uid, name, description, account_type, commodity, parent_uid,
			placeholder, hidden, created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			account_type = excluded.account_type,
			commodity = excluded.commodity,
			parent_uid = excluded.parent_uid,
			placeholder = excluded.placeholder,
			hidden = excluded.hidden,
			modified_at = excluded.modified_at
	`,
		account.UID,
		strings.TrimSpace(account.Name),
		account.Description,
		string(account.Type),
		account.Commodity.Mnemonic,
		nullString(account.ParentUID),
		account.Placeholder,
		account.Hidden,
		toUnix(account.CreatedAt),
		toUnix(account.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.Name, err)
	}
	return nil
}

// checkAncestry rejects a parent chain that leads back to uid.
func (s *SQLiteStorage) checkAncestry(ctx context.Context, q queryable, uid string, parent *model.Account) error {
	seen := map[string]bool{}
	for current := parent; current != nil; {
		if current.UID == uid {
			return fmt.Errorf("%w: %s would become its own ancestor", ErrInvalidAccount, uid)
		}
		if current.ParentUID == "" || seen[current.UID] {
			return nil
		}
		seen[current.UID] = true
		next, err := s.getAccountTx(ctx, q, current.ParentUID)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}

// GetAccount retrieves an account by UID.
func (s *SQLiteStorage) GetAccount(ctx context.Context, uid string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(uid, "uid"); err != nil {
		return nil, err
	}
	return s.getAccountTx(ctx, s.db, uid)
}

func (s *SQLiteStorage) getAccountTx(ctx context.Context, q queryable, uid string) (*model.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE uid = ?`, uid)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", uid, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// FindAccount resolves an account by UID or, failing that, by name (case-insensitive).
func (s *SQLiteStorage) FindAccount(ctx context.Context, ref string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ref, "account"); err != nil {
		return nil, err
	}
	return s.findAccountTx(ctx, s.db, strings.TrimSpace(ref))
}

func (s *SQLiteStorage) findAccountTx(ctx context.Context, q queryable, ref string) (*model.Account, error) {
	account, err := s.getAccountTx(ctx, q, ref)
	if err == nil || !errors.Is(err, common.ErrNotFound) {
		return account, err
	}
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = ? COLLATE NOCASE`, ref)
	account, err = scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", ref, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// ListAccounts returns all accounts ordered by name.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listAccountsTx(ctx, s.db)
}

func (s *SQLiteStorage) listAccountsTx(ctx context.Context, q queryable) ([]*model.Account, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetOrCreateImbalanceAccount returns the imbalance account for a commodity,
// creating it on first use.
func (s *SQLiteStorage) GetOrCreateImbalanceAccount(ctx context.Context, commodity model.Commodity) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getOrCreateImbalanceAccountTx(ctx, s.db, commodity)
}

func (s *SQLiteStorage) getOrCreateImbalanceAccountTx(ctx context.Context, q queryable, commodity model.Commodity) (*model.Account, error) {
	uid := model.ImbalanceAccountUID(commodity)
	account, err := s.getAccountTx(ctx, q, uid)
	if err == nil || !errors.Is(err, common.ErrNotFound) {
		return account, err
	}

	account = model.NewImbalanceAccount(commodity)
	if err := s.saveAccountTx(ctx, q, account); err != nil {
		return nil, err
	}
	slog.Info("Created imbalance account", "account", account.Name, "commodity", commodity.Mnemonic)
	return account, nil
}

// resolveSplitAccounts checks that every split posts to a known account that
// can hold splits. Imbalance accounts are created on first use.
func (s *SQLiteStorage) resolveSplitAccounts(ctx context.Context, q queryable, txn *model.Transaction) error {
	checked := map[string]bool{}
	for i, split := range txn.Splits() {
		if checked[split.AccountUID] {
			continue
		}
		checked[split.AccountUID] = true

		var (
			account *model.Account
			err     error
		)
		if commodity, ok := model.ImbalanceCommodity(split.AccountUID); ok {
			account, err = s.getOrCreateImbalanceAccountTx(ctx, q, commodity)
		} else {
			account, err = s.getAccountTx(ctx, q, split.AccountUID)
		}
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: split %d: %w: %s", ErrInvalidTransaction, i, ErrUnknownAccount, split.AccountUID)
		}
		if err != nil {
			return err
		}
		if account.Placeholder {
			return fmt.Errorf("%w: split %d: account %s is a placeholder", ErrInvalidTransaction, i, account.Name)
		}
	}
	return nil
}

const accountColumns = `uid, name, description, account_type, commodity, parent_uid,
	placeholder, hidden, created_at, modified_at`

func scanAccount(row scanner) (*model.Account, error) {
	var (
		uid, name, description, accountType, commodity string
		parentUID                                      sql.NullString
		placeholder, hidden                            bool
		createdAt, modifiedAt                          int64
	)
	if err := row.Scan(&uid, &name, &description, &accountType, &commodity, &parentUID,
		&placeholder, &hidden, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}

	kind, err := model.ParseAccountType(accountType)
	if err != nil {
		return nil, err
	}
	return &model.Account{
		UID:         uid,
		Name:        name,
		Description: description,
		Type:        kind,
		Commodity:   model.CommodityByCode(commodity),
		ParentUID:   parentUID.String,
		Placeholder: placeholder,
		Hidden:      hidden,
		CreatedAt:   fromUnix(createdAt),
		ModifiedAt:  fromUnix(modifiedAt),
	}, nil
}
