package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the chart of accounts",
		Long: `Create and list the accounts transactions post to.

Every split names an account. Accounts must exist before a transaction can
use them, except the per-currency imbalance accounts, which are created the
first time a split needs one.`,
		Example: `  # Group expenses under a placeholder
  ledger account add Expenses --type expense --placeholder
  ledger account add expenses:food --type expense --parent Expenses

  # A checking account in euros
  ledger account add assets:checking --type bank --commodity EUR

  # Show balances
  ledger account list`,
	}

	cmd.AddCommand(addAccountCmd())
	cmd.AddCommand(listAccountsCmd())

	return cmd
}

func addAccountCmd() *cobra.Command {
	var (
		accountType string
		commodity   string
		parent      string
		description string
		placeholder bool
		hidden      bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			kind, err := model.ParseAccountType(accountType)
			if err != nil {
				return common.NewUserError(
					"account type must be one of "+strings.ToLower(joinAccountTypes()), err)
			}
			unit, err := config.Commodity(viper.GetViper())
			if err != nil {
				return err
			}
			if commodity != "" {
				unit = model.CommodityByCode(commodity)
			}

			account := model.NewAccount(args[0], kind, unit)
			account.Description = description
			account.Placeholder = placeholder
			account.Hidden = hidden

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if parent != "" {
				owner, err := findAccount(ctx, store, parent)
				if err != nil {
					return err
				}
				account.ParentUID = owner.UID
			}
			if err := store.SaveAccount(ctx, account); err != nil {
				return fmt.Errorf("failed to save account: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Created %s account %s (%s)", account.Type, account.Name, account.UID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&accountType, "type", string(model.AccountAsset), "Account type")
	cmd.Flags().StringVar(&commodity, "commodity", "", "Currency code (default from ledger.commodity)")
	cmd.Flags().StringVar(&parent, "parent", "", "Parent account (name or ID)")
	cmd.Flags().StringVar(&description, "description", "", "Account description")
	cmd.Flags().BoolVar(&placeholder, "placeholder", false, "Only groups other accounts; cannot hold splits")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Hide from listings")

	return cmd
}

func listAccountsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts and their balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.ListAccounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			out := cmd.OutOrStdout()
			rows, err := accountRows(ctx, store, accounts, all)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("No accounts found."))
				return nil
			}
			fmt.Fprintln(out, cli.RenderTable(
				[]string{"NAME", "TYPE", "COMMODITY", "PARENT", "BALANCE", "FLAGS"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include hidden accounts")

	return cmd
}

func accountRows(ctx context.Context, store service.TransactionStore, accounts []*model.Account, all bool) ([][]string, error) {
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.UID] = a.Name
	}

	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		if a.Hidden && !all {
			continue
		}
		balance, err := accountBalance(ctx, store, a)
		if err != nil {
			return nil, err
		}
		var flags []string
		if a.Placeholder {
			flags = append(flags, "placeholder")
		}
		if a.Hidden {
			flags = append(flags, "hidden")
		}
		rows = append(rows, []string{
			a.Name,
			string(a.Type),
			a.Commodity.Mnemonic,
			names[a.ParentUID],
			balance.String(),
			strings.Join(flags, ","),
		})
	}
	return rows, nil
}

// accountBalance sums the account's splits across every non-template transaction.
func accountBalance(ctx context.Context, store service.TransactionStore, account *model.Account) (model.Money, error) {
	total := model.ZeroMoney(account.Commodity)
	txns, err := store.GetTransactions(ctx, service.TransactionFilter{AccountUID: account.UID})
	if err != nil {
		return total, fmt.Errorf("failed to load transactions for %s: %w", account.Name, err)
	}
	for _, txn := range txns {
		sum, err := total.Add(txn.BalanceForAccount(account))
		if err != nil {
			return total, fmt.Errorf("account %s: %w", account.Name, err)
		}
		total = sum
	}
	return total, nil
}

func joinAccountTypes() string {
	names := make([]string, len(model.AccountTypes))
	for i, t := range model.AccountTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
