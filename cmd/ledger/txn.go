package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func txnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "txn",
		Short: "Record and list transactions",
		Example: `  # Record a grocery purchase paid from checking
  ledger txn add --description "Groceries" --amount 54.20 --debit expenses:food --credit assets:checking

  # Record a template for a scheduled transaction
  ledger txn add --template --description "Rent" --amount 1200 --debit expenses:rent --credit assets:checking

  # Show transactions created by a scheduled action
  ledger txn list --action 3f2a...`,
	}

	cmd.AddCommand(addTxnCmd())
	cmd.AddCommand(listTxnCmd())

	return cmd
}

// txnInput is the flag set of `txn add`.
type txnInput struct {
	description string
	notes       string
	amount      string
	commodity   string
	debit       string
	credit      string
	date        string
	template    bool
}

// build assembles a balanced two-split transaction.
func (in txnInput) build(defaultCommodity model.Commodity) (*model.Transaction, error) {
	if strings.TrimSpace(in.description) == "" {
		return nil, fmt.Errorf("--description is required")
	}
	if in.debit == "" || in.credit == "" {
		return nil, fmt.Errorf("--debit and --credit accounts are required")
	}
	if in.debit == in.credit {
		return nil, fmt.Errorf("debit and credit accounts must differ")
	}

	code := in.commodity
	if code == "" {
		code = defaultCommodity.Mnemonic
	}
	value, err := model.ParseMoney(in.amount, code)
	if err != nil {
		return nil, err
	}
	if value.IsZero() {
		return nil, fmt.Errorf("amount must not be zero")
	}

	txn := model.NewTransaction(in.description)
	txn.Commodity = value.Commodity()
	txn.Notes = in.notes
	txn.IsTemplate = in.template

	if in.date != "" {
		ts, err := parseTime(in.date)
		if err != nil {
			return nil, err
		}
		txn.Timestamp = ts
	}

	debit := model.NewSplit(value, in.debit)
	debit.Type = model.Debit
	if value.IsNegative() {
		debit.Type = model.Credit
	}
	txn.AddSplit(debit)
	txn.AddSplit(debit.CreatePair(in.credit))

	return txn, nil
}

func addTxnCmd() *cobra.Command {
	var in txnInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			defaultCommodity, err := config.Commodity(viper.GetViper())
			if err != nil {
				return err
			}
			txn, err := in.build(defaultCommodity)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := resolveSplitAccounts(ctx, store, txn); err != nil {
				return err
			}
			if err := store.SaveTransaction(ctx, txn); err != nil {
				return fmt.Errorf("failed to save transaction: %w", err)
			}

			kind := "transaction"
			if txn.IsTemplate {
				kind = "template"
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Recorded %s %s", kind, txn.UID())))
			return nil
		},
	}

	cmd.Flags().StringVar(&in.description, "description", "", "Transaction description")
	cmd.Flags().StringVar(&in.notes, "notes", "", "Free-form notes")
	cmd.Flags().StringVar(&in.amount, "amount", "", "Amount, e.g. 54.20")
	cmd.Flags().StringVar(&in.commodity, "commodity", "", "Currency code (default from ledger.commodity)")
	cmd.Flags().StringVar(&in.debit, "debit", "", "Account receiving the debit (name or ID)")
	cmd.Flags().StringVar(&in.credit, "credit", "", "Account receiving the credit (name or ID)")
	cmd.Flags().StringVar(&in.date, "date", "", "Transaction date (default now)")
	cmd.Flags().BoolVar(&in.template, "template", false, "Store as a template for scheduled actions")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func listTxnCmd() *cobra.Command {
	var (
		since     string
		until     string
		actionUID string
		limit     int
		templates bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			filter := service.TransactionFilter{
				ScheduledActionUID: actionUID,
				Limit:              limit,
				IncludeTemplates:   templates,
			}
			if since != "" {
				t, err := parseTime(since)
				if err != nil {
					return err
				}
				filter.StartDate = &t
			}
			if until != "" {
				t, err := parseTime(until)
				if err != nil {
					return err
				}
				filter.EndDate = &t
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			txns, err := store.GetTransactions(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(txns) == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("No transactions found."))
				return nil
			}
			fmt.Fprintln(out, cli.RenderTable(
				[]string{"DATE", "ID", "DESCRIPTION", "AMOUNT", "SPLITS", "FLAGS"},
				transactionRows(txns),
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only transactions on or after this date")
	cmd.Flags().StringVar(&until, "until", "", "Only transactions on or before this date")
	cmd.Flags().StringVar(&actionUID, "action", "", "Only transactions created by this scheduled action")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of transactions")
	cmd.Flags().BoolVar(&templates, "templates", false, "Include templates")

	return cmd
}

// resolveSplitAccounts replaces the account names typed on the command line
// with account UIDs.
func resolveSplitAccounts(ctx context.Context, store service.AccountStore, txn *model.Transaction) error {
	for _, split := range txn.Splits() {
		account, err := findAccount(ctx, store, split.AccountUID)
		if err != nil {
			return err
		}
		split.AccountUID = account.UID
	}
	return nil
}

func findAccount(ctx context.Context, store service.AccountStore, ref string) (*model.Account, error) {
	account, err := store.FindAccount(ctx, ref)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewUserError(
			fmt.Sprintf("no account named %q; create it with `ledger account add`", ref), err)
	}
	return account, err
}

func transactionRows(txns []*model.Transaction) [][]string {
	rows := make([][]string, 0, len(txns))
	for _, txn := range txns {
		rows = append(rows, []string{
			txn.Timestamp.UTC().Format(time.DateOnly),
			shortUID(txn.UID()),
			txn.Description,
			transactionAmount(txn),
			strconv.Itoa(len(txn.Splits())),
			transactionFlags(txn),
		})
	}
	return rows
}

// transactionAmount is the total of the debit legs.
func transactionAmount(txn *model.Transaction) string {
	total := model.ZeroMoney(txn.Commodity)
	for _, s := range txn.Splits() {
		if s.Type != model.Debit {
			continue
		}
		sum, err := total.Add(s.Value())
		if err != nil {
			return "mixed"
		}
		total = sum
	}
	return total.String()
}

func transactionFlags(txn *model.Transaction) string {
	var flags []string
	if txn.IsTemplate {
		flags = append(flags, "template")
	}
	if txn.ScheduledActionUID != "" {
		flags = append(flags, "scheduled")
	}
	if txn.IsExported {
		flags = append(flags, "exported")
	}
	if !txn.IsBalanced() {
		flags = append(flags, "unbalanced")
	}
	return strings.Join(flags, ",")
}

func shortUID(uid string) string {
	if len(uid) > 8 {
		return uid[:8]
	}
	return uid
}
