package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/ofx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions from bank statements",
	}

	cmd.AddCommand(importOFXCmd())

	return cmd
}

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ofx [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import transactions from OFX or QFX (Quicken) files exported from your bank.
Each statement line becomes a balanced transaction between the statement's
account and the imbalance account of its currency. Statement accounts are
created as "OFX <account id>" the first time they are seen. Re-importing the same
statement skips lines that are already in the book.`,
		Example: `  # Import single file
  ledger import ofx ~/Downloads/chase_jan_2024.qfx

  # Import all QFX files in a directory
  ledger import ofx ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")

	return cmd
}

// expandFiles resolves glob patterns, keeping plain paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(config.ExpandPath(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			slog.Warn("No files found matching pattern", "pattern", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out := cmd.OutOrStdout()

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	commodity, err := config.Commodity(viper.GetViper())
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "OFX import", "Re-running the import skips lines already in the book.")

	parser := ofx.NewParserWithCommodity(commodity)
	var all []*model.Transaction
	for _, path := range files {
		txns, err := parseOFXFile(ctx, parser, path)
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", path, "error", err)
			continue
		}
		slog.Info("Parsed file", "file", filepath.Base(path), "transactions", len(txns))
		all = append(all, txns...)
	}

	if len(all) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No transactions found in any file"))
		return nil
	}

	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d transactions parsed, nothing saved", len(all))))
		fmt.Fprintln(out, cli.RenderTable(
			[]string{"DATE", "ID", "DESCRIPTION", "AMOUNT", "SPLITS", "FLAGS"},
			transactionRows(all),
		))
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	result, err := ofx.Import(ctx, store, parser.Accounts(), all)
	if err != nil {
		return fmt.Errorf("import failed after %d transactions: %w", result.Imported, err)
	}

	if result.AccountsCreated > 0 {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Created %d statement accounts", result.AccountsCreated)))
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transactions (%d already in the book)",
		result.Imported, result.Duplicates)))
	return nil
}

func parseOFXFile(ctx context.Context, parser *ofx.Parser, path string) ([]*model.Transaction, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the user's command line
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parser.ParseFile(ctx, f)
}
