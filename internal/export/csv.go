package export

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/Veraticus/spice-ledger/internal/model"
)

var csvHeader = []string{
	"Date",
	"Transaction ID",
	"Description",
	"Notes",
	"Commodity",
	"Memo",
	"Account",
	"Amount",
	"Reconcile",
	"Reconcile Date",
}

// writeCSVFile writes one row per split. Credits are negative.
func writeCSVFile(path string, txns []*model.Transaction) (err error) {
	// #nosec G304 - path is built by the exporter from a validated directory
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close export file: %w", closeErr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, txn := range txns {
		for _, split := range txn.Splits() {
			if err := w.Write(splitRecord(txn, split)); err != nil {
				return fmt.Errorf("failed to write transaction %s: %w", txn.UID(), err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush export file: %w", err)
	}
	return nil
}

func splitRecord(txn *model.Transaction, split *model.Split) []string {
	amount := split.Quantity()
	if split.Type == model.Credit {
		amount = amount.Negate()
	}

	reconcileDate := ""
	if split.ReconcileState == model.Reconciled && !split.ReconcileDate.IsZero() {
		reconcileDate = split.ReconcileDate.UTC().Format("2006-01-02")
	}

	return []string{
		txn.Timestamp.UTC().Format("2006-01-02"),
		txn.UID(),
		txn.Description,
		txn.Notes,
		txn.Commodity.Mnemonic,
		split.Memo,
		split.AccountUID,
		amount.Amount().StringFixed(amount.Commodity().Digits()),
		string(split.ReconcileState),
		reconcileDate,
	}
}
