package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/engine"
)

// FormatSweepSummary renders the outcome of a schedule run.
func FormatSweepSummary(result engine.SweepResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Run at:               %s\n", CalendarIcon, result.Now.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Actions processed:       %d\n", len(result.Results))
	fmt.Fprintf(&b, "Executed:                %d\n", result.Count(engine.StatusExecuted))
	fmt.Fprintf(&b, "Nothing due:             %d\n", result.Count(engine.StatusNoop))
	fmt.Fprintf(&b, "Skipped:                 %d\n", result.Count(engine.StatusSkipped))
	if n := result.Interrupted(); n > 0 {
		fmt.Fprintf(&b, "Interrupted:             %d\n", n)
	}
	fmt.Fprintf(&b, "Transactions created:    %d\n", result.TransactionsCreated())
	fmt.Fprintf(&b, "%s Backups written:     %d", FolderIcon, result.BackupsWritten())

	for _, r := range result.Results {
		if r.BackupPath != "" {
			fmt.Fprintf(&b, "\n  %s", SubtleStyle.Render(r.BackupPath))
		}
	}

	failed := result.Failed()
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\n\n%s", FormatError(fmt.Sprintf("%d action(s) failed:", len(failed))))
		for _, r := range failed {
			fmt.Fprintf(&b, "\n  %s [%s] %v", r.ScheduledActionUID, r.Category(), r.Err)
		}
	}

	return RenderBox("Schedule Run Summary", b.String())
}

// FormatActionResult renders a single action's outcome on one line.
func FormatActionResult(r engine.ActionResult) string {
	switch r.Status {
	case engine.StatusExecuted:
		if r.BackupPath != "" {
			return FormatSuccess(fmt.Sprintf("%s backup written to %s", r.ScheduledActionUID, r.BackupPath))
		}
		return FormatSuccess(fmt.Sprintf("%s created %d transaction(s)", r.ScheduledActionUID, len(r.Materialized)))
	case engine.StatusFailed:
		return FormatError(fmt.Sprintf("%s failed: %v", r.ScheduledActionUID, r.Err))
	default:
		return SubtleStyle.Render(fmt.Sprintf("%s %s: %s", r.ScheduledActionUID, r.Status, r.Reason))
	}
}
