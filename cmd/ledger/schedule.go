package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/export"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errSweepStorage is returned by `schedule run` when an action could not be
// persisted. Configuration and backup failures are reported but do not fail
// the command.
var errSweepStorage = errors.New("schedule run hit storage errors")

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled transactions and backups",
		Long: `Scheduled actions repeat on a recurrence. Transaction actions copy a
template into the book for every due date; backup actions export the book
when it changed since the previous backup.`,
		Example: `  # Pay rent on the first of every month
  ledger schedule add-transaction --template 3f2a... --period month --start 2024-01-01

  # Pay a cleaner every other Monday and Thursday, ten times
  ledger schedule add-transaction --template 9c1d... --period week --every 2 --on mon,thu --times 10

  # Back up the book every night as a database snapshot
  ledger schedule add-backup --period day --start "2024-01-01 02:00"

  # Run everything that is due
  ledger schedule run`,
	}

	cmd.AddCommand(addTransactionActionCmd())
	cmd.AddCommand(addBackupActionCmd())
	cmd.AddCommand(listActionsCmd())
	cmd.AddCommand(setEnabledCmd(true))
	cmd.AddCommand(setEnabledCmd(false))
	cmd.AddCommand(deleteActionCmd())
	cmd.AddCommand(runScheduleCmd())

	return cmd
}

// recurrenceFlags are shared by the add-* subcommands.
type recurrenceFlags struct {
	rule   string
	period string
	start  string
	end    string
	on     []string
	every  int
	times  int
}

func (f *recurrenceFlags) register(cmd *cobra.Command, defaultPeriod string) {
	cmd.Flags().StringVar(&f.period, "period", defaultPeriod, "Period type: day, week, month or year")
	cmd.Flags().IntVar(&f.every, "every", 1, "Repeat every N periods")
	cmd.Flags().StringSliceVar(&f.on, "on", nil, "Weekdays for weekly schedules, e.g. mon,thu")
	cmd.Flags().StringVar(&f.start, "start", "", "First due date (default now)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last possible due date")
	cmd.Flags().IntVar(&f.times, "times", 0, "Stop after N executions")
	cmd.Flags().StringVar(&f.rule, "rule", "", "RRULE such as FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH;COUNT=10 (replaces --period, --every, --on, --end and --times)")
}

// startTime resolves --start, defaulting to now.
func (f *recurrenceFlags) startTime(now time.Time) (time.Time, error) {
	if f.start == "" {
		return now.UTC().Truncate(time.Second), nil
	}
	return parseTime(f.start)
}

// ruleAction builds the action from --rule.
func (f *recurrenceFlags) ruleAction(actionType model.ActionType, now time.Time) (*model.ScheduledAction, error) {
	if len(f.on) > 0 || f.end != "" || f.times != 0 {
		return nil, fmt.Errorf("--rule cannot be combined with --on, --end or --times")
	}
	rule, err := model.ParseRule(f.rule)
	if err != nil {
		return nil, err
	}
	start, err := f.startTime(now)
	if err != nil {
		return nil, err
	}

	action, err := model.NewScheduledAction(actionType, rule.Recurrence(start))
	if err != nil {
		return nil, err
	}
	action.TotalFrequency = rule.Count
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// action builds a scheduled action of the given type from the flags.
func (f *recurrenceFlags) action(actionType model.ActionType, now time.Time) (*model.ScheduledAction, error) {
	if f.rule != "" {
		return f.ruleAction(actionType, now)
	}

	periodType, err := model.ParsePeriodType(f.period)
	if err != nil {
		return nil, err
	}
	days, err := parseWeekdays(f.on)
	if err != nil {
		return nil, err
	}
	if len(days) > 0 && periodType != model.Week {
		return nil, fmt.Errorf("--on requires --period week")
	}
	if f.end != "" && f.times > 0 {
		return nil, fmt.Errorf("--end and --times are mutually exclusive")
	}
	if f.times < 0 {
		return nil, fmt.Errorf("--times must not be negative")
	}

	rec := model.NewRecurrence(periodType)
	rec.Multiplier = f.every
	if rec.PeriodStart, err = f.startTime(now); err != nil {
		return nil, err
	}
	if rec.PeriodEnd, err = parseTime(f.end); err != nil {
		return nil, err
	}
	rec.SetByDays(days)

	action, err := model.NewScheduledAction(actionType, rec)
	if err != nil {
		return nil, err
	}
	action.TotalFrequency = f.times
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

func addTransactionActionCmd() *cobra.Command {
	var (
		flags       recurrenceFlags
		templateUID string
		account     string
		disabled    bool
	)

	cmd := &cobra.Command{
		Use:   "add-transaction",
		Short: "Schedule a recurring transaction from a template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			action, err := flags.action(model.ActionTransaction, time.Now())
			if err != nil {
				return err
			}
			action.ActionUID = templateUID
			action.Enabled = !disabled

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if account != "" {
				owner, err := findAccount(ctx, store, account)
				if err != nil {
					return err
				}
				action.TemplateAccountUID = owner.UID
			}

			if _, err := store.GetTemplate(ctx, templateUID); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError("no template with that ID; record one with `ledger txn add --template`", err)
				}
				return err
			}
			if err := store.SaveScheduledAction(ctx, action); err != nil {
				return fmt.Errorf("failed to save scheduled action: %w", err)
			}

			printCreatedAction(cmd.OutOrStdout(), action)
			return nil
		},
	}

	flags.register(cmd, "month")
	cmd.Flags().StringVar(&templateUID, "template", "", "Template transaction ID")
	cmd.Flags().StringVar(&account, "account", "", "Account the template belongs to")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the action disabled")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}

// configureDrive enables Google Drive uploads when credentials are configured.
func configureDrive(ctx context.Context, exporter *export.Exporter) error {
	driveConfig, ok, err := config.LoadDriveConfig(viper.GetViper())
	if err != nil || !ok {
		return err
	}
	uploader, err := export.NewGoogleDriveUploader(ctx, driveConfig)
	if err != nil {
		return fmt.Errorf("failed to set up Google Drive: %w", err)
	}
	exporter.SetDrive(uploader, driveConfig)
	return nil
}

// backupFlags hold the export parameters of `add-backup`.
type backupFlags struct {
	format            string
	target            string
	location          string
	deleteAfterExport bool
}

func (f backupFlags) params() (export.Params, error) {
	params := export.DefaultParams()
	if f.format != "" {
		params.Format = export.Format(strings.ToUpper(f.format))
	}
	if f.target != "" {
		params.Target = export.Target(strings.ToUpper(f.target))
	}
	switch {
	case f.location == "":
	case params.Target == export.TargetLocal:
		params.Location = config.ExpandPath(f.location)
	default:
		params.Location = f.location
	}
	params.DeleteAfterExport = f.deleteAfterExport

	// Round-trip through the tag to apply the same normalization the
	// processor will.
	parsed, err := export.ParseParams(params.Tag())
	if err != nil {
		return export.Params{}, err
	}
	if err := parsed.Validate(); err != nil {
		return export.Params{}, err
	}
	return parsed, nil
}

func addBackupActionCmd() *cobra.Command {
	var (
		flags    recurrenceFlags
		backup   backupFlags
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add-backup",
		Short: "Schedule a recurring backup of the book",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			params, err := backup.params()
			if err != nil {
				return err
			}
			action, err := flags.action(model.ActionBackup, time.Now())
			if err != nil {
				return err
			}
			action.Tag = params.Tag()
			action.Enabled = !disabled

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveScheduledAction(ctx, action); err != nil {
				return fmt.Errorf("failed to save scheduled action: %w", err)
			}

			printCreatedAction(cmd.OutOrStdout(), action)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", cli.SubtleStyle.Render(params.String()))
			return nil
		},
	}

	flags.register(cmd, "day")
	cmd.Flags().StringVar(&backup.format, "format", string(export.FormatDB), "Backup format: DB or CSV")
	cmd.Flags().StringVar(&backup.target, "target", string(export.TargetLocal), "Backup target: LOCAL or GOOGLE_DRIVE")
	cmd.Flags().StringVar(&backup.location, "location", "", "Backup directory, or Drive folder ID for GOOGLE_DRIVE (default from backup.dir or backup.drive.folder_id)")
	cmd.Flags().BoolVar(&backup.deleteAfterExport, "delete-after-export", false, "Delete transactions once exported to CSV")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the action disabled")

	return cmd
}

func printCreatedAction(w io.Writer, action *model.ScheduledAction) {
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Scheduled %s action %s", action.ActionType, action.UID)))
	fmt.Fprintf(w, "  %s %s\n", cli.CalendarIcon, action.RepeatString())
	fmt.Fprintf(w, "  Next due: %s\n", formatTime(action.NextDueTime()))
}

func listActionsCmd() *cobra.Command {
	var enabledOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled actions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			actions, err := store.ListScheduledActions(ctx, enabledOnly)
			if err != nil {
				return fmt.Errorf("failed to list scheduled actions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(actions) == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("No scheduled actions found."))
				return nil
			}
			fmt.Fprintln(out, cli.RenderTable(
				[]string{"ID", "TYPE", "SCHEDULE", "NEXT DUE", "LAST RUN", "RUNS", "STATE"},
				actionRows(actions),
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only show enabled actions")

	return cmd
}

func actionRows(actions []*model.ScheduledAction) [][]string {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		state := "enabled"
		switch {
		case !a.Enabled:
			state = "disabled"
		case a.IsExhausted():
			state = "finished"
		}

		next := "-"
		if !a.IsExhausted() {
			next = formatTime(a.NextDueTime())
		}

		rows = append(rows, []string{
			shortUID(a.UID),
			string(a.ActionType),
			a.RepeatString(),
			next,
			formatTime(a.LastRun),
			strconv.Itoa(a.ExecutionCount),
			state,
		})
	}
	return rows
}

func setEnabledCmd(enabled bool) *cobra.Command {
	use, short, verb := "disable", "Disable a scheduled action", "Disabled"
	if enabled {
		use, short, verb = "enable", "Enable a scheduled action", "Enabled"
	}

	return &cobra.Command{
		Use:   use + " <action-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			action, err := store.GetScheduledAction(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load scheduled action: %w", err)
			}
			action.Enabled = enabled
			if err := store.SaveScheduledAction(ctx, action); err != nil {
				return fmt.Errorf("failed to save scheduled action: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s %s", verb, action.UID)))
			return nil
		},
	}
}

func deleteActionCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <action-id>",
		Short: "Delete a scheduled action",
		Long: `Delete a scheduled action and its recurrence. Transactions it already
created stay in the book.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			action, err := store.GetScheduledAction(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load scheduled action: %w", err)
			}

			if !force {
				fmt.Fprintln(out, cli.FormatWarning("This will delete "+action.String()))
				ok, err := cli.NewNonBlockingReader(cmd.InOrStdin()).Confirm(ctx, out, "Continue?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, cli.SubtleStyle.Render("Deletion canceled."))
					return nil
				}
			}

			if err := store.DeleteScheduledAction(ctx, action.UID); err != nil {
				return fmt.Errorf("failed to delete scheduled action: %w", err)
			}
			fmt.Fprintln(out, cli.FormatSuccess("Deleted "+action.UID))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func runScheduleCmd() *cobra.Command {
	var (
		at         string
		checkpoint bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all scheduled actions that are due",
		Long: `Materialize every due occurrence of enabled transaction actions and run
due backups. Actions that fail are reported and retried on the next run;
the command only fails when the book itself could not be written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := parseTime(at)
				if err != nil {
					return err
				}
				now = t
			}

			interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx := interrupts.HandleInterrupts(cmd.Context(), "Schedule run", "Re-run with: ledger schedule run")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if checkpoint {
				if err := autoCheckpoint(ctx, store); err != nil {
					return err
				}
			}

			exportConfig, err := config.LoadExportConfig(viper.GetViper())
			if err != nil {
				return err
			}
			exporter, err := export.NewExporter(store, exportConfig, slog.Default())
			if err != nil {
				return err
			}
			if err := configureDrive(ctx, exporter); err != nil {
				return err
			}

			actions, err := store.ListScheduledActions(ctx, true)
			if err != nil {
				return fmt.Errorf("failed to list scheduled actions: %w", err)
			}

			result := sweep(ctx, engine.New(store, exporter), now, actions, cmd.ErrOrStderr(), quiet)

			out := cmd.OutOrStdout()
			if !quiet {
				for _, r := range result.Results {
					if r.Status != engine.StatusSkipped {
						fmt.Fprintln(out, cli.FormatActionResult(r))
					}
				}
			}
			fmt.Fprintln(out, cli.FormatSweepSummary(result))

			return sweepError(result)
		},
	}

	cmd.Flags().StringVar(&at, "now", "", "Process as if the current time were this instant")
	cmd.Flags().BoolVar(&checkpoint, "checkpoint", false, "Create an automatic checkpoint before running")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the summary")

	return cmd
}

func sweep(ctx context.Context, processor *engine.Processor, now time.Time, actions []*model.ScheduledAction, progressOut io.Writer, quiet bool) engine.SweepResult {
	if !quiet && len(actions) > 0 {
		progress := cli.NewSweepProgress(progressOut, len(actions))
		processor.SetObserver(progress)
		defer progress.Finish()
	}
	return processor.Process(ctx, now, actions)
}

// sweepError fails the run only for storage failures.
func sweepError(result engine.SweepResult) error {
	for _, r := range result.Failed() {
		if errors.Is(r.Err, common.ErrStorage) {
			return fmt.Errorf("%w: action %s: %w", errSweepStorage, r.ScheduledActionUID, r.Err)
		}
	}
	return nil
}

func autoCheckpoint(ctx context.Context, store *storage.SQLiteStorage) error {
	if store.Path() == ":memory:" {
		slog.Warn("Skipping checkpoint for in-memory database")
		return nil
	}
	manager, err := store.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	info, err := manager.AutoCheckpoint(ctx, "schedule-run")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	slog.Info("Created checkpoint before schedule run", "id", info.ID)
	return nil
}
