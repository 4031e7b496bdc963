package testutil

import (
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// Account UIDs used by the fixtures.
const (
	ExpensesAccount = "expenses"
	CheckingAccount = "checking"
)

// NewTemplate builds a balanced template moving amount USD from checking
// to expenses.
func NewTemplate(t *testing.T, description, amount string) *model.Transaction {
	t.Helper()
	value, err := model.ParseMoney(amount, "USD")
	if err != nil {
		t.Fatalf("invalid fixture amount %q: %v", amount, err)
	}

	tmpl := model.NewTransaction(description)
	tmpl.IsTemplate = true
	debit := model.NewSplit(value, ExpensesAccount)
	debit.Type = model.Debit
	debit.Memo = description
	tmpl.AddSplit(debit)
	tmpl.AddSplit(debit.CreatePair(CheckingAccount))
	return tmpl
}

// ActionBuilder assembles scheduled actions for tests.
type ActionBuilder struct {
	t          *testing.T
	recurrence *model.Recurrence
	action     model.ScheduledAction
}

// NewActionBuilder starts a weekly action beginning at start.
func NewActionBuilder(t *testing.T, actionType model.ActionType, start time.Time) *ActionBuilder {
	t.Helper()
	rec := model.NewRecurrence(model.Week)
	rec.PeriodStart = start
	return &ActionBuilder{
		t:          t,
		recurrence: rec,
		action: model.ScheduledAction{
			ActionType: actionType,
			Enabled:    true,
			AutoCreate: true,
		},
	}
}

// Every sets the period type and multiplier.
func (b *ActionBuilder) Every(multiplier int, periodType model.PeriodType) *ActionBuilder {
	b.recurrence.Multiplier = multiplier
	b.recurrence.PeriodType = periodType
	return b
}

// On restricts a weekly recurrence to the given weekdays.
func (b *ActionBuilder) On(days ...time.Weekday) *ActionBuilder {
	b.recurrence.SetByDays(days)
	return b
}

// Until bounds the recurrence.
func (b *ActionBuilder) Until(end time.Time) *ActionBuilder {
	b.recurrence.PeriodEnd = end
	return b
}

// Times limits the number of executions.
func (b *ActionBuilder) Times(n int) *ActionBuilder {
	b.action.TotalFrequency = n
	return b
}

// From binds a template transaction.
func (b *ActionBuilder) From(template *model.Transaction) *ActionBuilder {
	b.action.ActionUID = template.UID()
	return b
}

// Tagged sets the action tag.
func (b *ActionBuilder) Tagged(tag string) *ActionBuilder {
	b.action.Tag = tag
	return b
}

// Disabled turns the action off.
func (b *ActionBuilder) Disabled() *ActionBuilder {
	b.action.Enabled = false
	return b
}

// LastRun records a previous run.
func (b *ActionBuilder) LastRun(at time.Time) *ActionBuilder {
	b.action.LastRun = at
	return b
}

// Build returns the action.
func (b *ActionBuilder) Build() *model.ScheduledAction {
	b.t.Helper()
	action, err := model.NewScheduledAction(b.action.ActionType, b.recurrence)
	if err != nil {
		b.t.Fatalf("failed to build scheduled action: %v", err)
	}
	action.ActionUID = b.action.ActionUID
	action.Tag = b.action.Tag
	action.TotalFrequency = b.action.TotalFrequency
	action.Enabled = b.action.Enabled
	action.AutoCreate = b.action.AutoCreate
	action.LastRun = b.action.LastRun
	if err := action.Validate(); err != nil {
		b.t.Fatalf("invalid scheduled action: %v", err)
	}
	return action
}
