package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoRecurrence is returned when a scheduled action has no recurrence.
var ErrNoRecurrence = errors.New("scheduled action has no recurrence")

// ActionType is the kind of work a scheduled action performs.
type ActionType string

// Action types.
const (
	ActionTransaction ActionType = "TRANSACTION"
	ActionBackup      ActionType = "BACKUP"
)

// ParseActionType parses "TRANSACTION" or "BACKUP".
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionTransaction, ActionBackup:
		return ActionType(s), nil
	default:
		return "", fmt.Errorf("unknown action type %q", s)
	}
}

// ScheduledAction is a recurring rule plus its execution bookkeeping. The
// start and end times live only on the owned recurrence.
type ScheduledAction struct {
	LastRun            time.Time // zero until the first execution
	CreatedAt          time.Time
	ModifiedAt         time.Time
	recurrence         *Recurrence
	UID                string
	ActionUID          string // template transaction for TRANSACTION actions
	TemplateAccountUID string
	Tag                string // encoded export parameters for BACKUP actions
	ActionType         ActionType
	TotalFrequency     int
	ExecutionCount     int
	AdvanceCreateDays  int
	AdvanceNotifyDays  int
	Enabled            bool
	AutoCreate         bool
	AutoNotify         bool
}

// NewScheduledAction creates an enabled action owning recurrence.
func NewScheduledAction(actionType ActionType, recurrence *Recurrence) (*ScheduledAction, error) {
	if recurrence == nil {
		return nil, ErrNoRecurrence
	}
	now := time.Now().UTC()
	return &ScheduledAction{
		UID:        NewUID(),
		ActionType: actionType,
		recurrence: recurrence,
		Enabled:    true,
		AutoCreate: true,
		CreatedAt:  now,
		ModifiedAt: now,
	}, nil
}

// Recurrence returns the owned recurrence.
func (a *ScheduledAction) Recurrence() *Recurrence {
	return a.recurrence
}

// SetRecurrence replaces the owned recurrence.
func (a *ScheduledAction) SetRecurrence(r *Recurrence) error {
	if r == nil {
		return ErrNoRecurrence
	}
	a.recurrence = r
	return nil
}

// StartTime returns the recurrence's period start.
func (a *ScheduledAction) StartTime() time.Time {
	if a.recurrence == nil {
		return time.Time{}
	}
	return a.recurrence.PeriodStart
}

// SetStartTime moves the recurrence's period start.
func (a *ScheduledAction) SetStartTime(t time.Time) {
	if a.recurrence != nil {
		a.recurrence.PeriodStart = t
	}
}

// EndTime returns the recurrence's period end, zero when open-ended.
func (a *ScheduledAction) EndTime() time.Time {
	if a.recurrence == nil {
		return time.Time{}
	}
	return a.recurrence.PeriodEnd
}

// SetEndTime bounds the recurrence. Pass the zero time to remove the bound.
func (a *ScheduledAction) SetEndTime(t time.Time) {
	if a.recurrence != nil {
		a.recurrence.PeriodEnd = t
	}
}

// HasRun reports whether the action has executed at least once.
func (a *ScheduledAction) HasRun() bool {
	return !a.LastRun.IsZero()
}

// HasWeekdayConstraint reports whether due times follow an explicit weekday set.
func (a *ScheduledAction) HasWeekdayConstraint() bool {
	return a.recurrence != nil && a.recurrence.HasWeekdays()
}

// IsExhausted reports whether the total frequency cap has been reached.
func (a *ScheduledAction) IsExhausted() bool {
	return a.TotalFrequency > 0 && a.ExecutionCount >= a.TotalFrequency
}

// Validate checks the action can be scheduled.
func (a *ScheduledAction) Validate() error {
	if a.recurrence == nil {
		return ErrNoRecurrence
	}
	if err := a.recurrence.Validate(); err != nil {
		return err
	}
	if a.ExecutionCount < 0 || a.TotalFrequency < 0 {
		return fmt.Errorf("%w: negative execution count or frequency", ErrInvalidRecurrence)
	}
	return nil
}

// TimeOfLastSchedule returns the due instant of the latest counted execution.
// It reports false when the action has never executed.
func (a *ScheduledAction) TimeOfLastSchedule() (time.Time, bool) {
	if a.ExecutionCount == 0 || a.recurrence == nil {
		return time.Time{}, false
	}
	return a.recurrence.Occurrence(a.ExecutionCount - 1), true
}

// ComputeNextCountBasedScheduledExecutionTime returns the due instant of the
// next execution derived from the execution count alone.
func (a *ScheduledAction) ComputeNextCountBasedScheduledExecutionTime() time.Time {
	if a.recurrence == nil {
		return time.Time{}
	}
	return a.recurrence.Occurrence(a.ExecutionCount)
}

// ComputeNextTimeBasedScheduledExecutionTime returns the first due instant
// after the last run, or the first occurrence if the action never ran.
// Without a weekday set there is no weekday walk to perform; the result is
// then a day after now so the action never looks due.
func (a *ScheduledAction) ComputeNextTimeBasedScheduledExecutionTime(now time.Time) time.Time {
	if a.recurrence == nil {
		return time.Time{}
	}
	if !a.recurrence.HasWeekdays() {
		return now.Add(day)
	}
	if !a.HasRun() {
		return a.recurrence.FirstOccurrence()
	}
	return a.recurrence.NextOccurrence(a.LastRun)
}

// NextDueTime returns the next due instant using the time-based model for
// weekday-constrained recurrences and the count-based model otherwise.
func (a *ScheduledAction) NextDueTime() time.Time {
	if a.HasWeekdayConstraint() {
		if !a.HasRun() {
			return a.recurrence.FirstOccurrence()
		}
		return a.recurrence.NextOccurrence(a.LastRun)
	}
	return a.ComputeNextCountBasedScheduledExecutionTime()
}

// RuleString renders the schedule as an RRULE, bounded by UNTIL or COUNT.
func (a *ScheduledAction) RuleString() string {
	if a.recurrence == nil {
		return ""
	}
	rule := a.recurrence.RuleString()
	switch {
	case a.recurrence.HasPeriodEnd():
		rule += ";UNTIL=" + a.recurrence.PeriodEnd.UTC().Format(untilLayout)
	case a.TotalFrequency > 0:
		rule += fmt.Sprintf(";COUNT=%d", a.TotalFrequency)
	}
	return rule
}

// RepeatString describes the schedule for people.
func (a *ScheduledAction) RepeatString() string {
	if a.recurrence == nil {
		return ""
	}
	s := a.recurrence.RepeatString()
	if !a.recurrence.HasPeriodEnd() && a.TotalFrequency > 0 {
		s += fmt.Sprintf(", %d times", a.TotalFrequency)
	}
	return s
}

func (a *ScheduledAction) String() string {
	return fmt.Sprintf("%s %s (%s, %d run)", a.ActionType, a.UID, a.RepeatString(), a.ExecutionCount)
}
