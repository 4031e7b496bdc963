package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidRecurrence is returned for recurrences that cannot produce a schedule.
var ErrInvalidRecurrence = errors.New("invalid recurrence")

// PeriodType is the base unit a recurrence repeats in.
type PeriodType string

// Period types.
const (
	Day   PeriodType = "DAY"
	Week  PeriodType = "WEEK"
	Month PeriodType = "MONTH"
	Year  PeriodType = "YEAR"
)

const day = 24 * time.Hour

// ParsePeriodType parses a period name such as "week", case-insensitively.
func ParsePeriodType(s string) (PeriodType, error) {
	pt := PeriodType(strings.ToUpper(strings.TrimSpace(s)))
	switch pt {
	case Day, Week, Month, Year:
		return pt, nil
	default:
		return "", fmt.Errorf("%w: unknown period type %q", ErrInvalidRecurrence, s)
	}
}

// Recurrence describes a repeating grid of due instants starting at
// PeriodStart. Days and weeks step by fixed durations; months and years step
// by calendar fields, clamping to the end of shorter months.
type Recurrence struct {
	PeriodStart time.Time
	PeriodEnd   time.Time // zero when open-ended
	UID         string
	PeriodType  PeriodType
	byDays      []time.Weekday
	Multiplier  int
}

// NewRecurrence creates a recurrence repeating every period starting now.
func NewRecurrence(periodType PeriodType) *Recurrence {
	return &Recurrence{
		UID:         NewUID(),
		PeriodType:  periodType,
		Multiplier:  1,
		PeriodStart: time.Now().UTC().Truncate(time.Second),
	}
}

// Validate checks the recurrence can be scheduled.
func (r *Recurrence) Validate() error {
	switch r.PeriodType {
	case Day, Week, Month, Year:
	default:
		return fmt.Errorf("%w: unknown period type %q", ErrInvalidRecurrence, r.PeriodType)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be positive, got %d", ErrInvalidRecurrence, r.Multiplier)
	}
	if r.PeriodStart.IsZero() {
		return fmt.Errorf("%w: missing period start", ErrInvalidRecurrence)
	}
	if r.HasPeriodEnd() && r.PeriodEnd.Before(r.PeriodStart) {
		return fmt.Errorf("%w: period end %s before start %s",
			ErrInvalidRecurrence, r.PeriodEnd.Format(time.RFC3339), r.PeriodStart.Format(time.RFC3339))
	}
	return nil
}

// HasPeriodEnd reports whether the recurrence is bounded.
func (r *Recurrence) HasPeriodEnd() bool {
	return !r.PeriodEnd.IsZero()
}

// ByDays returns the weekday set, Monday first.
func (r *Recurrence) ByDays() []time.Weekday {
	out := make([]time.Weekday, len(r.byDays))
	copy(out, r.byDays)
	return out
}

// SetByDays replaces the weekday set. Duplicates are dropped.
func (r *Recurrence) SetByDays(days []time.Weekday) {
	seen := make(map[time.Weekday]bool, len(days))
	r.byDays = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		r.byDays = append(r.byDays, d)
	}
	sort.Slice(r.byDays, func(i, j int) bool {
		return isoOffset(r.byDays[i]) < isoOffset(r.byDays[j])
	})
}

// HasWeekdays reports whether a weekday set constrains a weekly recurrence.
func (r *Recurrence) HasWeekdays() bool {
	return r.PeriodType == Week && len(r.byDays) > 0
}

// PeriodLength returns the fixed length of one period. Months and years have
// no fixed length and report false.
func (r *Recurrence) PeriodLength() (time.Duration, bool) {
	switch r.PeriodType {
	case Day:
		return time.Duration(r.Multiplier) * day, true
	case Week:
		return time.Duration(r.Multiplier) * 7 * day, true
	default:
		return 0, false
	}
}

// AddPeriods steps t forward by n periods.
func (r *Recurrence) AddPeriods(t time.Time, n int) time.Time {
	switch r.PeriodType {
	case Month:
		return addMonths(t, n*r.Multiplier)
	case Year:
		return addMonths(t, 12*n*r.Multiplier)
	default:
		length, _ := r.PeriodLength()
		return t.Add(time.Duration(n) * length)
	}
}

// NumberOfPeriodsSince returns how many complete periods lie between
// PeriodStart and t.
func (r *Recurrence) NumberOfPeriodsSince(t time.Time) int {
	if !t.After(r.PeriodStart) {
		return 0
	}
	if length, ok := r.PeriodLength(); ok {
		return int(t.Sub(r.PeriodStart) / length)
	}

	months := r.Multiplier
	if r.PeriodType == Year {
		months *= 12
	}
	sy, sm, _ := r.PeriodStart.Date()
	ty, tm, _ := t.In(r.PeriodStart.Location()).Date()
	n := ((ty-sy)*12 + int(tm-sm)) / months
	for n > 0 && r.AddPeriods(r.PeriodStart, n).After(t) {
		n--
	}
	for !r.AddPeriods(r.PeriodStart, n+1).After(t) {
		n++
	}
	return n
}

// Occurrence returns the k-th due instant, counting from zero.
func (r *Recurrence) Occurrence(k int) time.Time {
	if !r.HasWeekdays() {
		return r.AddPeriods(r.PeriodStart, k)
	}
	first := r.weekdaysInFirstPeriod()
	if k < len(first) {
		return first[k]
	}
	k -= len(first)
	period := 1 + k/len(r.byDays)
	return r.weekdayInstant(period, r.byDays[k%len(r.byDays)])
}

// FirstOccurrence returns the earliest due instant.
func (r *Recurrence) FirstOccurrence() time.Time {
	return r.Occurrence(0)
}

// NextOccurrence returns the earliest due instant strictly after t.
func (r *Recurrence) NextOccurrence(after time.Time) time.Time {
	if after.Before(r.PeriodStart) {
		return r.FirstOccurrence()
	}
	if !r.HasWeekdays() {
		return r.AddPeriods(r.PeriodStart, r.NumberOfPeriodsSince(after)+1)
	}

	period := r.periodIndex(after)
	for p := period; ; p++ {
		for _, d := range r.byDays {
			candidate := r.weekdayInstant(p, d)
			if !candidate.Before(r.PeriodStart) && candidate.After(after) {
				return candidate
			}
		}
	}
}

// LatestOccurrence returns the latest due instant at or before t. It reports
// false when t precedes the first occurrence.
func (r *Recurrence) LatestOccurrence(t time.Time) (time.Time, bool) {
	if t.Before(r.FirstOccurrence()) {
		return time.Time{}, false
	}
	if !r.HasWeekdays() {
		return r.AddPeriods(r.PeriodStart, r.NumberOfPeriodsSince(t)), true
	}

	for p := r.periodIndex(t); p >= 0; p-- {
		for i := len(r.byDays) - 1; i >= 0; i-- {
			candidate := r.weekdayInstant(p, r.byDays[i])
			if !candidate.After(t) && !candidate.Before(r.PeriodStart) {
				return candidate, true
			}
		}
	}
	return time.Time{}, false
}

// Count returns the number of occurrences between start and end inclusive,
// or -1 for an open-ended recurrence.
func (r *Recurrence) Count() int {
	if !r.HasPeriodEnd() {
		return -1
	}
	count := 0
	for next := r.FirstOccurrence(); !next.After(r.PeriodEnd); next = r.Occurrence(count) {
		count++
	}
	return count
}

// SetPeriodEndAfter bounds the recurrence to its first n occurrences. A
// non-positive n makes it open-ended.
func (r *Recurrence) SetPeriodEndAfter(n int) {
	if n <= 0 {
		r.PeriodEnd = time.Time{}
		return
	}
	r.PeriodEnd = r.Occurrence(n - 1)
}

// RuleString renders the recurrence as an iCalendar RRULE fragment.
func (r *Recurrence) RuleString() string {
	parts := []string{
		"FREQ=" + frequencyNames[r.PeriodType],
		fmt.Sprintf("INTERVAL=%d", r.Multiplier),
	}
	if r.HasWeekdays() {
		days := make([]string, 0, len(r.byDays))
		for _, d := range r.byDays {
			days = append(days, weekdayCodes[d])
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	return strings.Join(parts, ";")
}

// RepeatString describes the recurrence for people, e.g.
// "Every 2 weeks on Monday, Thursday until 2016-09-12".
func (r *Recurrence) RepeatString() string {
	var b strings.Builder
	unit := strings.ToLower(string(r.PeriodType))
	if r.Multiplier == 1 {
		b.WriteString("Every " + unit)
	} else {
		fmt.Fprintf(&b, "Every %d %ss", r.Multiplier, unit)
	}
	if r.HasWeekdays() {
		names := make([]string, 0, len(r.byDays))
		for _, d := range r.byDays {
			names = append(names, d.String())
		}
		b.WriteString(" on " + strings.Join(names, ", "))
	}
	if r.HasPeriodEnd() {
		b.WriteString(" until " + r.PeriodEnd.Format(time.DateOnly))
	}
	return b.String()
}

// weekStart is the Monday of PeriodStart's week at the start's clock time.
func (r *Recurrence) weekStart() time.Time {
	return r.PeriodStart.Add(-time.Duration(isoOffset(r.PeriodStart.Weekday())) * day)
}

func (r *Recurrence) weekdayInstant(period int, d time.Weekday) time.Time {
	length, _ := r.PeriodLength()
	return r.weekStart().Add(time.Duration(period)*length + time.Duration(isoOffset(d))*day)
}

func (r *Recurrence) periodIndex(t time.Time) int {
	length, _ := r.PeriodLength()
	elapsed := t.Sub(r.weekStart())
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / length)
}

func (r *Recurrence) weekdaysInFirstPeriod() []time.Time {
	out := make([]time.Time, 0, len(r.byDays))
	for _, d := range r.byDays {
		candidate := r.weekdayInstant(0, d)
		if !candidate.Before(r.PeriodStart) {
			out = append(out, candidate)
		}
	}
	return out
}

// isoOffset maps Monday to 0 through Sunday to 6.
func isoOffset(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	year := y + total/12
	month := total % 12
	if month < 0 {
		month += 12
		year--
	}
	target := time.Month(month + 1)
	if last := daysIn(year, target); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(year, target, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
