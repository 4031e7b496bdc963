package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, d, hour int) time.Time {
	return time.Date(year, month, d, hour, 0, 0, 0, time.UTC)
}

func weekly(start time.Time, multiplier int, days ...time.Weekday) *Recurrence {
	r := NewRecurrence(Week)
	r.PeriodStart = start
	r.Multiplier = multiplier
	r.SetByDays(days)
	return r
}

func TestRecurrencePeriodLength(t *testing.T) {
	r := NewRecurrence(Day)
	r.Multiplier = 3
	length, ok := r.PeriodLength()
	assert.True(t, ok)
	assert.Equal(t, 72*time.Hour, length)

	r.PeriodType = Week
	length, ok = r.PeriodLength()
	assert.True(t, ok)
	assert.Equal(t, 21*24*time.Hour, length)

	r.PeriodType = Month
	_, ok = r.PeriodLength()
	assert.False(t, ok)
}

func TestRecurrenceMonthStepsClampToMonthEnd(t *testing.T) {
	r := NewRecurrence(Month)
	r.PeriodStart = date(2016, time.January, 31, 10)

	assert.Equal(t, date(2016, time.February, 29, 10), r.Occurrence(1))
	assert.Equal(t, date(2016, time.March, 31, 10), r.Occurrence(2))
	assert.Equal(t, date(2016, time.April, 30, 10), r.Occurrence(3))

	latest, ok := r.LatestOccurrence(date(2016, time.March, 15, 0))
	require.True(t, ok)
	assert.Equal(t, date(2016, time.February, 29, 10), latest)

	assert.Equal(t, date(2016, time.March, 31, 10), r.NextOccurrence(date(2016, time.February, 29, 10)))

	yearly := NewRecurrence(Year)
	yearly.PeriodStart = date(2016, time.February, 29, 8)
	assert.Equal(t, date(2017, time.February, 28, 8), yearly.Occurrence(1))
	assert.Equal(t, date(2020, time.February, 29, 8), yearly.Occurrence(4))
}

func TestRecurrenceNumberOfPeriodsSince(t *testing.T) {
	daily := NewRecurrence(Day)
	daily.PeriodStart = date(2016, time.June, 6, 9)
	assert.Equal(t, 0, daily.NumberOfPeriodsSince(date(2016, time.June, 1, 0)))
	assert.Equal(t, 2, daily.NumberOfPeriodsSince(date(2016, time.June, 9, 8)))
	assert.Equal(t, 3, daily.NumberOfPeriodsSince(date(2016, time.June, 9, 9)))

	monthly := NewRecurrence(Month)
	monthly.Multiplier = 2
	monthly.PeriodStart = date(2015, time.August, 15, 12)
	assert.Equal(t, 2, monthly.NumberOfPeriodsSince(date(2016, time.February, 15, 11)))
	assert.Equal(t, 3, monthly.NumberOfPeriodsSince(date(2016, time.February, 15, 12)))
}

func TestRecurrenceNextOccurrenceWithoutWeekdays(t *testing.T) {
	r := weekly(date(2016, time.June, 6, 9), 2)

	assert.Equal(t, date(2016, time.June, 6, 9), r.NextOccurrence(date(2016, time.January, 1, 0)))
	assert.Equal(t, date(2016, time.June, 20, 9), r.NextOccurrence(date(2016, time.June, 6, 9)))
	assert.Equal(t, date(2016, time.July, 4, 9), r.NextOccurrence(date(2016, time.June, 25, 0)))
	assert.Equal(t, date(2016, time.July, 4, 9), r.Occurrence(2))
}

func TestRecurrenceMultipleWeekdaysSameWeek(t *testing.T) {
	r := weekly(date(2016, time.June, 6, 9), 1, time.Thursday, time.Monday)

	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, r.ByDays())
	assert.Equal(t, date(2017, time.April, 20, 9), r.NextOccurrence(date(2017, time.April, 17, 9)))
	assert.Equal(t, date(2017, time.April, 24, 9), r.NextOccurrence(date(2017, time.April, 20, 9)))
}

func TestRecurrenceWeekdaysWithMultiplier(t *testing.T) {
	r := weekly(date(2016, time.June, 6, 9), 2, time.Wednesday)

	next := r.NextOccurrence(date(2017, time.April, 12, 9))
	assert.Equal(t, date(2017, time.April, 26, 9), next)
	assert.Equal(t, 14*24*time.Hour, next.Sub(date(2017, time.April, 12, 9)))
}

func TestRecurrenceWeekdaysBeforeStartAreSkipped(t *testing.T) {
	r := weekly(date(2016, time.June, 8, 9), 1, time.Monday, time.Thursday)

	assert.Equal(t, date(2016, time.June, 9, 9), r.FirstOccurrence())
	assert.Equal(t, date(2016, time.June, 13, 9), r.Occurrence(1))
	assert.Equal(t, date(2016, time.June, 16, 9), r.Occurrence(2))
	assert.Equal(t, date(2016, time.June, 9, 9), r.NextOccurrence(date(2016, time.June, 6, 0)))

	_, ok := r.LatestOccurrence(date(2016, time.June, 8, 12))
	assert.False(t, ok)

	latest, ok := r.LatestOccurrence(date(2016, time.June, 15, 12))
	require.True(t, ok)
	assert.Equal(t, date(2016, time.June, 13, 9), latest)
}

func TestRecurrenceCount(t *testing.T) {
	r := weekly(date(2016, time.June, 6, 9), 2)
	assert.Equal(t, -1, r.Count())

	r.PeriodEnd = date(2016, time.September, 12, 8)
	assert.Equal(t, 7, r.Count())

	r.SetPeriodEndAfter(3)
	assert.Equal(t, date(2016, time.July, 4, 9), r.PeriodEnd)
	assert.Equal(t, 3, r.Count())

	r.SetPeriodEndAfter(0)
	assert.False(t, r.HasPeriodEnd())
}

func TestRecurrenceValidate(t *testing.T) {
	tests := []struct {
		mutate func(r *Recurrence)
		name   string
		valid  bool
	}{
		{name: "valid", mutate: func(*Recurrence) {}, valid: true},
		{name: "zero multiplier", mutate: func(r *Recurrence) { r.Multiplier = 0 }},
		{name: "unknown period", mutate: func(r *Recurrence) { r.PeriodType = "HOUR" }},
		{name: "missing start", mutate: func(r *Recurrence) { r.PeriodStart = time.Time{} }},
		{name: "end before start", mutate: func(r *Recurrence) { r.PeriodEnd = r.PeriodStart.Add(-time.Hour) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecurrence(Month)
			tt.mutate(r)
			err := r.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRecurrence)
			}
		})
	}
}

func TestRecurrenceStrings(t *testing.T) {
	r := weekly(date(2016, time.June, 6, 9), 2, time.Monday, time.Thursday)
	r.PeriodEnd = date(2016, time.September, 12, 8)

	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH", r.RuleString())
	assert.Equal(t, "Every 2 weeks on Monday, Thursday until 2016-09-12", r.RepeatString())

	monthly := NewRecurrence(Month)
	assert.Equal(t, "FREQ=MONTHLY;INTERVAL=1", monthly.RuleString())
	assert.Equal(t, "Every month", monthly.RepeatString())
}

func TestParsePeriodType(t *testing.T) {
	for _, in := range []string{"day", "Week", " MONTH ", "year"} {
		pt, err := ParsePeriodType(in)
		require.NoError(t, err, in)
		assert.NoError(t, (&Recurrence{PeriodType: pt, Multiplier: 1, PeriodStart: date(2024, time.January, 1, 0)}).Validate())
	}

	_, err := ParsePeriodType("fortnight")
	assert.ErrorIs(t, err, ErrInvalidRecurrence)
}
