package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	rule, err := ParseRule("FREQ=WEEKLY;INTERVAL=2;BYDAY=TH,MO;UNTIL=20160912T080000Z")
	require.NoError(t, err)

	assert.Equal(t, Week, rule.PeriodType)
	assert.Equal(t, 2, rule.Interval)
	assert.Equal(t, date(2016, time.September, 12, 8), rule.Until)

	r := rule.Recurrence(date(2016, time.June, 6, 9))
	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, r.ByDays())
	assert.Equal(t, 2, r.Multiplier)
	assert.Equal(t, rule.Until, r.PeriodEnd)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH", r.RuleString())

	counted, err := ParseRule("freq=monthly;count=12")
	require.NoError(t, err)
	assert.Equal(t, Month, counted.PeriodType)
	assert.Equal(t, 1, counted.Interval)
	assert.Equal(t, 12, counted.Count)
}

func TestParseRuleErrors(t *testing.T) {
	for _, rule := range []string{
		"",
		"INTERVAL=2",
		"FREQ=HOURLY",
		"FREQ=DAILY;INTERVAL=0",
		"FREQ=DAILY;BYDAY=MO",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=WEEKLY;UNTIL=tomorrow",
		"FREQ=WEEKLY;BYSETPOS=1",
		"FREQ",
	} {
		t.Run(rule, func(t *testing.T) {
			_, err := ParseRule(rule)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}
