package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRule is returned for recurrence rules that cannot be parsed.
var ErrInvalidRule = errors.New("invalid recurrence rule")

const untilLayout = "20060102T150405Z"

var frequencyNames = map[PeriodType]string{
	Day:   "DAILY",
	Week:  "WEEKLY",
	Month: "MONTHLY",
	Year:  "YEARLY",
}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// Rule is a parsed RRULE subset: FREQ, INTERVAL, BYDAY, COUNT and UNTIL.
type Rule struct {
	Until      time.Time
	PeriodType PeriodType
	ByDays     []time.Weekday
	Interval   int
	Count      int
}

// ParseRule parses strings such as "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH;COUNT=5".
func ParseRule(rule string) (Rule, error) {
	parsed := Rule{Interval: 1}
	for _, part := range strings.Split(strings.TrimSpace(rule), ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("%w: malformed part %q", ErrInvalidRule, part)
		}
		switch strings.ToUpper(key) {
		case "FREQ":
			periodType, err := periodTypeForFrequency(value)
			if err != nil {
				return Rule{}, err
			}
			parsed.PeriodType = periodType
		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("%w: interval %q", ErrInvalidRule, value)
			}
			parsed.Interval = n
		case "BYDAY":
			days, err := parseWeekdays(value)
			if err != nil {
				return Rule{}, err
			}
			parsed.ByDays = days
		case "COUNT":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return Rule{}, fmt.Errorf("%w: count %q", ErrInvalidRule, value)
			}
			parsed.Count = n
		case "UNTIL":
			until, err := time.Parse(untilLayout, value)
			if err != nil {
				return Rule{}, fmt.Errorf("%w: until %q: %w", ErrInvalidRule, value, err)
			}
			parsed.Until = until
		default:
			return Rule{}, fmt.Errorf("%w: unsupported part %q", ErrInvalidRule, key)
		}
	}
	if parsed.PeriodType == "" {
		return Rule{}, fmt.Errorf("%w: missing FREQ", ErrInvalidRule)
	}
	if len(parsed.ByDays) > 0 && parsed.PeriodType != Week {
		return Rule{}, fmt.Errorf("%w: BYDAY requires FREQ=WEEKLY", ErrInvalidRule)
	}
	return parsed, nil
}

// Recurrence builds a recurrence for the rule starting at start.
func (r Rule) Recurrence(start time.Time) *Recurrence {
	rec := NewRecurrence(r.PeriodType)
	rec.Multiplier = r.Interval
	rec.PeriodStart = start
	rec.PeriodEnd = r.Until
	rec.SetByDays(r.ByDays)
	return rec
}

func periodTypeForFrequency(freq string) (PeriodType, error) {
	for periodType, name := range frequencyNames {
		if strings.EqualFold(name, freq) {
			return periodType, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported frequency %q", ErrInvalidRule, freq)
}

func parseWeekdays(value string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, code := range strings.Split(value, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		found := false
		for d, c := range weekdayCodes {
			if c == code {
				days = append(days, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, code)
		}
	}
	return days, nil
}
