package localtime

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar day in the operational zone, with no time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Clock is a time of day in the operational zone, with no calendar day.
type Clock struct {
	Hour   int
	Minute int
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Non-padded layout verbs accept one or two digits, so "1/2/2026" and
// "01/02/2026" both parse.
var dateLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"1/2/06",
	"2006-1-2",
}

var clockLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"15:04",
	"3 PM",
	"3PM",
	"15",
}

// ParseDate interprets dialog input as a calendar day. Relative terms
// ("today", "tomorrow", "next week", weekday names) are resolved against the
// given instant in the operational zone; a named weekday always means the
// next occurrence, so "monday" said on a Monday means a week out.
func (e *Engine) ParseDate(input string, now time.Time) (Date, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	local := now.In(e.loc)

	switch s {
	case "today", "tonight":
		return dateOf(local), nil
	case "tomorrow":
		return dateOf(local.AddDate(0, 0, 1)), nil
	case "next week":
		return dateOf(local.AddDate(0, 0, 7)), nil
	}

	if target, ok := weekdays[s]; ok {
		ahead := (int(target) - int(local.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return dateOf(local.AddDate(0, 0, ahead)), nil
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.ParseInLocation(layout, s, e.loc); err == nil {
			return dateOf(parsed), nil
		}
	}

	return Date{}, fmt.Errorf("unrecognized date %q", strings.TrimSpace(input))
}

// ParseClock interprets dialog input as a time of day. Accepts 12-hour and
// 24-hour forms plus the anchors "noon" and "midnight". A deadline "at
// midnight" means the end of the day it was given for, so midnight maps to
// 23:59 rather than 00:00 of the same date.
func (e *Engine) ParseClock(input string) (Clock, error) {
	s := strings.ToUpper(strings.TrimSpace(input))

	switch s {
	case "NOON":
		return Clock{Hour: 12}, nil
	case "MIDNIGHT":
		return Clock{Hour: 23, Minute: 59}, nil
	}

	for _, layout := range clockLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return Clock{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
		}
	}

	return Clock{}, fmt.Errorf("unrecognized time %q", strings.TrimSpace(input))
}

func dateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}
