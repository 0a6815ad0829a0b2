// Package localtime funnels every local-calendar decision through one place
// so "today", "this week" and "overdue" mean the same thing in the dialog
// flows, the scheduler and the CLI. All arithmetic is done in a single fixed
// operational timezone; the server's own clock zone is never consulted.
package localtime

import (
	"fmt"
	"time"
)

// Engine performs timezone-correct date arithmetic in the operational zone.
type Engine struct {
	loc *time.Location

	// weekIncludesToday controls whether the week window starts at the
	// current instant or at the start of tomorrow.
	weekIncludesToday bool
}

// NewEngine creates an engine for the named IANA timezone.
func NewEngine(zoneName string, weekIncludesToday bool) (*Engine, error) {
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", zoneName, err)
	}
	return NewEngineIn(loc, weekIncludesToday), nil
}

// NewEngineIn creates an engine for an already-resolved location.
func NewEngineIn(loc *time.Location, weekIncludesToday bool) *Engine {
	return &Engine{loc: loc, weekIncludesToday: weekIncludesToday}
}

// Location returns the operational timezone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// DayBounds returns the first and last instants of the given instant's local
// calendar day. The decomposition uses the zone's actual rules, not a fixed
// UTC offset, so days around DST transitions keep their real length.
func (e *Engine) DayBounds(t time.Time) (start, end time.Time) {
	local := t.In(e.loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
	end = start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// Combine builds an absolute instant from a calendar day and a time of day,
// both interpreted in the operational zone. Dialogs collect the two parts in
// separate steps.
func (e *Engine) Combine(d Date, c Clock) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, e.loc)
}

// Window is an inclusive due-instant range in Unix milliseconds, shaped for
// a sorted-set range query.
type Window struct {
	FromMs int64
	ToMs   int64
}

// Contains reports whether an instant falls inside the window.
func (w Window) Contains(ms int64) bool {
	return ms >= w.FromMs && ms <= w.ToMs
}

// TodayWindow covers the whole of the current local calendar day, including
// the part already elapsed. A task due at 23:59:59 tonight is in it; one due
// at 00:00:01 tomorrow is not.
func (e *Engine) TodayWindow(now time.Time) Window {
	start, end := e.DayBounds(now)
	return Window{FromMs: start.UnixMilli(), ToMs: end.UnixMilli()}
}

// WeekWindow covers the next n local calendar days. It never reaches into
// the past: the lower bound is the current instant, or the start of tomorrow
// when the engine is configured to exclude today.
func (e *Engine) WeekWindow(now time.Time, days int) Window {
	from := now.UnixMilli()
	if !e.weekIncludesToday {
		start, _ := e.DayBounds(now)
		from = start.AddDate(0, 0, 1).UnixMilli()
	}
	_, end := e.DayBounds(now.In(e.loc).AddDate(0, 0, days))
	return Window{FromMs: from, ToMs: end.UnixMilli()}
}

// OverdueWindow covers everything strictly before the start of the current
// local day. A task due earlier today is not overdue, it is simply due today.
func (e *Engine) OverdueWindow(now time.Time) Window {
	start, _ := e.DayBounds(now)
	return Window{FromMs: 1, ToMs: start.UnixMilli() - 1}
}

// UpcomingWindow covers everything from the current instant through the end
// of the local day n days out.
func (e *Engine) UpcomingWindow(now time.Time, days int) Window {
	_, end := e.DayBounds(now.In(e.loc).AddDate(0, 0, days))
	return Window{FromMs: now.UnixMilli(), ToMs: end.UnixMilli()}
}

// IsOverdue reports whether a due instant fell before the start of the
// current local day.
func (e *Engine) IsOverdue(dueMs int64, now time.Time) bool {
	return e.OverdueWindow(now).Contains(dueMs)
}

// IsToday reports whether a due instant falls on the current local day.
func (e *Engine) IsToday(dueMs int64, now time.Time) bool {
	return e.TodayWindow(now).Contains(dueMs)
}

// FormatDue renders a due instant for user-facing messages, in the
// operational zone.
func (e *Engine) FormatDue(dueMs int64) string {
	return time.UnixMilli(dueMs).In(e.loc).Format("Monday, Jan 2 at 3:04 PM")
}
