package timespec

import (
	"fmt"
	"time"
)

// Parse parses a time specification into a Unix timestamp (milliseconds).
// Supports two formats:
//   - Go duration format: "1h", "30m", "1h30m", "48h"
//   - RFC3339 timestamps: "2026-09-01T13:00:00+08:00"
//
// Duration specifications are relative to the current time, added to now:
// due dates live in the future, so "24h" means "24 hours from now".
//
// Returns Unix timestamp in milliseconds.
func Parse(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	// Try parsing as RFC3339 first
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	// Try parsing as Go duration
	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use duration like '48h' or RFC3339 like '2026-09-01T13:00:00+08:00')", spec)
}

// ParseRange parses --from and --to flags into a due window.
// Returns (fromMs, toMs, error). Zero values indicate "no bound" for that
// end of the range.
//
// Validates that from < to if both are specified.
func ParseRange(from, to string, now time.Time) (int64, int64, error) {
	var fromMS, toMS int64
	var err error

	if from != "" {
		fromMS, err = Parse(from, now)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --from: %w", err)
		}
	}

	if to != "" {
		toMS, err = Parse(to, now)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --to: %w", err)
		}
	}

	// Validate range
	if fromMS > 0 && toMS > 0 && fromMS >= toMS {
		return 0, 0, fmt.Errorf("--from must be before --to")
	}

	return fromMS, toMS, nil
}
