package clean

import (
	"crashpipe/internal/transformer/builtin"
	"crashpipe/pkg/records"
)

// IsWeekend is 1 for day-of-week codes 1 (Sunday) and 7 (Saturday), else 0.
func IsWeekend(r records.Record) any {
	d, ok := builtin.ToFloat(r["crash_day_of_week"])
	if ok && (d == 1 || d == 7) {
		return int64(1)
	}
	return int64(0)
}

// HourBin buckets crash_hour into night (0-6), morning (7-12), afternoon
// (13-18) and evening (19-23). Missing or out-of-range hours give null.
func HourBin(r records.Record) any {
	h, ok := builtin.ToFloat(r["crash_hour"])
	switch {
	case !ok, h < 0, h > 23:
		return nil
	case h <= 6:
		return "night"
	case h <= 12:
		return "morning"
	case h <= 18:
		return "afternoon"
	}
	return "evening"
}
