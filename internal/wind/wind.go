// Package wind derives the budget metric from raw stored counters. Wind is
// never stored as ground truth: every process recomputes it from the same
// durable fields, which keeps all views eventually consistent without a
// replicated authoritative value.
package wind

import (
	"time"
)

// Snapshot is the set of raw store fields wind derives from. Callers read
// the keys independently and pass them in; the calculator does no I/O.
type Snapshot struct {
	CumulativeSeconds     int64
	BreakReductionSeconds int64
	LimitSeconds          int64
}

// Value returns the wind percentage for a snapshot.
//
// A non-positive limit means "no limit configured" and yields 0, not an
// error. Reduction may transiently exceed usage right after a break; the
// effective seconds clamp at zero. Values above 100 are intentional: they
// signal "well past the limit" and feed enforcement escalation, so only
// the lower bound is clamped.
func Value(s Snapshot) float64 {
	if s.LimitSeconds <= 0 {
		return 0
	}

	effective := s.CumulativeSeconds - s.BreakReductionSeconds
	if effective < 0 {
		effective = 0
	}

	return float64(effective) / float64(s.LimitSeconds) * 100
}

// Effective returns the wind value adjusted for shield decay. While a
// shield is active, wind falls linearly with wall-clock time from two
// stored scalars (activation instant and fall rate), so any process can
// render a live countdown without timers that must survive process death.
//
// A nil activatedAt means no shield decay applies. Negative elapsed time
// (clock skew) clamps the decay term at zero rather than inflating wind.
func Effective(base float64, activatedAt *time.Time, fallRatePerSecond float64, now time.Time) float64 {
	if activatedAt == nil {
		return base
	}

	elapsed := now.Sub(*activatedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	v := base - elapsed*fallRatePerSecond
	if v < 0 {
		return 0
	}
	return v
}
