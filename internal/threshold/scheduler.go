// Package threshold plans and maintains the usage-threshold registrations
// the OS monitor fires callbacks for. The OS only accepts a bounded set
// of thresholds, so the plan is a sliding window of upcoming marks ahead
// of the current cumulative usage, re-registered as usage advances or the
// limit changes.
package threshold

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/breezelab/gust/internal/platform"
)

// Plan computes the thresholds to register: the next max multiples of
// step strictly above cumulative, plus the limit itself so the crossing
// that engages the shield always fires exactly at the limit. A
// non-positive limit yields no plan.
func Plan(cumulative, limitSeconds int64, step time.Duration, max int) []int64 {
	if limitSeconds <= 0 || max <= 0 {
		return nil
	}

	stepSec := int64(step / time.Second)
	if stepSec <= 0 {
		stepSec = 300
	}

	marks := make(map[int64]bool)
	next := (cumulative/stepSec + 1) * stepSec
	for i := 0; i < max; i++ {
		marks[next+int64(i)*stepSec] = true
	}
	if limitSeconds > cumulative {
		marks[limitSeconds] = true
	}

	out := make([]int64, 0, len(marks))
	for m := range marks {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if len(out) > max {
		// Keep the near edge of the window; far marks get registered on
		// a later reconcile once usage catches up.
		out = out[:max]
	}
	return out
}

// Scheduler keeps the OS registration set aligned with the plan.
type Scheduler struct {
	monitor platform.Monitor
	step    time.Duration
	max     int
	logger  zerolog.Logger
}

// NewScheduler creates a scheduler over the given monitor.
func NewScheduler(monitor platform.Monitor, step time.Duration, max int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		monitor: monitor,
		step:    step,
		max:     max,
		logger:  logger.With().Str("component", "threshold").Logger(),
	}
}

// Reconcile recomputes the plan and re-registers only when the OS set
// differs. Re-registering an unchanged set would reset the OS delivery
// state and replay crossings, so an exact match is left alone.
func (s *Scheduler) Reconcile(ctx context.Context, cumulative, limitSeconds int64) error {
	want := Plan(cumulative, limitSeconds, s.step, s.max)

	have, err := s.monitor.Registered(ctx)
	if err != nil {
		return fmt.Errorf("reading registered thresholds: %w", err)
	}
	if equal(want, have) {
		return nil
	}

	s.logger.Debug().
		Int64("cumulative", cumulative).
		Int64("limit", limitSeconds).
		Int("count", len(want)).
		Msg("Re-registering usage thresholds")
	if err := s.monitor.Register(ctx, want); err != nil {
		return fmt.Errorf("registering thresholds: %w", err)
	}
	return nil
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
