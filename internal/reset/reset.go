// Package reset owns the day boundary: stamping which day the stored
// counters belong to and zeroing them when the stamp goes stale. The
// boundary is checked on wake points rather than fired by a timer alone,
// so a machine asleep at midnight still resets on first use.
package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/breezelab/gust/internal/metrics"
	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/shield"
	"github.com/breezelab/gust/internal/storage"
	"github.com/breezelab/gust/internal/threshold"
)

// DayStamp returns the logical day a given instant belongs to, as
// "2006-01-02". The day rolls over at resetTime ("HH:MM" local), not
// necessarily midnight, so an instant before today's reset time still
// belongs to the previous logical day.
func DayStamp(now time.Time, resetTime string) string {
	t, err := time.Parse("15:04", resetTime)
	if err != nil {
		t, _ = time.Parse("15:04", "00:00")
	}

	boundary := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if now.Before(boundary) {
		return now.AddDate(0, 0, -1).Format("2006-01-02")
	}
	return now.Format("2006-01-02")
}

// Reconciler compares the stored day stamp against the clock and resets
// the day's state when they disagree.
type Reconciler struct {
	state     storage.StateStore
	signals   storage.SignalBus
	scheduler *threshold.Scheduler
	clock     platform.Clock
	resetTime string
	logger    zerolog.Logger

	// OnReset, when set, runs after a successful boundary reset. The
	// monitor daemon uses it to zero its usage feed, which counts from
	// the day boundary just like the stored counters.
	OnReset func()
}

// NewReconciler creates a day-boundary reconciler.
func NewReconciler(state storage.StateStore, signals storage.SignalBus, scheduler *threshold.Scheduler, clock platform.Clock, resetTime string, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		state:     state,
		signals:   signals,
		scheduler: scheduler,
		clock:     clock,
		resetTime: resetTime,
		logger:    logger.With().Str("component", "reset").Logger(),
	}
}

// EnsureCurrentDay resets counters, reduction and shield when the stored
// stamp belongs to an earlier day. A casual break session does not
// survive the boundary; a committed one does, the pledge outlives the
// day that made it. Running twice in the same day is a no-op, so every
// process can call this on its own wake points.
func (r *Reconciler) EnsureCurrentDay(ctx context.Context) (bool, error) {
	today := DayStamp(r.clock.Now(), r.resetTime)

	stored, err := r.state.GetDayStamp(ctx)
	if err != nil {
		return false, fmt.Errorf("loading day stamp: %w", err)
	}
	if stored == today {
		return false, nil
	}

	r.logger.Info().Str("from", stored).Str("to", today).Msg("Resetting day state")

	if err := r.state.SetCounters(ctx, storage.UsageCounters{}); err != nil {
		return false, fmt.Errorf("zeroing counters: %w", err)
	}
	if err := r.state.SetReduction(ctx, 0); err != nil {
		return false, fmt.Errorf("zeroing reduction: %w", err)
	}

	st, err := r.state.GetShield(ctx)
	if err != nil {
		return false, fmt.Errorf("loading shield state: %w", err)
	}
	if next, ev := shield.OnDailyReset(st); ev != shield.EventNone {
		if err := r.state.SetShield(ctx, next); err != nil {
			return false, fmt.Errorf("clearing shield: %w", err)
		}
		metrics.ShieldTransitions.WithLabelValues(ev.String()).Inc()
	}

	sess, err := r.state.GetSession(ctx)
	if err != nil && err != storage.ErrNotFound {
		return false, fmt.Errorf("loading break session: %w", err)
	}
	if sess != nil && sess.Kind == storage.BreakCasual {
		if err := r.state.ClearSession(ctx); err != nil {
			return false, fmt.Errorf("clearing break session: %w", err)
		}
	}

	if err := r.state.SetDayStamp(ctx, today); err != nil {
		return false, fmt.Errorf("storing day stamp: %w", err)
	}

	if r.scheduler != nil {
		limit, err := r.state.GetLimit(ctx)
		if err == nil {
			if err := r.scheduler.Reconcile(ctx, 0, limit.LimitSeconds); err != nil {
				r.logger.Warn().Err(err).Msg("Threshold reconcile failed after reset")
			}
		} else if err != storage.ErrNotFound {
			r.logger.Warn().Err(err).Msg("Failed to load limit after reset")
		}
	}

	if r.OnReset != nil {
		r.OnReset()
	}

	metrics.DailyResets.Inc()
	if err := r.signals.Emit(ctx, storage.SignalDayReset); err != nil {
		r.logger.Debug().Err(err).Msg("Signal emit failed")
	} else {
		metrics.SignalsEmitted.WithLabelValues(storage.SignalDayReset).Inc()
	}
	return true, nil
}

// Run checks the boundary on an interval until the context ends. The
// monitor daemon owns this loop; other processes reconcile on their own
// wake points instead.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.EnsureCurrentDay(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Day reset failed")
			}
		}
	}
}
