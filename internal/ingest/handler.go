// Package ingest processes usage-threshold crossings in the monitor
// process. Each crossing updates the persisted counters, re-derives wind,
// steps the shield state machine and keeps the threshold registrations
// ahead of usage. Everything is recomputed from the store on every
// crossing, so a missed callback costs nothing but latency.
package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/breezelab/gust/internal/deeplink"
	"github.com/breezelab/gust/internal/metrics"
	"github.com/breezelab/gust/internal/notify"
	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/shield"
	"github.com/breezelab/gust/internal/storage"
	"github.com/breezelab/gust/internal/threshold"
	"github.com/breezelab/gust/internal/wind"
)

// DayReconciler resets stale day state at wake points. A crossing is one
// such wake point: usage reported after the boundary must land in the new
// day, not on top of yesterday's counters.
type DayReconciler interface {
	EnsureCurrentDay(ctx context.Context) (bool, error)
}

// Handler applies crossings to the store.
type Handler struct {
	state      storage.StateStore
	signals    storage.SignalBus
	scheduler  *threshold.Scheduler
	dispatcher *notify.Dispatcher
	days       DayReconciler
	clock      platform.Clock

	engageThreshold float64
	fallRate        float64

	logger zerolog.Logger
}

// NewHandler creates a crossing handler.
func NewHandler(
	state storage.StateStore,
	signals storage.SignalBus,
	scheduler *threshold.Scheduler,
	dispatcher *notify.Dispatcher,
	days DayReconciler,
	clock platform.Clock,
	engageThreshold, fallRate float64,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		state:           state,
		signals:         signals,
		scheduler:       scheduler,
		dispatcher:      dispatcher,
		days:            days,
		clock:           clock,
		engageThreshold: engageThreshold,
		fallRate:        fallRate,
		logger:          logger.With().Str("component", "ingest").Logger(),
	}
}

// HandleCrossing records one threshold crossing. The OS reports the
// cumulative usage at the crossing; stored counters only ever move
// forward, so a stale or replayed callback cannot roll usage back.
func (h *Handler) HandleCrossing(ctx context.Context, reportedCumulative int64) error {
	now := h.clock.Now()
	metrics.ThresholdCrossings.Inc()

	if h.days != nil {
		didReset, err := h.days.EnsureCurrentDay(ctx)
		if err != nil {
			// The minute-interval reset loop retries; keep the crossing.
			h.logger.Warn().Err(err).Msg("Day reconcile failed at crossing")
		} else if didReset {
			// The reported cumulative predates the boundary. Drop it;
			// fresh-day crossings rebuild the counters from zero.
			h.logger.Info().
				Int64("cumulative", reportedCumulative).
				Msg("Dropped pre-boundary crossing")
			return nil
		}
	}

	counters, err := h.state.GetCounters(ctx)
	if err != nil {
		return fmt.Errorf("loading counters: %w", err)
	}
	if reportedCumulative > counters.CumulativeSeconds {
		counters.CumulativeSeconds = reportedCumulative
	}
	counters.LastThresholdAt = now
	if err := h.state.SetCounters(ctx, counters); err != nil {
		return fmt.Errorf("storing counters: %w", err)
	}

	limit, err := h.state.GetLimit(ctx)
	if err != nil {
		if err != storage.ErrNotFound {
			return fmt.Errorf("loading limit: %w", err)
		}
		limit = &storage.LimitConfig{}
	}
	reduction, err := h.state.GetReduction(ctx)
	if err != nil {
		return fmt.Errorf("loading reduction: %w", err)
	}

	baseWind := wind.Value(wind.Snapshot{
		CumulativeSeconds:     counters.CumulativeSeconds,
		BreakReductionSeconds: reduction,
		LimitSeconds:          limit.LimitSeconds,
	})
	metrics.WindValue.Set(baseWind)

	st, err := h.state.GetShield(ctx)
	if err != nil {
		return fmt.Errorf("loading shield state: %w", err)
	}
	next, ev := shield.Advance(st, baseWind, h.engageThreshold, h.fallRate, now)
	if ev != shield.EventNone {
		if err := h.state.SetShield(ctx, next); err != nil {
			return fmt.Errorf("storing shield state: %w", err)
		}
		metrics.ShieldTransitions.WithLabelValues(ev.String()).Inc()
		h.announce(ctx, ev)
	}

	h.logger.Debug().
		Int64("cumulative", counters.CumulativeSeconds).
		Float64("wind", baseWind).
		Str("transition", ev.String()).
		Msg("Crossing processed")

	if err := h.scheduler.Reconcile(ctx, counters.CumulativeSeconds, limit.LimitSeconds); err != nil {
		// Registration failures are retried on the next crossing.
		h.logger.Warn().Err(err).Msg("Threshold reconcile failed")
	}
	return nil
}

// announce emits the cross-process signal and the user-facing
// notification for a shield transition. Both are best effort.
func (h *Handler) announce(ctx context.Context, ev shield.Event) {
	var signal string
	var n notify.Notification
	switch ev {
	case shield.EventEngaged:
		signal = storage.SignalShieldEngaged
		n = notify.Notification{
			ID:       "shield.engaged",
			Title:    "The wind picked up",
			Body:     "Your pet needs shelter. Limited apps are paused for now.",
			DeepLink: deeplink.URI(deeplink.ShieldReview),
		}
	case shield.EventReleased:
		signal = storage.SignalShieldReleased
		n = notify.Notification{
			ID:       "shield.released",
			Title:    "The wind died down",
			Body:     "Your pet is safe again. Apps are back.",
			DeepLink: deeplink.URI(deeplink.Pet),
		}
	default:
		return
	}

	if err := h.signals.Emit(ctx, signal); err != nil {
		h.logger.Debug().Err(err).Str("signal", signal).Msg("Signal emit failed")
	} else {
		metrics.SignalsEmitted.WithLabelValues(signal).Inc()
	}
	if err := h.dispatcher.Enqueue(ctx, n); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to enqueue shield notification")
	}
}
