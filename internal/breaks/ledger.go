// Package breaks manages break sessions and the reduction ledger. A
// casual break can be abandoned at any time; completing one forgives the
// minutes sat out but earns nothing. A committed break is a pledge for a
// fixed term; it cannot be cancelled before the term ends, and completing
// it forgives up to the committed minutes and pays out coins.
package breaks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/breezelab/gust/internal/metrics"
	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/reset"
	"github.com/breezelab/gust/internal/storage"
)

var (
	// ErrSessionActive is returned when starting a break while one is
	// already running.
	ErrSessionActive = errors.New("a break session is already active")

	// ErrNoSession is returned when there is no break to cancel or
	// complete.
	ErrNoSession = errors.New("no active break session")

	// ErrCannotCancelCommitted is returned when cancelling a committed
	// break before its term is up.
	ErrCannotCancelCommitted = errors.New("a committed break cannot be cancelled before its term ends")

	// ErrInvalidMinutes is returned for a non-positive committed term.
	ErrInvalidMinutes = errors.New("committed break minutes must be positive")
)

// Ledger runs break sessions against the store.
type Ledger struct {
	state        storage.StateStore
	clock        platform.Clock
	coinInterval int64
	resetTime    string
	logger       zerolog.Logger
}

// NewLedger creates a break ledger. coinIntervalMinutes is the committed
// time bought per coin.
func NewLedger(state storage.StateStore, clock platform.Clock, coinIntervalMinutes int64, resetTime string, logger zerolog.Logger) *Ledger {
	return &Ledger{
		state:        state,
		clock:        clock,
		coinInterval: coinIntervalMinutes,
		resetTime:    resetTime,
		logger:       logger.With().Str("component", "breaks").Logger(),
	}
}

// StartCasual opens a casual break session.
func (l *Ledger) StartCasual(ctx context.Context) (*storage.BreakSession, error) {
	return l.start(ctx, storage.BreakSession{
		Kind:      storage.BreakCasual,
		StartedAt: l.clock.Now(),
	})
}

// StartCommitted opens a committed break session for the given term.
func (l *Ledger) StartCommitted(ctx context.Context, minutes int64) (*storage.BreakSession, error) {
	if minutes <= 0 {
		return nil, ErrInvalidMinutes
	}
	return l.start(ctx, storage.BreakSession{
		Kind:      storage.BreakCommitted,
		StartedAt: l.clock.Now(),
		Minutes:   minutes,
	})
}

func (l *Ledger) start(ctx context.Context, sess storage.BreakSession) (*storage.BreakSession, error) {
	existing, err := l.state.GetSession(ctx)
	if err != nil && err != storage.ErrNotFound {
		return nil, fmt.Errorf("loading break session: %w", err)
	}
	if existing != nil {
		return nil, ErrSessionActive
	}

	if err := l.state.SetSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("storing break session: %w", err)
	}
	l.logger.Info().Str("kind", string(sess.Kind)).Int64("minutes", sess.Minutes).Msg("Break started")
	return &sess, nil
}

// Cancel abandons the active break without any ledger effect. A
// committed break refuses to be cancelled before its term is up; that is
// the whole point of committing.
func (l *Ledger) Cancel(ctx context.Context) error {
	sess, err := l.state.GetSession(ctx)
	if err != nil {
		if err == storage.ErrNotFound {
			return ErrNoSession
		}
		return fmt.Errorf("loading break session: %w", err)
	}

	if sess.Kind == storage.BreakCommitted && l.clock.Now().Before(sess.CommittedUntil()) {
		return ErrCannotCancelCommitted
	}

	if err := l.state.ClearSession(ctx); err != nil {
		return fmt.Errorf("clearing break session: %w", err)
	}
	l.logger.Info().Str("kind", string(sess.Kind)).Msg("Break cancelled")
	return nil
}

// Complete closes the active break and applies its ledger effect in one
// atomic store commit. Both kinds forgive the minutes actually sat out;
// a committed break caps forgiveness at its term and pays one coin per
// full coin interval, a casual break earns no coins. The commit also
// clears the session, so a crashed process retrying Complete gets
// ErrNoSession instead of double credit.
func (l *Ledger) Complete(ctx context.Context) (*storage.CompletedBreak, error) {
	sess, err := l.state.GetSession(ctx)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("loading break session: %w", err)
	}

	now := l.clock.Now()
	elapsedMinutes := int64(now.Sub(sess.StartedAt) / time.Minute)
	if elapsedMinutes < 0 {
		elapsedMinutes = 0
	}

	record := storage.CompletedBreak{
		ID:        fmt.Sprintf("break-%d", sess.StartedAt.UnixNano()),
		Day:       reset.DayStamp(now, l.resetTime),
		StartedAt: sess.StartedAt,
		EndedAt:   now,
	}

	switch sess.Kind {
	case storage.BreakCommitted:
		counted := elapsedMinutes
		if counted > sess.Minutes {
			counted = sess.Minutes
		}
		record.MinutesCommitted = sess.Minutes
		record.MinutesCounted = counted
		record.ReductionSeconds = counted * 60
		if l.coinInterval > 0 {
			record.CoinsAwarded = counted / l.coinInterval
		}
	default:
		record.MinutesCounted = elapsedMinutes
		record.ReductionSeconds = elapsedMinutes * 60
	}

	if err := l.state.CommitBreak(ctx, record); err != nil {
		return nil, fmt.Errorf("committing break: %w", err)
	}

	metrics.BreaksCompleted.WithLabelValues(string(sess.Kind)).Inc()
	if record.CoinsAwarded > 0 {
		metrics.CoinsAwarded.Add(float64(record.CoinsAwarded))
	}
	l.logger.Info().
		Str("kind", string(sess.Kind)).
		Int64("minutes_counted", record.MinutesCounted).
		Int64("reduction_seconds", record.ReductionSeconds).
		Int64("coins", record.CoinsAwarded).
		Msg("Break completed")
	return &record, nil
}

// Active returns the current session, or nil without error when none is
// running.
func (l *Ledger) Active(ctx context.Context) (*storage.BreakSession, error) {
	sess, err := l.state.GetSession(ctx)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	return sess, err
}
