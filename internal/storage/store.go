package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store is the shared persisted state every process reads and writes.
// Writes are atomic per key only; there is no transaction across keys and
// no cross-process lock. Readers must treat any multi-key snapshot as an
// approximation and re-derive values from raw counters instead of trusting
// cross-key synchrony.
type Store interface {
	Close() error
	State() StateStore
	History() HistoryStore
	Signals() SignalBus
}

// StateStore holds the flattened per-day state keys.
//
// Scalar getters (counters, reduction, shield, coins, day stamp) return the
// zero value when the key was never written; counters and reduction are
// created implicitly at first write. GetLimit and GetSession return
// ErrNotFound when absent, since "not configured" and "no session" are
// states the caller must distinguish.
type StateStore interface {
	GetCounters(ctx context.Context) (UsageCounters, error)
	SetCounters(ctx context.Context, c UsageCounters) error

	GetLimit(ctx context.Context) (*LimitConfig, error)
	SetLimit(ctx context.Context, l LimitConfig) error

	GetReduction(ctx context.Context) (int64, error)
	// AddReduction atomically adds forgiveness seconds and returns the new
	// total. The total is monotonic non-decreasing within a day.
	AddReduction(ctx context.Context, seconds int64) (int64, error)
	SetReduction(ctx context.Context, seconds int64) error

	GetShield(ctx context.Context) (ShieldState, error)
	SetShield(ctx context.Context, s ShieldState) error

	GetSession(ctx context.Context) (*BreakSession, error)
	SetSession(ctx context.Context, s BreakSession) error
	ClearSession(ctx context.Context) error

	GetDayStamp(ctx context.Context) (string, error)
	SetDayStamp(ctx context.Context, day string) error

	GetCoins(ctx context.Context) (int64, error)

	// CommitBreak applies a completed break as one durable unit: adds the
	// counted forgiveness, appends the history record, awards coins, and
	// clears the active session. Backends make this as atomic as they can
	// (a script, or a single transaction) so a crash mid-completion cannot
	// double-count forgiveness on retry.
	CommitBreak(ctx context.Context, b CompletedBreak) error
}

// HistoryStore reads the append-only completed-break records.
type HistoryStore interface {
	ListByDay(ctx context.Context, day string) ([]CompletedBreak, error)
}

// SignalBus is the fire-and-forget cross-process signal. Emits carry a name
// and no payload, are unordered, and may be dropped when no receiver is
// running. Receivers must treat a signal purely as "something changed,
// re-read the store" and must also reconcile at their own wake points.
type SignalBus interface {
	Emit(ctx context.Context, name string) error
	// Subscribe invokes fn for each received signal until the returned
	// cancel function is called. Delivery is best-effort.
	Subscribe(ctx context.Context, fn func(name string)) (cancel func(), err error)
}

// Well-known signal names.
const (
	SignalShieldEngaged  = "shield.engaged"
	SignalShieldReleased = "shield.released"
	SignalDayReset       = "day.reset"
)
