// Package shield owns the enforcement shield: an explicit state machine
// over {disengaged, active(activatedAt, fallRate)} with pure transition
// functions, plus the controller the enforcement-UI process runs. The
// transitions take stored state and inputs and return new state, so they
// are testable without any OS callback harness.
package shield

import (
	"time"

	"github.com/breezelab/gust/internal/storage"
	"github.com/breezelab/gust/internal/wind"
)

// Event reports what a transition did.
type Event int

const (
	EventNone Event = iota
	EventEngaged
	EventReleased
)

// String returns the event name for logs.
func (e Event) String() string {
	switch e {
	case EventEngaged:
		return "engaged"
	case EventReleased:
		return "released"
	default:
		return "none"
	}
}

// Advance applies one usage-update step to the shield state.
//
// A disengaged shield engages when base wind reaches engageThreshold,
// stamping the activation instant and snapshotting the configured fall
// rate. An active shield releases once its effective (decayed) wind has
// reached zero. Re-running with unchanged inputs is a no-op, so every
// process may call this on its own wake points without coordination.
func Advance(st storage.ShieldState, baseWind, engageThreshold, fallRate float64, now time.Time) (storage.ShieldState, Event) {
	if !st.Active {
		if baseWind >= engageThreshold {
			activatedAt := now
			return storage.ShieldState{
				Active:            true,
				ActivatedAt:       &activatedAt,
				FallRatePerSecond: fallRate,
			}, EventEngaged
		}
		return st, EventNone
	}

	if wind.Effective(baseWind, st.ActivatedAt, st.FallRatePerSecond, now) <= 0 {
		return storage.ShieldState{}, EventReleased
	}

	return st, EventNone
}

// OnDailyReset clears the shield at the day boundary.
func OnDailyReset(st storage.ShieldState) (storage.ShieldState, Event) {
	if !st.Active {
		return st, EventNone
	}
	return storage.ShieldState{}, EventReleased
}
