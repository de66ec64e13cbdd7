package shield

import (
	"testing"
	"time"

	"github.com/breezelab/gust/internal/storage"
)

func TestAdvanceEngagesAtThreshold(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	st, ev := Advance(storage.ShieldState{}, 100, 100, 0.5, now)
	if ev != EventEngaged {
		t.Fatalf("Expected engaged event, got %s", ev)
	}
	if !st.Active {
		t.Error("Expected shield to be active")
	}
	if st.ActivatedAt == nil || !st.ActivatedAt.Equal(now) {
		t.Errorf("Expected activation stamped at %v, got %v", now, st.ActivatedAt)
	}
	if st.FallRatePerSecond != 0.5 {
		t.Errorf("Expected fall rate 0.5, got %v", st.FallRatePerSecond)
	}
}

func TestAdvanceBelowThresholdIsNoop(t *testing.T) {
	st, ev := Advance(storage.ShieldState{}, 99.9, 100, 0.5, time.Now())
	if ev != EventNone || st.Active {
		t.Errorf("Expected no transition below threshold, got %s active=%v", ev, st.Active)
	}
}

func TestAdvanceActiveIsIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	engaged, _ := Advance(storage.ShieldState{}, 120, 100, 2, now)

	// Re-running shortly after must not re-stamp the activation instant.
	later := now.Add(10 * time.Second)
	st, ev := Advance(engaged, 120, 100, 2, later)
	if ev != EventNone {
		t.Fatalf("Expected no event while decaying, got %s", ev)
	}
	if !st.ActivatedAt.Equal(now) {
		t.Errorf("Expected activation instant preserved, got %v", st.ActivatedAt)
	}
}

func TestAdvanceReleasesAtZero(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	engaged, _ := Advance(storage.ShieldState{}, 100, 100, 2, now)

	// 100 wind at 2/s is fully decayed after 50s.
	st, ev := Advance(engaged, 100, 100, 2, now.Add(50*time.Second))
	if ev != EventReleased {
		t.Fatalf("Expected released event, got %s", ev)
	}
	if st.Active || st.ActivatedAt != nil {
		t.Errorf("Expected cleared shield state, got %+v", st)
	}
}

func TestAdvanceHoldsBeforeZero(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	engaged, _ := Advance(storage.ShieldState{}, 100, 100, 2, now)

	st, ev := Advance(engaged, 100, 100, 2, now.Add(49*time.Second))
	if ev != EventNone || !st.Active {
		t.Errorf("Expected shield still active at 49s, got %s active=%v", ev, st.Active)
	}
}

func TestOnDailyResetClearsActiveShield(t *testing.T) {
	now := time.Now()
	active := storage.ShieldState{Active: true, ActivatedAt: &now, FallRatePerSecond: 0.5}

	st, ev := OnDailyReset(active)
	if ev != EventReleased || st.Active {
		t.Errorf("Expected reset to release the shield, got %s active=%v", ev, st.Active)
	}

	st2, ev2 := OnDailyReset(st)
	if ev2 != EventNone {
		t.Errorf("Expected second reset to be a no-op, got %s", ev2)
	}
	_ = st2
}
