package reset

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/storage"
	"github.com/breezelab/gust/internal/storage/bolt"
	"github.com/breezelab/gust/internal/threshold"
)

func TestDayStamp(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		resetTime string
		want      string
	}{
		{
			name:      "midnight boundary after",
			now:       time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
			resetTime: "00:00",
			want:      "2026-08-28",
		},
		{
			name:      "custom boundary before reset time",
			now:       time.Date(2026, 8, 28, 3, 30, 0, 0, time.UTC),
			resetTime: "04:00",
			want:      "2026-08-27",
		},
		{
			name:      "custom boundary after reset time",
			now:       time.Date(2026, 8, 28, 4, 0, 0, 0, time.UTC),
			resetTime: "04:00",
			want:      "2026-08-28",
		},
		{
			name:      "invalid reset time falls back to midnight",
			now:       time.Date(2026, 8, 28, 0, 30, 0, 0, time.UTC),
			resetTime: "not-a-time",
			want:      "2026-08-28",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayStamp(tt.now, tt.resetTime); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func setupReconciler(t *testing.T) (*Reconciler, storage.StateStore, *platform.TestClock) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "gust.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &platform.TestClock{CurrentTime: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	scheduler := threshold.NewScheduler(platform.NewSimMonitor(), 5*time.Minute, 20, zerolog.Nop())
	r := NewReconciler(store.State(), store.Signals(), scheduler, clock, "00:00", zerolog.Nop())
	return r, store.State(), clock
}

func TestEnsureCurrentDayResetsStaleState(t *testing.T) {
	r, state, _ := setupReconciler(t)
	ctx := context.Background()

	_ = state.SetDayStamp(ctx, "2026-08-27")
	_ = state.SetCounters(ctx, storage.UsageCounters{CumulativeSeconds: 1500})
	_ = state.SetReduction(ctx, 600)
	now := time.Date(2026, 8, 27, 22, 0, 0, 0, time.UTC)
	_ = state.SetShield(ctx, storage.ShieldState{Active: true, ActivatedAt: &now, FallRatePerSecond: 0.5})

	reset, err := r.EnsureCurrentDay(ctx)
	if err != nil {
		t.Fatalf("EnsureCurrentDay failed: %v", err)
	}
	if !reset {
		t.Fatal("Expected a reset to happen")
	}

	counters, _ := state.GetCounters(ctx)
	if counters.CumulativeSeconds != 0 {
		t.Errorf("Expected counters zeroed, got %d", counters.CumulativeSeconds)
	}
	reduction, _ := state.GetReduction(ctx)
	if reduction != 0 {
		t.Errorf("Expected reduction zeroed, got %d", reduction)
	}
	st, _ := state.GetShield(ctx)
	if st.Active {
		t.Error("Expected shield cleared")
	}
	day, _ := state.GetDayStamp(ctx)
	if day != "2026-08-28" {
		t.Errorf("Expected day stamp 2026-08-28, got %s", day)
	}
}

func TestEnsureCurrentDayIsIdempotent(t *testing.T) {
	r, state, _ := setupReconciler(t)
	ctx := context.Background()

	if _, err := r.EnsureCurrentDay(ctx); err != nil {
		t.Fatalf("EnsureCurrentDay failed: %v", err)
	}

	// Usage recorded after the reset must survive a second pass.
	_ = state.SetCounters(ctx, storage.UsageCounters{CumulativeSeconds: 300})

	reset, err := r.EnsureCurrentDay(ctx)
	if err != nil {
		t.Fatalf("EnsureCurrentDay failed: %v", err)
	}
	if reset {
		t.Error("Expected second pass to be a no-op")
	}
	counters, _ := state.GetCounters(ctx)
	if counters.CumulativeSeconds != 300 {
		t.Errorf("Expected counters untouched, got %d", counters.CumulativeSeconds)
	}
}

func TestEnsureCurrentDayRewindsMonitorFeed(t *testing.T) {
	r, state, _ := setupReconciler(t)
	ctx := context.Background()

	// The monitor feed accrued yesterday's usage alongside the counters.
	monitor := platform.NewSimMonitor()
	_ = monitor.Register(ctx, []int64{300})
	monitor.Advance(1500, time.Date(2026, 8, 27, 22, 0, 0, 0, time.UTC))
	<-monitor.Events()

	hookCalls := 0
	r.OnReset = func() {
		hookCalls++
		monitor.ResetUsage()
	}

	_ = state.SetDayStamp(ctx, "2026-08-27")
	_ = state.SetCounters(ctx, storage.UsageCounters{CumulativeSeconds: 1500})
	if _, err := r.EnsureCurrentDay(ctx); err != nil {
		t.Fatalf("EnsureCurrentDay failed: %v", err)
	}
	if hookCalls != 1 {
		t.Fatalf("Expected reset hook called once, got %d", hookCalls)
	}

	// Fresh-day usage must report from zero. Without the rewind the next
	// crossing would carry yesterday's total and snap the wind back up.
	monitor.Advance(300, time.Date(2026, 8, 28, 10, 5, 0, 0, time.UTC))
	select {
	case c := <-monitor.Events():
		if c.CumulativeSeconds != 300 {
			t.Errorf("Expected cumulative 300 after rewind, got %d", c.CumulativeSeconds)
		}
	default:
		t.Fatal("Expected a crossing after fresh-day usage")
	}

	// A no-op pass must not rewind mid-day usage.
	if _, err := r.EnsureCurrentDay(ctx); err != nil {
		t.Fatalf("EnsureCurrentDay failed: %v", err)
	}
	if hookCalls != 1 {
		t.Errorf("Expected no reset hook on a no-op pass, got %d calls", hookCalls)
	}
}

func TestEnsureCurrentDaySessionHandling(t *testing.T) {
	r, state, _ := setupReconciler(t)
	ctx := context.Background()
	_ = state.SetDayStamp(ctx, "2026-08-27")

	// A casual session does not survive the boundary.
	_ = state.SetSession(ctx, storage.BreakSession{
		Kind:      storage.BreakCasual,
		StartedAt: time.Date(2026, 8, 27, 23, 0, 0, 0, time.UTC),
	})
	if _, err := r.EnsureCurrentDay(ctx); err != nil {
		t.Fatalf("EnsureCurrentDay failed: %v", err)
	}
	if _, err := state.GetSession(ctx); err != storage.ErrNotFound {
		t.Errorf("Expected casual session cleared, got %v", err)
	}

	// A committed session does.
	_ = state.SetDayStamp(ctx, "2026-08-27")
	_ = state.SetSession(ctx, storage.BreakSession{
		Kind:      storage.BreakCommitted,
		StartedAt: time.Date(2026, 8, 27, 23, 0, 0, 0, time.UTC),
		Minutes:   120,
	})
	if _, err := r.EnsureCurrentDay(ctx); err != nil {
		t.Fatalf("EnsureCurrentDay failed: %v", err)
	}
	sess, err := state.GetSession(ctx)
	if err != nil {
		t.Fatalf("Expected committed session to survive, got %v", err)
	}
	if sess.Kind != storage.BreakCommitted {
		t.Errorf("Expected committed session, got %v", sess.Kind)
	}
}
