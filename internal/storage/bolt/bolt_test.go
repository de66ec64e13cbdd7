package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/breezelab/gust/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "gust.bolt"))
	if err != nil {
		t.Fatalf("Failed to open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStateStore_CountersRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	state := store.State()

	c, err := state.GetCounters(ctx)
	if err != nil {
		t.Fatalf("GetCounters failed: %v", err)
	}
	if c.CumulativeSeconds != 0 {
		t.Errorf("Expected zero counters, got %d", c.CumulativeSeconds)
	}

	now := time.Now()
	if err := state.SetCounters(ctx, storage.UsageCounters{CumulativeSeconds: 1200, LastThresholdAt: now}); err != nil {
		t.Fatalf("SetCounters failed: %v", err)
	}

	c, err = state.GetCounters(ctx)
	if err != nil {
		t.Fatalf("GetCounters failed: %v", err)
	}
	if c.CumulativeSeconds != 1200 {
		t.Errorf("Expected CumulativeSeconds 1200, got %d", c.CumulativeSeconds)
	}
}

func TestStateStore_ReductionAndCoins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	state := store.State()

	total, err := state.AddReduction(ctx, 300)
	if err != nil {
		t.Fatalf("AddReduction failed: %v", err)
	}
	if total != 300 {
		t.Errorf("Expected total 300, got %d", total)
	}

	total, _ = state.AddReduction(ctx, 300)
	if total != 600 {
		t.Errorf("Expected total 600, got %d", total)
	}

	if err := state.SetReduction(ctx, 0); err != nil {
		t.Fatalf("SetReduction failed: %v", err)
	}
	got, _ := state.GetReduction(ctx)
	if got != 0 {
		t.Errorf("Expected reduction 0 after reset, got %d", got)
	}

	coins, err := state.GetCoins(ctx)
	if err != nil {
		t.Fatalf("GetCoins failed: %v", err)
	}
	if coins != 0 {
		t.Errorf("Expected zero coins, got %d", coins)
	}
}

func TestStateStore_ShieldRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	state := store.State()

	activatedAt := time.Now()
	err := state.SetShield(ctx, storage.ShieldState{
		Active:            true,
		ActivatedAt:       &activatedAt,
		FallRatePerSecond: 0.5,
	})
	if err != nil {
		t.Fatalf("SetShield failed: %v", err)
	}

	st, err := state.GetShield(ctx)
	if err != nil {
		t.Fatalf("GetShield failed: %v", err)
	}
	if !st.Active || st.ActivatedAt == nil {
		t.Fatalf("Expected active shield with timestamp, got %+v", st)
	}
	if st.FallRatePerSecond != 0.5 {
		t.Errorf("Expected FallRatePerSecond 0.5, got %f", st.FallRatePerSecond)
	}
}

func TestStateStore_CommitBreak(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	state := store.State()

	started := time.Now().Add(-45 * time.Minute)
	_ = state.SetSession(ctx, storage.BreakSession{
		Kind:      storage.BreakCommitted,
		StartedAt: started,
		Minutes:   45,
	})

	err := state.CommitBreak(ctx, storage.CompletedBreak{
		ID:               "break-1",
		Day:              "2026-08-28",
		StartedAt:        started,
		EndedAt:          time.Now(),
		MinutesCommitted: 45,
		MinutesCounted:   45,
		ReductionSeconds: 2700,
		CoinsAwarded:     3,
	})
	if err != nil {
		t.Fatalf("CommitBreak failed: %v", err)
	}

	reduction, _ := state.GetReduction(ctx)
	if reduction != 2700 {
		t.Errorf("Expected reduction 2700, got %d", reduction)
	}

	coins, _ := state.GetCoins(ctx)
	if coins != 3 {
		t.Errorf("Expected 3 coins, got %d", coins)
	}

	if _, err := state.GetSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected session cleared, got %v", err)
	}

	breaks, err := store.History().ListByDay(ctx, "2026-08-28")
	if err != nil {
		t.Fatalf("ListByDay failed: %v", err)
	}
	if len(breaks) != 1 || breaks[0].ID != "break-1" {
		t.Fatalf("Unexpected history: %+v", breaks)
	}
}

func TestHistoryStore_AppendOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	state := store.State()

	for i, id := range []string{"first", "second", "third"} {
		err := state.CommitBreak(ctx, storage.CompletedBreak{
			ID:             id,
			Day:            "2026-08-28",
			MinutesCounted: int64(i + 1),
		})
		if err != nil {
			t.Fatalf("CommitBreak %s failed: %v", id, err)
		}
	}

	// A record on another day must not leak into the listing.
	_ = state.CommitBreak(ctx, storage.CompletedBreak{ID: "other", Day: "2026-08-29"})

	breaks, err := store.History().ListByDay(ctx, "2026-08-28")
	if err != nil {
		t.Fatalf("ListByDay failed: %v", err)
	}
	if len(breaks) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(breaks))
	}
	for i, want := range []string{"first", "second", "third"} {
		if breaks[i].ID != want {
			t.Errorf("Expected record %d to be %s, got %s", i, want, breaks[i].ID)
		}
	}
}

func TestSignals_NoopBus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	cancel, err := store.Signals().Subscribe(ctx, func(string) {
		t.Error("noop bus must never deliver")
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := store.Signals().Emit(ctx, storage.SignalDayReset); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
}
