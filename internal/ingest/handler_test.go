package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/breezelab/gust/internal/config"
	"github.com/breezelab/gust/internal/notify"
	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/reset"
	"github.com/breezelab/gust/internal/storage"
	gustredis "github.com/breezelab/gust/internal/storage/redis"
	"github.com/breezelab/gust/internal/threshold"
)

type harness struct {
	handler *Handler
	store   *gustredis.Store
	monitor *platform.SimMonitor
	clock   *platform.TestClock
	sent    *[]notify.Notification
}

func setupHandler(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := gustredis.Open(config.RedisConfig{
		Host:         mr.Addr(),
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var sent []notify.Notification
	sender := notify.NewLogSender(zerolog.Nop())
	sender.OnEnqueue = func(n notify.Notification) { sent = append(sent, n) }
	dispatcher := notify.NewDispatcher(sender, time.Minute, zerolog.Nop())

	monitor := platform.NewSimMonitor()
	scheduler := threshold.NewScheduler(monitor, 5*time.Minute, 20, zerolog.Nop())
	clock := &platform.TestClock{CurrentTime: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	reconciler := reset.NewReconciler(store.State(), store.Signals(), scheduler, clock, "00:00", zerolog.Nop())
	reconciler.OnReset = monitor.ResetUsage

	// Stamp the current day so only boundary tests trigger a reset.
	if err := store.State().SetDayStamp(context.Background(), "2026-08-28"); err != nil {
		t.Fatalf("Failed to stamp day: %v", err)
	}

	h := NewHandler(store.State(), store.Signals(), scheduler, dispatcher, reconciler, clock, 100, 0.5, zerolog.Nop())
	return &harness{handler: h, store: store, monitor: monitor, clock: clock, sent: &sent}
}

func TestCrossingAtLimitEngagesShield(t *testing.T) {
	h := setupHandler(t)
	ctx := context.Background()

	err := h.store.State().SetLimit(ctx, storage.LimitConfig{
		LimitSeconds: 1500,
		Apps:         []storage.Token{"app.instagram"},
	})
	if err != nil {
		t.Fatalf("Failed to set limit: %v", err)
	}

	received := make(chan string, 4)
	cancel, err := h.store.Signals().Subscribe(ctx, func(name string) { received <- name })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := h.handler.HandleCrossing(ctx, 1500); err != nil {
		t.Fatalf("HandleCrossing failed: %v", err)
	}

	st, err := h.store.State().GetShield(ctx)
	if err != nil {
		t.Fatalf("Failed to read shield state: %v", err)
	}
	if !st.Active {
		t.Error("Expected shield active at limit")
	}
	if st.FallRatePerSecond != 0.5 {
		t.Errorf("Expected fall rate 0.5, got %v", st.FallRatePerSecond)
	}

	select {
	case name := <-received:
		if name != storage.SignalShieldEngaged {
			t.Errorf("Expected %s signal, got %s", storage.SignalShieldEngaged, name)
		}
	case <-time.After(2 * time.Second):
		t.Error("Timed out waiting for shield.engaged signal")
	}

	if len(*h.sent) != 1 || (*h.sent)[0].ID != "shield.engaged" {
		t.Errorf("Expected shield.engaged notification, got %v", *h.sent)
	}
}

func TestCrossingBelowLimitIsQuiet(t *testing.T) {
	h := setupHandler(t)
	ctx := context.Background()

	_ = h.store.State().SetLimit(ctx, storage.LimitConfig{LimitSeconds: 1500})

	if err := h.handler.HandleCrossing(ctx, 900); err != nil {
		t.Fatalf("HandleCrossing failed: %v", err)
	}

	st, _ := h.store.State().GetShield(ctx)
	if st.Active {
		t.Error("Expected shield inactive below limit")
	}
	if len(*h.sent) != 0 {
		t.Errorf("Expected no notifications, got %v", *h.sent)
	}
}

func TestCrossingUsageNeverRollsBack(t *testing.T) {
	h := setupHandler(t)
	ctx := context.Background()

	_ = h.store.State().SetLimit(ctx, storage.LimitConfig{LimitSeconds: 3600})

	if err := h.handler.HandleCrossing(ctx, 1200); err != nil {
		t.Fatalf("HandleCrossing failed: %v", err)
	}
	// A replayed callback with stale usage must not move counters back.
	if err := h.handler.HandleCrossing(ctx, 900); err != nil {
		t.Fatalf("HandleCrossing failed: %v", err)
	}

	counters, err := h.store.State().GetCounters(ctx)
	if err != nil {
		t.Fatalf("Failed to read counters: %v", err)
	}
	if counters.CumulativeSeconds != 1200 {
		t.Errorf("Expected cumulative 1200, got %d", counters.CumulativeSeconds)
	}
}

func TestCrossingKeepsThresholdsAhead(t *testing.T) {
	h := setupHandler(t)
	ctx := context.Background()

	_ = h.store.State().SetLimit(ctx, storage.LimitConfig{LimitSeconds: 3600})

	if err := h.handler.HandleCrossing(ctx, 600); err != nil {
		t.Fatalf("HandleCrossing failed: %v", err)
	}

	regs, err := h.monitor.Registered(ctx)
	if err != nil {
		t.Fatalf("Registered failed: %v", err)
	}
	if len(regs) == 0 {
		t.Fatal("Expected thresholds registered")
	}
	for _, m := range regs {
		if m <= 600 {
			t.Errorf("Expected all registered marks above 600, got %v", regs)
		}
	}
}

func TestCrossingAfterBoundaryStartsFreshDay(t *testing.T) {
	h := setupHandler(t)
	ctx := context.Background()

	_ = h.store.State().SetLimit(ctx, storage.LimitConfig{LimitSeconds: 1500})

	// Yesterday's state is still in the store: the boundary passed but
	// the minute-interval reset loop has not fired yet.
	_ = h.store.State().SetDayStamp(ctx, "2026-08-27")
	_ = h.store.State().SetCounters(ctx, storage.UsageCounters{CumulativeSeconds: 1500})

	// A crossing generated from the stale feed reports yesterday's total.
	// It must trigger the reset and be dropped, not written into the new
	// day, or the shield would re-engage on a fresh morning.
	if err := h.handler.HandleCrossing(ctx, 1800); err != nil {
		t.Fatalf("HandleCrossing failed: %v", err)
	}

	day, _ := h.store.State().GetDayStamp(ctx)
	if day != "2026-08-28" {
		t.Errorf("Expected day stamp 2026-08-28, got %s", day)
	}
	counters, _ := h.store.State().GetCounters(ctx)
	if counters.CumulativeSeconds != 0 {
		t.Errorf("Expected stale crossing dropped, counters at %d", counters.CumulativeSeconds)
	}
	st, _ := h.store.State().GetShield(ctx)
	if st.Active {
		t.Error("Expected shield off on the fresh day")
	}

	// Fresh-day usage lands on the zeroed counters.
	if err := h.handler.HandleCrossing(ctx, 300); err != nil {
		t.Fatalf("HandleCrossing failed: %v", err)
	}
	counters, _ = h.store.State().GetCounters(ctx)
	if counters.CumulativeSeconds != 300 {
		t.Errorf("Expected cumulative 300, got %d", counters.CumulativeSeconds)
	}
}

func TestReductionCountersReduceWind(t *testing.T) {
	h := setupHandler(t)
	ctx := context.Background()

	_ = h.store.State().SetLimit(ctx, storage.LimitConfig{LimitSeconds: 1500})
	if _, err := h.store.State().AddReduction(ctx, 600); err != nil {
		t.Fatalf("AddReduction failed: %v", err)
	}

	// 1500 used minus 600 forgiven over a 1500 limit is wind 60.
	if err := h.handler.HandleCrossing(ctx, 1500); err != nil {
		t.Fatalf("HandleCrossing failed: %v", err)
	}

	st, _ := h.store.State().GetShield(ctx)
	if st.Active {
		t.Error("Expected shield inactive with reduction applied")
	}
}
