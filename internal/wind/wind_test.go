package wind

import (
	"testing"
	"time"
)

func TestValue_AtLimit(t *testing.T) {
	got := Value(Snapshot{CumulativeSeconds: 1500, BreakReductionSeconds: 0, LimitSeconds: 1500})
	if got != 100 {
		t.Errorf("Expected wind 100, got %f", got)
	}
}

func TestValue_NoLimitConfigured(t *testing.T) {
	for _, s := range []Snapshot{
		{CumulativeSeconds: 0, LimitSeconds: 0},
		{CumulativeSeconds: 99999, LimitSeconds: 0},
		{CumulativeSeconds: 500, BreakReductionSeconds: 100, LimitSeconds: 0},
		{CumulativeSeconds: 500, LimitSeconds: -60},
	} {
		if got := Value(s); got != 0 {
			t.Errorf("Expected wind 0 for %+v, got %f", s, got)
		}
	}
}

func TestValue_ReductionExceedsUsage(t *testing.T) {
	// Right after a long break the reduction can exceed the day's usage;
	// effective seconds clamp at zero instead of going negative.
	got := Value(Snapshot{CumulativeSeconds: 600, BreakReductionSeconds: 1800, LimitSeconds: 1500})
	if got != 0 {
		t.Errorf("Expected wind clamped to 0, got %f", got)
	}
}

func TestValue_UnboundedAboveHundred(t *testing.T) {
	got := Value(Snapshot{CumulativeSeconds: 3000, BreakReductionSeconds: 0, LimitSeconds: 1500})
	if got != 200 {
		t.Errorf("Expected wind 200, got %f", got)
	}
}

func TestValue_MonotonicInUsage(t *testing.T) {
	prev := -1.0
	for cumulative := int64(0); cumulative <= 3000; cumulative += 100 {
		v := Value(Snapshot{CumulativeSeconds: cumulative, BreakReductionSeconds: 300, LimitSeconds: 1500})
		if v < 0 {
			t.Fatalf("Wind went negative at cumulative=%d: %f", cumulative, v)
		}
		if v < prev {
			t.Fatalf("Wind decreased at cumulative=%d: %f < %f", cumulative, v, prev)
		}
		prev = v
	}
}

func TestValue_NonIncreasingInReduction(t *testing.T) {
	prev := 1e9
	for reduction := int64(0); reduction <= 3000; reduction += 100 {
		v := Value(Snapshot{CumulativeSeconds: 1800, BreakReductionSeconds: reduction, LimitSeconds: 1500})
		if v > prev {
			t.Fatalf("Wind increased at reduction=%d: %f > %f", reduction, v, prev)
		}
		prev = v
	}
}

func TestEffective_NoShield(t *testing.T) {
	now := time.Now()
	if got := Effective(80, nil, 2, now); got != 80 {
		t.Errorf("Expected base wind 80 with no shield, got %f", got)
	}
}

func TestEffective_LinearDecay(t *testing.T) {
	now := time.Now()
	activatedAt := now.Add(-30 * time.Second)

	got := Effective(100, &activatedAt, 2, now)
	if got != 40 {
		t.Errorf("Expected effective wind 40, got %f", got)
	}
}

func TestEffective_ClampsAtZero(t *testing.T) {
	now := time.Now()
	activatedAt := now.Add(-10 * time.Minute)

	if got := Effective(100, &activatedAt, 2, now); got != 0 {
		t.Errorf("Expected effective wind 0, got %f", got)
	}
}

func TestEffective_ClockSkew(t *testing.T) {
	// An activation timestamp in the future (clock skew) must not inflate
	// the value; the decay term clamps at zero elapsed.
	now := time.Now()
	activatedAt := now.Add(45 * time.Second)

	if got := Effective(100, &activatedAt, 2, now); got != 100 {
		t.Errorf("Expected effective wind 100 under skew, got %f", got)
	}
}

func TestEffective_NonIncreasingOverTime(t *testing.T) {
	start := time.Now()
	activatedAt := start
	prev := 1e9

	for s := 0; s <= 120; s += 5 {
		v := Effective(100, &activatedAt, 1.5, start.Add(time.Duration(s)*time.Second))
		if v > prev {
			t.Fatalf("Effective wind increased at t=%ds: %f > %f", s, v, prev)
		}
		if v < 0 {
			t.Fatalf("Effective wind negative at t=%ds: %f", s, v)
		}
		prev = v
	}
}
