package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/breezelab/gust/internal/storage"
)

// parseCounters converts a Redis hash to UsageCounters.
func parseCounters(data map[string]string) (storage.UsageCounters, error) {
	cumulative, err := strconv.ParseInt(data["cumulative_seconds"], 10, 64)
	if err != nil {
		return storage.UsageCounters{}, fmt.Errorf("failed to parse cumulative_seconds: %w", err)
	}

	lastAt, err := parseTime(data["last_threshold_at"])
	if err != nil {
		return storage.UsageCounters{}, fmt.Errorf("failed to parse last_threshold_at: %w", err)
	}

	return storage.UsageCounters{
		CumulativeSeconds: cumulative,
		LastThresholdAt:   lastAt,
	}, nil
}

// parseLimit converts a Redis hash to LimitConfig.
func parseLimit(data map[string]string) (*storage.LimitConfig, error) {
	limitSeconds, err := strconv.ParseInt(data["limit_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse limit_seconds: %w", err)
	}

	l := &storage.LimitConfig{LimitSeconds: limitSeconds}

	for field, dst := range map[string]*[]storage.Token{
		"apps":       &l.Apps,
		"categories": &l.Categories,
		"domains":    &l.Domains,
	} {
		if raw := data[field]; raw != "" {
			if err := json.Unmarshal([]byte(raw), dst); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", field, err)
			}
		}
	}

	return l, nil
}

// parseShield converts a Redis hash to ShieldState.
func parseShield(data map[string]string) (storage.ShieldState, error) {
	active, err := strconv.ParseBool(data["active"])
	if err != nil {
		return storage.ShieldState{}, fmt.Errorf("failed to parse active: %w", err)
	}

	st := storage.ShieldState{Active: active}

	if raw := data["activated_at"]; raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return storage.ShieldState{}, fmt.Errorf("failed to parse activated_at: %w", err)
		}
		st.ActivatedAt = &at
	}

	if raw := data["fall_rate_per_second"]; raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return storage.ShieldState{}, fmt.Errorf("failed to parse fall_rate_per_second: %w", err)
		}
		st.FallRatePerSecond = rate
	}

	return st, nil
}

// parseSession converts a Redis hash to BreakSession.
func parseSession(data map[string]string) (*storage.BreakSession, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, data["started_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	var minutes int64
	if raw := data["minutes"]; raw != "" {
		minutes, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse minutes: %w", err)
		}
	}

	return &storage.BreakSession{
		Kind:      storage.BreakKind(data["kind"]),
		StartedAt: startedAt,
		Minutes:   minutes,
	}, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
