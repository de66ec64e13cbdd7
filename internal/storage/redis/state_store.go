package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/breezelab/gust/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyCounters  = "gust:state:counters"
	keyLimit     = "gust:state:limit"
	keyReduction = "gust:state:reduction"
	keyShield    = "gust:state:shield"
	keySession   = "gust:state:session"
	keyDayStamp  = "gust:state:day"
	keyCoins     = "gust:state:coins"

	keyBreaksDayPrefix = "gust:breaks:day:"
)

type stateStore struct {
	client *redis.Client
}

// GetCounters returns the raw usage counters, zero-valued when never written.
func (s *stateStore) GetCounters(ctx context.Context) (storage.UsageCounters, error) {
	data, err := s.client.HGetAll(ctx, keyCounters).Result()
	if err != nil {
		return storage.UsageCounters{}, err
	}
	if len(data) == 0 {
		return storage.UsageCounters{}, nil
	}
	return parseCounters(data)
}

func (s *stateStore) SetCounters(ctx context.Context, c storage.UsageCounters) error {
	return s.client.HSet(ctx, keyCounters,
		"cumulative_seconds", c.CumulativeSeconds,
		"last_threshold_at", formatTime(c.LastThresholdAt),
	).Err()
}

func (s *stateStore) GetLimit(ctx context.Context) (*storage.LimitConfig, error) {
	data, err := s.client.HGetAll(ctx, keyLimit).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseLimit(data)
}

func (s *stateStore) SetLimit(ctx context.Context, l storage.LimitConfig) error {
	apps, err := json.Marshal(l.Apps)
	if err != nil {
		return fmt.Errorf("failed to encode apps: %w", err)
	}
	categories, err := json.Marshal(l.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	domains, err := json.Marshal(l.Domains)
	if err != nil {
		return fmt.Errorf("failed to encode domains: %w", err)
	}

	return s.client.HSet(ctx, keyLimit,
		"limit_seconds", l.LimitSeconds,
		"apps", string(apps),
		"categories", string(categories),
		"domains", string(domains),
	).Err()
}

func (s *stateStore) GetReduction(ctx context.Context) (int64, error) {
	return getInt(ctx, s.client, keyReduction)
}

// AddReduction relies on INCRBY so concurrent writers from different
// processes cannot lose an increment.
func (s *stateStore) AddReduction(ctx context.Context, seconds int64) (int64, error) {
	return s.client.IncrBy(ctx, keyReduction, seconds).Result()
}

func (s *stateStore) SetReduction(ctx context.Context, seconds int64) error {
	return s.client.Set(ctx, keyReduction, seconds, 0).Err()
}

func (s *stateStore) GetShield(ctx context.Context) (storage.ShieldState, error) {
	data, err := s.client.HGetAll(ctx, keyShield).Result()
	if err != nil {
		return storage.ShieldState{}, err
	}
	if len(data) == 0 {
		return storage.ShieldState{}, nil
	}
	return parseShield(data)
}

func (s *stateStore) SetShield(ctx context.Context, st storage.ShieldState) error {
	activatedAt := ""
	if st.ActivatedAt != nil {
		activatedAt = formatTime(*st.ActivatedAt)
	}
	active := "0"
	if st.Active {
		active = "1"
	}

	return s.client.HSet(ctx, keyShield,
		"active", active,
		"activated_at", activatedAt,
		"fall_rate_per_second", strconv.FormatFloat(st.FallRatePerSecond, 'f', -1, 64),
	).Err()
}

func (s *stateStore) GetSession(ctx context.Context) (*storage.BreakSession, error) {
	data, err := s.client.HGetAll(ctx, keySession).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseSession(data)
}

func (s *stateStore) SetSession(ctx context.Context, sess storage.BreakSession) error {
	return s.client.HSet(ctx, keySession,
		"kind", string(sess.Kind),
		"started_at", formatTime(sess.StartedAt),
		"minutes", sess.Minutes,
	).Err()
}

func (s *stateStore) ClearSession(ctx context.Context) error {
	return s.client.Del(ctx, keySession).Err()
}

func (s *stateStore) GetDayStamp(ctx context.Context) (string, error) {
	day, err := s.client.Get(ctx, keyDayStamp).Result()
	if err == redis.Nil {
		return "", nil
	}
	return day, err
}

func (s *stateStore) SetDayStamp(ctx context.Context, day string) error {
	return s.client.Set(ctx, keyDayStamp, day, 0).Err()
}

func (s *stateStore) GetCoins(ctx context.Context) (int64, error) {
	return getInt(ctx, s.client, keyCoins)
}

// CommitBreak runs a single script so forgiveness, history, coins, and the
// session clear land together.
func (s *stateStore) CommitBreak(ctx context.Context, b storage.CompletedBreak) error {
	record, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode break record: %w", err)
	}

	script := redis.NewScript(commitBreakScript)
	keys := []string{
		keyReduction,
		keyCoins,
		keySession,
		keyBreaksDayPrefix + b.Day,
	}
	args := []interface{}{
		b.ReductionSeconds,
		b.CoinsAwarded,
		string(record),
		historyTTLSeconds,
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

type historyStore struct {
	client *redis.Client
}

// ListByDay returns the completed breaks recorded for a day stamp, in
// append order.
func (h *historyStore) ListByDay(ctx context.Context, day string) ([]storage.CompletedBreak, error) {
	raw, err := h.client.LRange(ctx, keyBreaksDayPrefix+day, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	breaks := make([]storage.CompletedBreak, 0, len(raw))
	for _, item := range raw {
		var b storage.CompletedBreak
		if err := json.Unmarshal([]byte(item), &b); err != nil {
			continue
		}
		breaks = append(breaks, b)
	}

	return breaks, nil
}

func getInt(ctx context.Context, client *redis.Client, key string) (int64, error) {
	raw, err := client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
