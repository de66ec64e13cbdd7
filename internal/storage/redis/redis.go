package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/breezelab/gust/internal/config"
	"github.com/breezelab/gust/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store implements the storage.Store interface using Redis. It is the
// backend of choice when the processes should also receive cross-process
// wake-ups: the signal bus rides on pub/sub.
type Store struct {
	client  *redis.Client
	state   *stateStore
	history *historyStore
	signals *signalBus
}

// Open creates a new Redis-backed storage instance.
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry a port (tests pass "host:port" directly).
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:  client,
		state:   &stateStore{client: client},
		history: &historyStore{client: client},
		signals: &signalBus{client: client},
	}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// State returns the StateStore implementation.
func (s *Store) State() storage.StateStore {
	return s.state
}

// History returns the HistoryStore implementation.
func (s *Store) History() storage.HistoryStore {
	return s.history
}

// Signals returns the pub/sub-backed SignalBus.
func (s *Store) Signals() storage.SignalBus {
	return s.signals
}
