// Package bolt provides a bbolt-backed Store for single-box deployments
// where every process opens the same file. bbolt serializes writers with a
// file lock, so the open timeout matters: a process that cannot grab the
// lock within it fails fast instead of hanging the OS callback.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/breezelab/gust/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketState   = "state"
	bucketHistory = "break_history"

	stateKeyCounters  = "counters"
	stateKeyLimit     = "limit"
	stateKeyReduction = "reduction"
	stateKeyShield    = "shield"
	stateKeySession   = "session"
	stateKeyDayStamp  = "day"
	stateKeyCoins     = "coins"
)

// Store implements the storage.Store interface using bbolt.
type Store struct {
	db      *bbolt.DB
	state   *stateStore
	history *historyStore
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketState, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:      db,
		state:   &stateStore{db: db},
		history: &historyStore{db: db},
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// State returns the StateStore implementation.
func (s *Store) State() storage.StateStore {
	return s.state
}

// History returns the HistoryStore implementation.
func (s *Store) History() storage.HistoryStore {
	return s.history
}

// Signals returns a bus that drops every emit. The signal contract is
// best-effort with no delivery guarantee, and every consumer reconciles at
// its own wake points, so always-dropped delivery is a valid (degenerate)
// implementation. Deployments that want wake-ups use the redis backend.
func (s *Store) Signals() storage.SignalBus {
	return noopSignals{}
}

type stateStore struct {
	db *bbolt.DB
}

func (s *stateStore) GetCounters(ctx context.Context) (storage.UsageCounters, error) {
	var c storage.UsageCounters
	err := getJSON(s.db, stateKeyCounters, &c)
	if err == storage.ErrNotFound {
		return storage.UsageCounters{}, nil
	}
	return c, err
}

func (s *stateStore) SetCounters(ctx context.Context, c storage.UsageCounters) error {
	return putJSON(s.db, stateKeyCounters, c)
}

func (s *stateStore) GetLimit(ctx context.Context) (*storage.LimitConfig, error) {
	var l storage.LimitConfig
	if err := getJSON(s.db, stateKeyLimit, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *stateStore) SetLimit(ctx context.Context, l storage.LimitConfig) error {
	return putJSON(s.db, stateKeyLimit, l)
}

func (s *stateStore) GetReduction(ctx context.Context) (int64, error) {
	return s.getInt(stateKeyReduction)
}

func (s *stateStore) AddReduction(ctx context.Context, seconds int64) (int64, error) {
	var total int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketState))
		total = decodeInt(b.Get([]byte(stateKeyReduction))) + seconds
		return b.Put([]byte(stateKeyReduction), encodeInt(total))
	})
	return total, err
}

func (s *stateStore) SetReduction(ctx context.Context, seconds int64) error {
	return s.putInt(stateKeyReduction, seconds)
}

func (s *stateStore) GetShield(ctx context.Context) (storage.ShieldState, error) {
	var st storage.ShieldState
	err := getJSON(s.db, stateKeyShield, &st)
	if err == storage.ErrNotFound {
		return storage.ShieldState{}, nil
	}
	return st, err
}

func (s *stateStore) SetShield(ctx context.Context, st storage.ShieldState) error {
	return putJSON(s.db, stateKeyShield, st)
}

func (s *stateStore) GetSession(ctx context.Context) (*storage.BreakSession, error) {
	var sess storage.BreakSession
	if err := getJSON(s.db, stateKeySession, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *stateStore) SetSession(ctx context.Context, sess storage.BreakSession) error {
	return putJSON(s.db, stateKeySession, sess)
}

func (s *stateStore) ClearSession(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Delete([]byte(stateKeySession))
	})
}

func (s *stateStore) GetDayStamp(ctx context.Context) (string, error) {
	var day string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucketState)).Get([]byte(stateKeyDayStamp)); v != nil {
			day = string(v)
		}
		return nil
	})
	return day, err
}

func (s *stateStore) SetDayStamp(ctx context.Context, day string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Put([]byte(stateKeyDayStamp), []byte(day))
	})
}

func (s *stateStore) GetCoins(ctx context.Context) (int64, error) {
	return s.getInt(stateKeyCoins)
}

// CommitBreak applies a completed break in one write transaction; bolt
// gives us real multi-key atomicity here.
func (s *stateStore) CommitBreak(ctx context.Context, b storage.CompletedBreak) error {
	record, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode break record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		state := tx.Bucket([]byte(bucketState))

		if b.ReductionSeconds > 0 {
			total := decodeInt(state.Get([]byte(stateKeyReduction))) + b.ReductionSeconds
			if err := state.Put([]byte(stateKeyReduction), encodeInt(total)); err != nil {
				return err
			}
		}

		if b.CoinsAwarded > 0 {
			coins := decodeInt(state.Get([]byte(stateKeyCoins))) + b.CoinsAwarded
			if err := state.Put([]byte(stateKeyCoins), encodeInt(coins)); err != nil {
				return err
			}
		}

		history := tx.Bucket([]byte(bucketHistory))
		seq, err := history.NextSequence()
		if err != nil {
			return err
		}
		if err := history.Put(historyKey(b.Day, seq), record); err != nil {
			return err
		}

		return state.Delete([]byte(stateKeySession))
	})
}

func (s *stateStore) getInt(key string) (int64, error) {
	var v int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		v = decodeInt(tx.Bucket([]byte(bucketState)).Get([]byte(key)))
		return nil
	})
	return v, err
}

func (s *stateStore) putInt(key string, v int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Put([]byte(key), encodeInt(v))
	})
}

type historyStore struct {
	db *bbolt.DB
}

// ListByDay returns completed breaks for a day stamp in append order (the
// per-day sequence suffix keeps the cursor ordering stable).
func (h *historyStore) ListByDay(ctx context.Context, day string) ([]storage.CompletedBreak, error) {
	var breaks []storage.CompletedBreak
	prefix := []byte(day + "/")

	err := h.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketHistory)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var b storage.CompletedBreak
			if err := json.Unmarshal(v, &b); err != nil {
				continue
			}
			breaks = append(breaks, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if breaks == nil {
		breaks = []storage.CompletedBreak{}
	}
	return breaks, nil
}

type noopSignals struct{}

func (noopSignals) Emit(ctx context.Context, name string) error {
	return nil
}

func (noopSignals) Subscribe(ctx context.Context, fn func(name string)) (func(), error) {
	return func() {}, nil
}

func historyKey(day string, seq uint64) []byte {
	key := make([]byte, 0, len(day)+9)
	key = append(key, day...)
	key = append(key, '/')
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

func getJSON(db *bbolt.DB, key string, out any) error {
	return db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketState)).Get([]byte(key))
		if v == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(v, out)
	})
}

func putJSON(db *bbolt.DB, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Put([]byte(key), data)
	})
}

func encodeInt(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

func decodeInt(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
