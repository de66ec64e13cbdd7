package platform

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/breezelab/gust/internal/storage"
)

// SimMonitor is an in-memory Monitor that can be driven manually. Advance
// accumulates simulated usage and emits a Crossing for each registered
// threshold passed, in order, the way the OS delivers them one at a time.
type SimMonitor struct {
	mu         sync.Mutex
	registered []int64
	cumulative int64
	delivered  map[int64]bool
	events     chan Crossing

	// RegisterCalls counts Register invocations so tests can assert that
	// reconciliation with an unchanged set never re-registers.
	RegisterCalls int
}

// NewSimMonitor creates a monitor simulator with a buffered event feed.
func NewSimMonitor() *SimMonitor {
	return &SimMonitor{
		delivered: make(map[int64]bool),
		events:    make(chan Crossing, 64),
	}
}

// Register replaces the registration set. Crossings already delivered for
// a threshold are not re-delivered unless the set is re-registered, which
// resets delivery state exactly like a fresh OS registration.
func (m *SimMonitor) Register(ctx context.Context, thresholds []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RegisterCalls++
	m.registered = append([]int64(nil), thresholds...)
	sort.Slice(m.registered, func(i, j int) bool { return m.registered[i] < m.registered[j] })
	m.delivered = make(map[int64]bool)
	return nil
}

// Registered returns the current registration set.
func (m *SimMonitor) Registered(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.registered...), nil
}

// Events exposes the crossing feed the monitor process consumes.
func (m *SimMonitor) Events() <-chan Crossing {
	return m.events
}

// Advance adds simulated usage seconds and delivers any newly crossed
// thresholds.
func (m *SimMonitor) Advance(seconds int64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cumulative += seconds
	for _, th := range m.registered {
		if m.cumulative >= th && !m.delivered[th] {
			m.delivered[th] = true
			select {
			case m.events <- Crossing{ThresholdSeconds: th, CumulativeSeconds: m.cumulative, At: now}:
			default:
				// Feed full: drop, like a callback the process missed.
			}
		}
	}
}

// ResetUsage zeroes the simulated cumulative usage (day boundary).
func (m *SimMonitor) ResetUsage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cumulative = 0
	m.delivered = make(map[int64]bool)
}

// SimSurface is an in-memory enforcement surface.
type SimSurface struct {
	mu         sync.Mutex
	blocked    map[storage.Token]bool
	exceptions map[storage.Token]bool
}

// NewSimSurface creates an empty surface.
func NewSimSurface() *SimSurface {
	return &SimSurface{
		blocked:    make(map[storage.Token]bool),
		exceptions: make(map[storage.Token]bool),
	}
}

// Block adds identifiers to the block set. Re-adding an identifier clears
// any exception previously carved out for it, matching a from-scratch
// reconciliation re-including excepted targets.
func (s *SimSurface) Block(ctx context.Context, ids []storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.blocked[id] = true
		delete(s.exceptions, id)
	}
	return nil
}

// Unblock removes one identifier from the block set.
func (s *SimSurface) Unblock(ctx context.Context, id storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, id)
	return nil
}

// UnblockCategory records an exception for an identifier blocked via its
// category rule.
func (s *SimSurface) UnblockCategory(ctx context.Context, id storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, id)
	s.exceptions[id] = true
	return nil
}

// Blocked returns the currently blocked identifiers.
func (s *SimSurface) Blocked(ctx context.Context) ([]storage.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.Token, 0, len(s.blocked))
	for id := range s.blocked {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
