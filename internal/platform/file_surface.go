package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/breezelab/gust/internal/storage"
)

// FileSurface is an enforcement surface whose block set persists as a
// JSON file. The shield commands run one-shot, the way the OS wakes that
// process context, so an in-memory surface would forget every reconcile
// and unlock the moment the process exits.
type FileSurface struct {
	mu   sync.Mutex
	path string
}

type surfaceState struct {
	Blocked    []storage.Token `json:"blocked"`
	Exceptions []storage.Token `json:"exceptions"`
}

// NewFileSurface creates a surface persisting at path. The file is
// created on first mutation.
func NewFileSurface(path string) *FileSurface {
	return &FileSurface{path: path}
}

func (s *FileSurface) load() (surfaceState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return surfaceState{}, nil
		}
		return surfaceState{}, fmt.Errorf("reading surface state: %w", err)
	}

	var st surfaceState
	if err := json.Unmarshal(data, &st); err != nil {
		return surfaceState{}, fmt.Errorf("decoding surface state: %w", err)
	}
	return st, nil
}

func (s *FileSurface) save(st surfaceState) error {
	sort.Slice(st.Blocked, func(i, j int) bool { return st.Blocked[i] < st.Blocked[j] })
	sort.Slice(st.Exceptions, func(i, j int) bool { return st.Exceptions[i] < st.Exceptions[j] })

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding surface state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing surface state: %w", err)
	}
	return nil
}

// Block adds identifiers to the block set. Re-adding an identifier clears
// any exception previously carved out for it, matching a from-scratch
// reconciliation re-including excepted targets.
func (s *FileSurface) Block(ctx context.Context, ids []storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}

	blocked := toSet(st.Blocked)
	exceptions := toSet(st.Exceptions)
	for _, id := range ids {
		blocked[id] = true
		delete(exceptions, id)
	}
	return s.save(surfaceState{Blocked: toSlice(blocked), Exceptions: toSlice(exceptions)})
}

// Unblock removes one identifier from the block set.
func (s *FileSurface) Unblock(ctx context.Context, id storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}

	blocked := toSet(st.Blocked)
	delete(blocked, id)
	return s.save(surfaceState{Blocked: toSlice(blocked), Exceptions: st.Exceptions})
}

// UnblockCategory records an exception for an identifier blocked via its
// category rule.
func (s *FileSurface) UnblockCategory(ctx context.Context, id storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}

	blocked := toSet(st.Blocked)
	exceptions := toSet(st.Exceptions)
	delete(blocked, id)
	exceptions[id] = true
	return s.save(surfaceState{Blocked: toSlice(blocked), Exceptions: toSlice(exceptions)})
}

// Blocked returns the currently blocked identifiers.
func (s *FileSurface) Blocked(ctx context.Context) ([]storage.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return st.Blocked, nil
}

func toSet(ids []storage.Token) map[storage.Token]bool {
	set := make(map[storage.Token]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func toSlice(set map[storage.Token]bool) []storage.Token {
	out := make([]storage.Token, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
