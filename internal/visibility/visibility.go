// Package visibility holds the fixed-domain set of chart kinds that are
// currently rendered on the dashboard.
package visibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinytelemetry/canopy/internal/model"
	"go.uber.org/zap"
)

// ErrUnknownKind is returned when a kind outside the visibility domain is
// toggled individually.
var ErrUnknownKind = errors.New("visibility: unknown component kind")

const persistTimeout = 5 * time.Second

// SelectAllState is the three-state value of a "select all" control.
type SelectAllState string

const (
	SelectAll  SelectAllState = "all"
	SelectSome SelectAllState = "some"
	SelectNone SelectAllState = "none"
)

// Stats counts visible kinds against the domain size.
type Stats struct {
	Visible int `json:"visible"`
	Total   int `json:"total"`
}

// SelectAll derives the state of a "select all" checkbox.
func (s Stats) SelectAll() SelectAllState {
	switch {
	case s.Visible == 0:
		return SelectNone
	case s.Visible == s.Total:
		return SelectAll
	default:
		return SelectSome
	}
}

// Set is a total map from every visibility kind to a boolean. The map is
// replaced wholesale on every mutation so readers never see a partial state.
type Set struct {
	mu     sync.RWMutex
	state  map[model.ComponentKind]bool
	store  model.KVStore
	logger *zap.Logger
}

// New returns a set holding the first-run defaults and no persistence.
func New() *Set {
	return &Set{state: model.DefaultVisibility(), logger: zap.NewNop()}
}

// Load restores the set from store, falling back to defaults when nothing was
// stored yet. A stored map missing kinds is completed with defaults and
// unknown stored keys are dropped.
func Load(ctx context.Context, store model.KVStore, logger *zap.Logger) (*Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Set{state: model.DefaultVisibility(), store: store, logger: logger.Named("visibility")}
	if store == nil {
		return s, nil
	}

	raw, ok, err := store.Get(ctx, model.VisibilityStorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load visibility: %w", model.ErrPersistence, err)
	}
	if !ok {
		return s, nil
	}

	var stored map[model.ComponentKind]bool
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.logger.Warn("discarding unreadable visibility state", zap.Error(err))
		return s, nil
	}
	for _, kind := range model.VisibilityKinds() {
		if v, ok := stored[kind]; ok {
			s.state[kind] = v
		}
	}
	return s, nil
}

// Toggle flips one kind and returns its new value.
func (s *Set) Toggle(kind model.ComponentKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.state[kind]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	next := s.cloneLocked()
	next[kind] = !cur
	return !cur, s.replaceLocked(next)
}

// SetVisible sets one kind.
func (s *Set) SetVisible(kind model.ComponentKind, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	next := s.cloneLocked()
	next[kind] = visible
	return s.replaceLocked(next)
}

// SetExact makes exactly the given kinds visible and hides every other kind.
// Kinds outside the domain are ignored.
func (s *Set) SetExact(kinds []model.ComponentKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[model.ComponentKind]bool, len(s.state))
	for kind := range s.state {
		next[kind] = false
	}
	for _, kind := range kinds {
		if _, ok := next[kind]; ok {
			next[kind] = true
		}
	}
	return s.replaceLocked(next)
}

// ToggleAll sets every kind to visible.
func (s *Set) ToggleAll(visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[model.ComponentKind]bool, len(s.state))
	for kind := range s.state {
		next[kind] = visible
	}
	return s.replaceLocked(next)
}

// IsVisible reports whether kind is currently visible.
func (s *Set) IsVisible(kind model.ComponentKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[kind]
}

// VisibleKinds returns the visible kinds in domain order.
func (s *Set) VisibleKinds() []model.ComponentKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ComponentKind
	for _, kind := range model.VisibilityKinds() {
		if s.state[kind] {
			out = append(out, kind)
		}
	}
	return out
}

// State returns a copy of the full map.
func (s *Set) State() map[model.ComponentKind]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneLocked()
}

// Stats returns the visible and total counts.
func (s *Set) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.state)}
	for _, v := range s.state {
		if v {
			st.Visible++
		}
	}
	return st
}

func (s *Set) cloneLocked() map[model.ComponentKind]bool {
	out := make(map[model.ComponentKind]bool, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// replaceLocked swaps in next and writes it through to the store. The
// in-memory change is kept when the write fails.
func (s *Set) replaceLocked(next map[model.ComponentKind]bool) error {
	s.state = next
	if s.store == nil {
		return nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: encode visibility: %w", model.ErrPersistence, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.Put(ctx, model.VisibilityStorageKey, string(data)); err != nil {
		s.logger.Warn("persisting visibility failed", zap.Error(err))
		return fmt.Errorf("%w: save visibility: %w", model.ErrPersistence, err)
	}
	return nil
}
