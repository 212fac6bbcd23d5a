package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// Store keeps session states in memory, keyed by a random UUID. Each update
// replaces the whole State value under the store lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

type entry struct {
	state   State
	touched time.Time
}

// NewStore creates a store whose sessions expire after ttl of inactivity.
// A ttl <= 0 keeps sessions until deleted.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create stores st under a new ID.
func (s *Store) Create(st State) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id.String()] = &entry{state: st, touched: s.now()}
	return id.String(), nil
}

// Get returns the current state of id.
func (s *Store) Get(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return State{}, err
	}
	e.touched = s.now()
	return e.state, nil
}

// Update replaces the state of id with fn(current). When fn returns an error
// the stored state is left untouched and the error is returned.
func (s *Store) Update(id string, fn func(State) (State, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return State{}, err
	}
	next, err := fn(e.state)
	if err != nil {
		return e.state, err
	}
	e.state = next
	e.touched = s.now()
	return next, nil
}

// Dispatch applies a through Reduce. Actions rejected by Check return the
// error without changing the stored state.
func (s *Store) Dispatch(id string, a Action) (State, error) {
	return s.Update(id, func(cur State) (State, error) {
		if err := Check(cur, a); err != nil {
			return cur, err
		}
		return Reduce(cur, a), nil
	})
}

// Delete removes id and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, e := range s.sessions {
		if e.touched.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("Expired sessions removed", "count", n, "remaining", s.Len())
			}
		}
	}
}

func (s *Store) lookup(id string) (*entry, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.ttl > 0 && e.touched.Before(s.now().Add(-s.ttl)) {
		delete(s.sessions, id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}
