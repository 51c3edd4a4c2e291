// Package store provides EventStore implementations: a volatile in-memory
// store for tests and demos, and a durable SQLite store in the sqlite
// subpackage. Both honor the optimistic-versioning contract defined in core.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentcal/core"
)

// InMemory is a volatile EventStore keeping rows in process-local maps. It is
// safe for concurrent access and enforces the same compare-and-swap semantics
// as the durable store so concurrency tests exercise the real contract. Every
// event crossing the boundary is cloned to prevent external mutation of
// internal state.
type InMemory struct {
	mu     sync.RWMutex
	events map[string]*core.Event
	// idempotency maps owner+key to event id for propose de-duplication.
	idempotency map[idemKey]string
	prefs       map[string]*core.BookingPreferences
	now         func() time.Time
}

type idemKey struct {
	owner string
	key   string
}

// NewInMemory constructs an empty in-memory event store.
func NewInMemory() *InMemory {
	return &InMemory{
		events:      make(map[string]*core.Event),
		idempotency: make(map[idemKey]string),
		prefs:       make(map[string]*core.BookingPreferences),
		now:         time.Now,
	}
}

// WithClock injects a time source for tests and returns the store.
func (s *InMemory) WithClock(now func() time.Time) *InMemory {
	s.now = now
	return s
}

// PutEvent inserts (version 0) or compare-and-swaps (version n) an event,
// returning the stored copy with its version bumped and timestamps set.
func (s *InMemory) PutEvent(_ context.Context, event *core.Event) (*core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.events[event.ID]
	if event.Version == 0 {
		if exists {
			return nil, core.NewVersionConflict(current.Version)
		}
		// Mirror the durable store's unique index: one event per owner and
		// idempotency key.
		if event.IdempotencyKey != "" {
			if id, ok := s.idempotency[idemKey{owner: event.Owner, key: event.IdempotencyKey}]; ok {
				if holder, ok := s.events[id]; ok {
					return nil, core.NewVersionConflict(holder.Version)
				}
			}
		}
	} else {
		if !exists {
			return nil, core.ErrEventNotFound
		}
		if current.Version != event.Version {
			return nil, core.NewVersionConflict(current.Version)
		}
	}

	stored := event.Clone()
	stored.Version = event.Version + 1
	stored.UpdatedAt = s.now()
	if exists {
		stored.CreatedAt = current.CreatedAt
	} else {
		stored.CreatedAt = stored.UpdatedAt
	}
	s.events[stored.ID] = stored
	if stored.IdempotencyKey != "" {
		s.idempotency[idemKey{owner: stored.Owner, key: stored.IdempotencyKey}] = stored.ID
	}
	return stored.Clone(), nil
}

// GetEvent returns a clone of the event with the given id.
func (s *InMemory) GetEvent(_ context.Context, id string) (*core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, core.ErrEventNotFound
	}
	return event.Clone(), nil
}

// ListEvents returns a snapshot of the owner's events matching the filter.
func (s *InMemory) ListEvents(_ context.Context, owner string, filter core.EventFilter) ([]*core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*core.Event
	for _, event := range s.events {
		if event.Owner != owner || !filter.Matches(event) {
			continue
		}
		result = append(result, event.Clone())
	}
	return result, nil
}

// FindByIdempotencyKey returns the event previously created with the given
// caller-supplied token.
func (s *InMemory) FindByIdempotencyKey(_ context.Context, owner, key string) (*core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idempotency[idemKey{owner: owner, key: key}]
	if !ok {
		return nil, core.ErrEventNotFound
	}
	event, ok := s.events[id]
	if !ok {
		return nil, core.ErrEventNotFound
	}
	return event.Clone(), nil
}

// GetPreferences returns the owner's preferences, creating defaults on first use.
func (s *InMemory) GetPreferences(_ context.Context, owner string) (*core.BookingPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, ok := s.prefs[owner]
	if !ok {
		prefs = core.DefaultPreferences()
		s.prefs[owner] = prefs
	}
	return prefs.Clone(), nil
}

// PutPreferences stores a clone of the owner's preferences.
func (s *InMemory) PutPreferences(_ context.Context, owner string, prefs *core.BookingPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[owner] = prefs.Clone()
	return nil
}
