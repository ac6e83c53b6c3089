package light

import (
	"context"
	"sync"

	"github.com/dokzlo13/lightlink/internal/pubsub"
)

// Store holds the single canonical State for one device instance.
//
// All mutation goes through Set or Update; every subscriber of Changes
// observes the same strictly ordered sequence of snapshots. The store
// performs no validation: callers supply already-validated snapshots.
type Store struct {
	mu      sync.Mutex
	current State
	feed    *pubsub.Feed[State]
}

// NewStore creates a store seeded with the initial snapshot for caps.
func NewStore(caps Caps) *Store {
	s := &Store{
		current: Initial(caps),
		feed:    pubsub.NewFeed[State](),
	}
	s.feed.Publish(s.current)
	return s
}

// Current returns the latest snapshot.
func (s *Store) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set replaces the canonical snapshot and notifies all subscribers.
func (s *Store) Set(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
	s.feed.Publish(next)
}

// Update atomically derives the next snapshot from the current one.
// It returns the stored result. This is the only safe way to apply a
// delta when other writers may interleave.
func (s *Store) Update(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = fn(s.current)
	s.feed.Publish(s.current)
	return s.current
}

// Changes returns a feed of snapshots that immediately yields the
// current value and then every later one, until ctx is cancelled or the
// store is closed.
func (s *Store) Changes(ctx context.Context) <-chan State {
	return s.feed.Subscribe(ctx)
}

// Close completes every Changes feed. Idempotent.
func (s *Store) Close() {
	s.feed.Close()
}
