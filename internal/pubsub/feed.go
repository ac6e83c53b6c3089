// Package pubsub provides a replay-latest broadcast feed.
// A Feed delivers every published value to every subscriber in publish
// order, and replays the most recent value to late subscribers.
package pubsub

import (
	"context"
	"sync"
)

// Feed is a broadcast channel with last-value replay.
// Publishers never block: each subscriber drains its own FIFO queue.
type Feed[T any] struct {
	mu        sync.Mutex
	subs      map[int]*subscriber[T]
	nextID    int
	last      T
	hasLast   bool
	closed    bool
	closeOnce sync.Once
}

// subscriber holds the pending queue for a single subscription.
type subscriber[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
	done   chan struct{}
}

func newSubscriber[T any]() *subscriber[T] {
	s := &subscriber[T]{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// push appends a value to the pending queue. No-op after close.
func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, v)
	s.cond.Signal()
}

// pop blocks until a value is available or the subscription is closed.
func (s *subscriber[T]) pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		var zero T
		return zero, false
	}
	v := s.queue[0]
	s.queue = s.queue[1:]
	return v, true
}

// close wakes the drain goroutine and discards pending values.
func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
	s.cond.Broadcast()
}

// NewFeed creates an empty feed with no replay value.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]*subscriber[T])}
}

// Publish broadcasts v to all current subscribers and records it for
// replay. Values published after Close are dropped.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.last = v
	f.hasLast = true
	for _, sub := range f.subs {
		sub.push(v)
	}
}

// Latest returns the most recent published value, if any.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

// Subscribe returns a channel that first yields the latest value (when one
// exists) and then every later published value, in order. The channel is
// closed when ctx is cancelled or the feed is closed.
func (f *Feed[T]) Subscribe(ctx context.Context) <-chan T {
	out := make(chan T)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(out)
		return out
	}
	sub := newSubscriber[T]()
	if f.hasLast {
		sub.push(f.last)
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	// Cancellation watcher: tears down the subscription when ctx ends
	// before the feed does.
	go func() {
		select {
		case <-ctx.Done():
			f.unsubscribe(id)
			sub.close()
		case <-sub.done:
		}
	}()

	go func() {
		defer close(out)
		for {
			v, ok := sub.pop()
			if !ok {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				f.unsubscribe(id)
				sub.close()
				return
			}
		}
	}()

	return out
}

func (f *Feed[T]) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

// Close completes every subscription. Idempotent; further publishes are
// silently dropped.
func (f *Feed[T]) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		subs := f.subs
		f.subs = make(map[int]*subscriber[T])
		f.mu.Unlock()

		for _, sub := range subs {
			sub.close()
		}
	})
}
