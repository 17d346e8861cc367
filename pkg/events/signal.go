// Package events provides synchronous typed signals for listeners to subscribe to.
package events

import "sync"

// Handle identifies a registered listener, so that it can be removed later.
// Functions cannot be compared for equality, so Listen hands out a handle instead.
type Handle int64

// Signal sends events of type T to its listeners.
// Emit is synchronous: every listener runs on the emitting goroutine before
// Emit returns. Render scheduling depends on listeners observing a mutation in
// the same tick that it happened, so Emit must never defer delivery.
type Signal[T any] struct {
	mu        sync.Mutex
	nextID    Handle
	listeners []listener[T]
}

type listener[T any] struct {
	id Handle
	fn func(T)
}

// Listen registers fn and returns a handle for removal.
func (s *Signal[T]) Listen(fn func(T)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners = append(s.listeners, listener[T]{id: s.nextID, fn: fn})
	return s.nextID
}

// Remove unregisters a listener. Removing an unknown handle is a no-op.
func (s *Signal[T]) Remove(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == h {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Emit sends v to all listeners.
// The listener list is copied under the lock, and listeners are invoked outside
// it, so a listener may add or remove listeners without deadlocking.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	list := make([]listener[T], len(s.listeners))
	copy(list, s.listeners)
	s.mu.Unlock()

	for _, l := range list {
		l.fn(v)
	}
}

// Clear removes all listeners.
func (s *Signal[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = nil
}

func (s *Signal[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
