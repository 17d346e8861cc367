// Package debounce coalesces bursts of calls into a single trailing-edge call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer fires fn with the most recent payload once delay has elapsed with
// no further calls. Each Call cancels and reschedules the timer, so only the
// last payload in a burst is delivered.
type Debouncer[T any] struct {
	mu     sync.Mutex
	delay  time.Duration
	fn     func(T)
	timer  *time.Timer
	latest T
}

func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Call records v as the latest payload and restarts the quiet-interval timer.
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	v := d.latest
	d.mu.Unlock()
	d.fn(v)
}

// Flush fires the pending call immediately, if there is one.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	pending := d.timer != nil
	if pending {
		d.timer.Stop()
	}
	d.mu.Unlock()
	if pending {
		d.fire()
	}
}

// Stop cancels any pending call.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Keyed maintains one debouncer per key, so that edits to different entities
// coalesce independently (the annotation manager uses one key per annotation).
type Keyed[K comparable, T any] struct {
	mu        sync.Mutex
	delay     time.Duration
	fn        func(K, T)
	debouncer map[K]*Debouncer[T]
}

func NewKeyed[K comparable, T any](delay time.Duration, fn func(K, T)) *Keyed[K, T] {
	return &Keyed[K, T]{
		delay:     delay,
		fn:        fn,
		debouncer: map[K]*Debouncer[T]{},
	}
}

func (k *Keyed[K, T]) Call(key K, v T) {
	k.mu.Lock()
	d := k.debouncer[key]
	if d == nil {
		d = New(k.delay, func(v T) { k.fn(key, v) })
		k.debouncer[key] = d
	}
	k.mu.Unlock()
	d.Call(v)
}

// Cancel drops any pending call for key.
func (k *Keyed[K, T]) Cancel(key K) {
	k.mu.Lock()
	d := k.debouncer[key]
	delete(k.debouncer, key)
	k.mu.Unlock()
	if d != nil {
		d.Stop()
	}
}

// StopAll cancels every pending call.
func (k *Keyed[K, T]) StopAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, d := range k.debouncer {
		d.Stop()
		delete(k.debouncer, key)
	}
}
