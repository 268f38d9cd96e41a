// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

// Package events provides a typed, in-process publish/subscribe router.
//
// A Router[T] keeps an ordered list of callbacks. Publish delivers a value
// to every callback registered when the publish began, synchronously and in
// registration order. A panicking callback is recovered and logged; it stays
// registered and the remaining callbacks still run.
//
//	r := events.NewRouter[models.RoiState]("roi")
//	unsubscribe := r.Subscribe(func(s models.RoiState) { ... })
//	defer unsubscribe()
//	r.Publish(models.RoiState{ID: "roi-1", State: "active"})
package events

import (
	"fmt"
	"sync"

	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/metrics"
)

// Callback receives published values.
type Callback[T any] func(T)

type subscription[T any] struct {
	id uint64
	fn Callback[T]
}

// Router fans values of one category out to its subscribers.
type Router[T any] struct {
	name string

	mu     sync.RWMutex
	subs   []subscription[T]
	nextID uint64
}

// NewRouter creates an empty router. The name labels logs and metrics.
func NewRouter[T any](name string) *Router[T] {
	return &Router[T]{name: name}
}

// Name returns the router's category name.
func (r *Router[T]) Name() string {
	return r.name
}

// Subscribe appends fn to the subscriber list and returns a function that
// removes exactly this subscription. Subscribing the same function twice
// yields two independent subscriptions. The returned function is idempotent.
func (r *Router[T]) Subscribe(fn Callback[T]) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscription[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Router[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			// Copy rather than shift in place: a publish in progress may
			// still be iterating the previous backing array.
			next := make([]subscription[T], 0, len(r.subs)-1)
			next = append(next, r.subs[:i]...)
			r.subs = append(next, r.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every current subscriber in registration order.
// Subscriptions added or removed by a callback take effect from the next
// Publish.
func (r *Router[T]) Publish(v T) {
	r.mu.RLock()
	snapshot := r.subs
	r.mu.RUnlock()

	for _, s := range snapshot {
		r.invoke(s, v)
	}
}

func (r *Router[T]) invoke(s subscription[T], v T) {
	defer func() {
		if p := recover(); p != nil {
			metrics.RecordSubscriberPanic(r.name)
			logging.Error().
				Str("router", r.name).
				Uint64("subscription", s.id).
				Str("panic", fmt.Sprint(p)).
				Msg("Subscriber callback panicked")
		}
	}()
	s.fn(v)
}

// Len returns the number of registered subscribers.
func (r *Router[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
