// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

// Package store holds the latest known value per entity key in arrival order.
package store

import (
	"sync"

	"github.com/tomtom215/fleetwatch/internal/metrics"
)

// Keyed is an ordered collection unique by key. An upsert of an existing key
// replaces the element in place; a new key is appended. Last write by
// arrival wins.
type Keyed[K comparable, T any] struct {
	name  string
	keyFn func(T) K

	mu      sync.RWMutex
	items   []T
	index   map[K]int
	version uint64
}

// NewKeyed creates an empty store. keyFn extracts the identity of an item;
// name labels the store's size metric.
func NewKeyed[K comparable, T any](name string, keyFn func(T) K) *Keyed[K, T] {
	return &Keyed[K, T]{
		name:  name,
		keyFn: keyFn,
		index: make(map[K]int),
	}
}

// ApplyUpsert merges item into the store. It reports whether the key was new.
func (s *Keyed[K, T]) ApplyUpsert(item T) (inserted bool) {
	key := s.keyFn(item)

	s.mu.Lock()
	if i, ok := s.index[key]; ok {
		s.items[i] = item
	} else {
		s.index[key] = len(s.items)
		s.items = append(s.items, item)
		inserted = true
	}
	s.version++
	n := len(s.items)
	s.mu.Unlock()

	if inserted {
		metrics.SetStoreEntries(s.name, n)
	}
	return inserted
}

// Snapshot returns a copy of the current contents in order.
func (s *Keyed[K, T]) Snapshot() []T {
	out, _ := s.SnapshotVersion()
	return out
}

// SnapshotVersion returns a copy of the contents and the version they were
// read at, taken under one lock.
func (s *Keyed[K, T]) SnapshotVersion() ([]T, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out, s.version
}

// Get returns the item stored under key.
func (s *Keyed[K, T]) Get(key K) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[key]; ok {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// Len returns the number of distinct keys.
func (s *Keyed[K, T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Version increments on every mutation. Consumers compare versions to
// detect change without copying the contents.
func (s *Keyed[K, T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Clear removes every item.
func (s *Keyed[K, T]) Clear() {
	s.mu.Lock()
	s.items = nil
	s.index = make(map[K]int)
	s.version++
	s.mu.Unlock()

	metrics.SetStoreEntries(s.name, 0)
}
