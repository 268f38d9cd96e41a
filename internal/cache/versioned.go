// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package cache

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/fleetwatch/internal/metrics"
)

// RenderFunc produces the encoded body for a version.
type RenderFunc func() ([]byte, error)

type entry struct {
	version uint64
	body    []byte
}

// Stats tracks cache performance.
type Stats struct {
	Hits    int64
	Misses  int64
	Errors  int64
	Formats int
}

// Versioned caches the latest rendering per format.
type Versioned struct {
	mu      sync.RWMutex
	entries map[string]entry
	stats   Stats

	flight singleflight.Group
}

// NewVersioned creates an empty cache.
func NewVersioned() *Versioned {
	return &Versioned{entries: make(map[string]entry)}
}

// Get returns the body cached for format at version, rendering it on a miss.
// Render errors are returned and not cached. The returned slice is shared
// and must not be modified.
func (c *Versioned) Get(format string, version uint64, render RenderFunc) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[format]
	c.mu.RUnlock()
	if ok && e.version == version {
		c.record(format, "hit")
		return e.body, nil
	}

	key := format + ":" + strconv.FormatUint(version, 10)
	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		body, err := render()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// An older render finishing late must not replace a newer one.
		if cur, ok := c.entries[format]; !ok || cur.version <= version {
			c.entries[format] = entry{version: version, body: body}
		}
		c.mu.Unlock()
		return body, nil
	})
	if err != nil {
		c.record(format, "error")
		return nil, err
	}
	c.record(format, "miss")
	return v.([]byte), nil
}

// Invalidate drops every cached rendering.
func (c *Versioned) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

func (c *Versioned) record(format, result string) {
	c.mu.Lock()
	switch result {
	case "hit":
		c.stats.Hits++
	case "miss":
		c.stats.Misses++
	default:
		c.stats.Errors++
	}
	c.mu.Unlock()
	metrics.RecordResponseCache(format, result)
}

// GetStats returns a copy of the statistics.
func (c *Versioned) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Formats = len(c.entries)
	return s
}

// HitRate returns the hit rate as a percentage.
func (c *Versioned) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total) * 100.0
}
