// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package streaming

import "time"

// DefaultRetryDelays is the reconnect schedule after an unexpected loss.
var DefaultRetryDelays = []time.Duration{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
}

// RetryPolicy decides how long to wait before reconnect attempt n (zero
// based). ok=false stops reconnecting and closes the channel.
type RetryPolicy interface {
	NextDelay(attempt int) (delay time.Duration, ok bool)
}

// ScheduleRetryPolicy walks a fixed delay schedule. When RepeatLast is set
// the final delay is reused indefinitely; otherwise the channel gives up once
// the schedule is exhausted.
type ScheduleRetryPolicy struct {
	Delays     []time.Duration
	RepeatLast bool
}

// DefaultRetryPolicy returns the default schedule, repeating its last delay.
func DefaultRetryPolicy() *ScheduleRetryPolicy {
	delays := make([]time.Duration, len(DefaultRetryDelays))
	copy(delays, DefaultRetryDelays)
	return &ScheduleRetryPolicy{Delays: delays, RepeatLast: true}
}

// NextDelay implements RetryPolicy.
func (p *ScheduleRetryPolicy) NextDelay(attempt int) (time.Duration, bool) {
	if len(p.Delays) == 0 || attempt < 0 {
		return 0, false
	}
	if attempt < len(p.Delays) {
		return p.Delays[attempt], true
	}
	if p.RepeatLast {
		return p.Delays[len(p.Delays)-1], true
	}
	return 0, false
}
