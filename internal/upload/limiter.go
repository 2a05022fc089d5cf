// SPDX-License-Identifier: MIT

package upload

import (
	"sync"

	"golang.org/x/time/rate"
)

// StationLimiter applies a token bucket per station to chunk ingest, so a
// single tenant cannot exhaust the receiver. A zero rate disables limiting.
type StationLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewStationLimiter creates a per-station limiter with the given refill rate
// (chunks per second) and burst.
func NewStationLimiter(r float64, burst int) *StationLimiter {
	return &StationLimiter{
		limiters: make(map[int64]*rate.Limiter),
		rate:     rate.Limit(r),
		burst:    burst,
	}
}

// Allow reports whether the station may ingest another chunk right now.
func (l *StationLimiter) Allow(stationID int64) bool {
	if l == nil || l.rate == 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[stationID]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[stationID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
