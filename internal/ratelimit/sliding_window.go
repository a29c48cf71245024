package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow implements sliding window rate limiting per identity.
// Each identity keeps the timestamps of its admitted requests inside the
// trailing window; the prune-check-record sequence runs under one lock so
// concurrent callers can never admit more than maxPerWindow in a window.
type SlidingWindow struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	hits         map[string][]time.Time
}

func NewSlidingWindow(maxPerWindow int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		maxPerWindow: maxPerWindow,
		window:       window,
		hits:         make(map[string][]time.Time),
	}
}

// Allow reports whether a request from identity at instant now is admitted.
// A denied request does not consume a slot.
func (sw *SlidingWindow) Allow(identity string, now time.Time) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	recent := prune(sw.hits[identity], now, sw.window)
	if len(recent) >= sw.maxPerWindow {
		sw.hits[identity] = recent
		return false
	}

	sw.hits[identity] = append(recent, now)
	return true
}

// Limit returns the configured maximum admissions per window.
func (sw *SlidingWindow) Limit() int { return sw.maxPerWindow }

// Window returns the configured window length.
func (sw *SlidingWindow) Window() time.Duration { return sw.window }

// prune drops timestamps that have aged out of the window.
// Entries are ordered oldest first, so we only need the cut index.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := 0
	for cut < len(ts) && now.Sub(ts[cut]) >= window {
		cut++
	}
	return ts[cut:]
}

// Sweep removes identities whose windows have fully expired, bounding map
// growth for long-lived processes. Safe to call concurrently with Allow.
func (sw *SlidingWindow) Sweep(now time.Time) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for identity, ts := range sw.hits {
		if len(prune(ts, now, sw.window)) == 0 {
			delete(sw.hits, identity)
		}
	}
}

// StartSweeper launches a background goroutine sweeping at the given
// interval until stop is closed.
func (sw *SlidingWindow) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sw.Sweep(time.Now())
			case <-stop:
				return
			}
		}
	}()
}
