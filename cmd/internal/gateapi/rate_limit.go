package gateapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const limiterPruneThreshold = 1024

// failLimiter counts failed admin authentications per key within a sliding
// window.
type failLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
}

func newFailLimiter(max int, window time.Duration) *failLimiter {
	return &failLimiter{max: max, window: window, hits: make(map[string][]time.Time)}
}

// Blocked reports whether key is over the limit at now and for how long.
func (l *failLimiter) Blocked(key string, now time.Time) (bool, time.Duration) {
	if l == nil || key == "" {
		return false, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := keepWithin(now, l.hits[key], l.window)
	if len(kept) == 0 {
		delete(l.hits, key)
	} else {
		l.hits[key] = kept
	}
	return evaluateWindowThrottle(now, kept, l.max, l.window)
}

// Fail records a failed attempt for key.
func (l *failLimiter) Fail(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hits[key] = append(keepWithin(now, l.hits[key], l.window), now)
	if len(l.hits) > limiterPruneThreshold {
		for k, v := range l.hits {
			if kept := keepWithin(now, v, l.window); len(kept) == 0 {
				delete(l.hits, k)
			} else {
				l.hits[k] = kept
			}
		}
	}
}

func keepWithin(now time.Time, failures []time.Time, window time.Duration) []time.Time {
	cut := now.Add(-window)
	dst := failures[:0]
	for _, t := range failures {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	return dst
}

// evaluateWindowThrottle blocks once max failures fall inside the window. The
// retry delay lasts until the oldest counted failure leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)

	var (
		count  int
		oldest time.Time
	)
	for _, t := range failures {
		if !t.After(cut) {
			continue
		}
		count++
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	if count < max {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "Too many failed authentication attempts")
}
