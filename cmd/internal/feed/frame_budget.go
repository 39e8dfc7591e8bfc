package feed

import (
	"errors"
	"sync"
	"time"
)

var errSubscribeRate = errors.New("too many subscribe frames")

// frameBudget meters inbound frames on one feed connection over a sliding
// window. Every frame counts against the connection total. Subscribe frames
// also count against a smaller budget because each one replaces the guild
// filter the hub reads on every fan-out.
type frameBudget struct {
	mu         sync.Mutex
	window     time.Duration
	frames     []time.Time
	maxFrames  int
	subscribes []time.Time
	maxSubs    int
}

func newFrameBudget(maxFrames, maxSubs int, window time.Duration) *frameBudget {
	if maxFrames <= 0 {
		maxFrames = rateLimitEvents
	}
	if maxSubs <= 0 {
		maxSubs = rateLimitSubscribes
	}
	if maxSubs > maxFrames {
		maxSubs = maxFrames
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &frameBudget{
		window:     window,
		frames:     make([]time.Time, 0, maxFrames),
		maxFrames:  maxFrames,
		subscribes: make([]time.Time, 0, maxSubs),
		maxSubs:    maxSubs,
	}
}

// Frame records an inbound frame at now. False means the connection went
// over its total budget and should be closed.
func (b *frameBudget) Frame(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ok bool
	b.frames, ok = take(b.frames, b.maxFrames, now, now.Add(-b.window))
	return ok
}

// Subscribe records a subscribe frame at now. A refusal is reported to the
// client; the connection stays open.
func (b *frameBudget) Subscribe(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ok bool
	b.subscribes, ok = take(b.subscribes, b.maxSubs, now, now.Add(-b.window))
	return ok
}

func take(events []time.Time, limit int, now, cut time.Time) ([]time.Time, bool) {
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	if len(dst) >= limit {
		return dst, false
	}
	return append(dst, now), true
}
