// Package cooldown suppresses repeated acceptances of the same identity
// inside a short window.
package cooldown

import (
	"sync"
	"time"
)

// DefaultWindow is the minimum gap between two accepted sightings.
const DefaultWindow = 5 * time.Second

// Tracker records when each identity was last accepted.
type Tracker interface {
	// ShouldAccept is false iff identity was accepted less than the window ago.
	ShouldAccept(identity string, now time.Time) bool

	// RecordAccept stores now as identity's last acceptance.
	RecordAccept(identity string, now time.Time)

	// TryAccept checks and records under a single lock. It returns true
	// when the acceptance was recorded.
	TryAccept(identity string, now time.Time) bool

	// Sweep drops entries older than twice the window and returns how many.
	Sweep(now time.Time) int

	Size() int
	Window() time.Duration
}

// inMemoryTracker implements Tracker with a mutex-guarded map.
type inMemoryTracker struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
}

// NewTracker creates an empty tracker. Each pipeline owns its own.
func NewTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{window: DefaultWindow}
	for _, opt := range opts {
		opt(t)
	}
	t.last = make(map[string]time.Time)
	return t
}

func (t *inMemoryTracker) ShouldAccept(identity string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldAcceptLocked(identity, now)
}

func (t *inMemoryTracker) shouldAcceptLocked(identity string, now time.Time) bool {
	ts, ok := t.last[identity]
	if !ok {
		return true
	}
	return now.Sub(ts) >= t.window
}

func (t *inMemoryTracker) RecordAccept(identity string, now time.Time) {
	t.mu.Lock()
	t.last[identity] = now
	t.mu.Unlock()
}

func (t *inMemoryTracker) TryAccept(identity string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.shouldAcceptLocked(identity, now) {
		return false
	}
	t.last[identity] = now
	return true
}

func (t *inMemoryTracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	maxAge := 2 * t.window
	removed := 0
	for id, ts := range t.last {
		if now.Sub(ts) > maxAge {
			delete(t.last, id)
			removed++
		}
	}
	return removed
}

func (t *inMemoryTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}

func (t *inMemoryTracker) Window() time.Duration { return t.window }
