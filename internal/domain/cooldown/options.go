package cooldown

import "time"

// Option applies a configuration option to the tracker.
type Option func(*inMemoryTracker)

// WithWindow sets the cooldown window. Non-positive values are ignored.
func WithWindow(window time.Duration) Option {
	return func(t *inMemoryTracker) {
		if window > 0 {
			t.window = window
		}
	}
}
