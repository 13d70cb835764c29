package pipeline

import (
	"time"

	"github.com/okian/facesense/internal/domain/cooldown"
	"github.com/okian/facesense/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithClock injects the time source used for cooldown and IN/OUT decisions.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithCheckoutHour sets the local hour from which detections count as OUT.
func WithCheckoutHour(hour int) Option {
	return func(p *Pipeline) {
		if hour >= 0 && hour <= 23 {
			p.checkoutHour = hour
		}
	}
}

// WithDetectEvery runs detection on every nth frame only.
func WithDetectEvery(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.detectEvery = n
		}
	}
}

// WithSweepEvery sweeps the cooldown tracker every n frames.
func WithSweepEvery(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.sweepEvery = n
		}
	}
}

// WithCooldown replaces the pipeline's own cooldown tracker.
func WithCooldown(t cooldown.Tracker) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.cooldown = t
		}
	}
}

// WithSourceName labels probes produced by this pipeline.
func WithSourceName(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.source = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}
