package camera

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/okian/facesense/pkg/logger"
	"github.com/okian/facesense/pkg/metrics"
)

// Frame is one encoded image (JPEG or PNG) from a source.
type Frame struct {
	Data       []byte
	Seq        uint64
	CapturedAt time.Time
}

// Source hands out the latest frame. The bool is false when no frame has
// arrived since the previous call.
type Source interface {
	Frame() (Frame, bool)
}

// Status reports the capture state for health checks.
type Status struct {
	Kind        string    `json:"kind"`
	Source      string    `json:"source"`
	Connected   bool      `json:"connected"`
	Frames      uint64    `json:"frames"`
	LastFrameAt time.Time `json:"last_frame_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Finished    bool      `json:"finished"`
}

// Capturer reads frames in the background and keeps only the newest.
type Capturer struct {
	spec    Spec
	log     logger.Logger
	now     func() time.Time
	backoff time.Duration
	open    func(ctx context.Context, spec Spec) (reader, error)

	mu        sync.Mutex
	latest    Frame
	handedOut uint64
	status    Status

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.log = l
		}
	}
}

// WithReconnectBackoff sets the pause before reopening a failed source.
func WithReconnectBackoff(d time.Duration) Option {
	return func(c *Capturer) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithClock sets the clock used to stamp frames.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCapturer creates a capturer for spec. Call Start to begin reading.
func NewCapturer(spec Spec, opts ...Option) *Capturer {
	c := &Capturer{
		spec:    spec,
		now:     time.Now,
		backoff: 2 * time.Second,
		open:    openReader,
		status:  Status{Kind: spec.Kind.String(), Source: spec.Redacted()},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("camera")
	}
	return c
}

// Start launches the read loop. It returns immediately.
func (c *Capturer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop ends the read loop and waits for it.
func (c *Capturer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Frame returns the newest frame if it has not been handed out yet.
func (c *Capturer) Frame() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest.Seq == 0 || c.latest.Seq == c.handedOut {
		return Frame{}, false
	}
	c.handedOut = c.latest.Seq
	return c.latest, true
}

// Status returns a snapshot of the capture state.
func (c *Capturer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Capturer) run(ctx context.Context) {
	for ctx.Err() == nil {
		r, err := c.open(ctx, c.spec)
		if err != nil {
			c.fail(ctx, err)
			if !c.sleep(ctx) {
				return
			}
			continue
		}
		c.log.Info(ctx, "camera opened", logger.String("kind", c.spec.Kind.String()), logger.String("source", c.spec.Redacted()))

		err = c.consume(ctx, r)
		_ = r.Close()

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			c.mu.Lock()
			c.status.Finished = true
			c.status.Connected = false
			c.mu.Unlock()
			metrics.UpdateCameraConnected(false)
			c.log.Info(ctx, "camera source exhausted")
			return
		default:
			c.fail(ctx, err)
			if !c.sleep(ctx) {
				return
			}
		}
	}
}

func (c *Capturer) consume(ctx context.Context, r reader) error {
	for {
		data, err := r.Read(ctx)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		c.mu.Lock()
		seq := c.latest.Seq + 1
		c.latest = Frame{Data: data, Seq: seq, CapturedAt: c.now()}
		c.status.Connected = true
		c.status.Frames = seq
		c.status.LastFrameAt = c.latest.CapturedAt
		c.status.LastError = ""
		c.mu.Unlock()
		metrics.UpdateCameraConnected(true)
	}
}

func (c *Capturer) fail(ctx context.Context, err error) {
	c.mu.Lock()
	c.status.Connected = false
	c.status.LastError = err.Error()
	c.mu.Unlock()
	metrics.UpdateCameraConnected(false)
	c.log.Warn(ctx, "camera read failed, reconnecting", logger.Error(err), logger.Duration("backoff", c.backoff))
}

func (c *Capturer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}
