// Package pipeline turns camera frames into attendance ledger writes.
//
// A frame is scaled, passed to the face engine for detection and
// embedding, and every embedding becomes a probe. Evaluate matches a probe
// against the gallery, applies the adaptive threshold and the cooldown,
// and records accepted sightings in the ledger.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/facesense/internal/domain/cooldown"
	"github.com/okian/facesense/internal/domain/gallery"
	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/domain/matcher"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/internal/domain/threshold"
	"github.com/okian/facesense/pkg/logger"
	"github.com/okian/facesense/pkg/metrics"
)

// FaceEngine finds and encodes faces in an encoded image.
type FaceEngine interface {
	Detect(ctx context.Context, image []byte) ([]model.BoundingBox, error)
	Embed(ctx context.Context, image []byte, boxes []model.BoundingBox) ([]model.Embedding, error)
}

// Recorder persists accepted detections.
type Recorder interface {
	RecordDetection(ctx context.Context, d model.Detection) (ledger.Outcome, error)
}

// Pipeline owns the per-camera recognition state.
type Pipeline struct {
	engine   FaceEngine
	recorder Recorder
	matcher  *matcher.Matcher
	cooldown cooldown.Tracker
	gallery  atomic.Pointer[gallery.Gallery]

	now          func() time.Time
	checkoutHour int
	detectEvery  int
	sweepEvery   int
	source       string
	log          logger.Logger

	frames atomic.Uint64

	mu   sync.Mutex
	last []model.Decision
}

const recentDecisions = 32

// New creates a pipeline. A nil gallery behaves as an empty one.
func New(engine FaceEngine, recorder Recorder, g *gallery.Gallery, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:       engine,
		recorder:     recorder,
		now:          time.Now,
		checkoutHour: 12,
		detectEvery:  2,
		sweepEvery:   100,
		source:       "camera",
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("pipeline")
	}
	if p.cooldown == nil {
		p.cooldown = cooldown.NewTracker()
	}
	p.matcher = matcher.New(matcher.WithLogger(p.log))
	p.SetGallery(g)
	return p
}

// SetGallery swaps the gallery used for matching.
func (p *Pipeline) SetGallery(g *gallery.Gallery) {
	if g == nil {
		g = gallery.Empty()
	}
	p.gallery.Store(g)
	st := g.Stats()
	metrics.UpdateGallery(st.Profiles, st.Variations, st.AverageQuality)
}

// Gallery returns the gallery in use.
func (p *Pipeline) Gallery() *gallery.Gallery { return p.gallery.Load() }

// Cooldown exposes the pipeline's tracker.
func (p *Pipeline) Cooldown() cooldown.Tracker { return p.cooldown }

// StatusAt returns IN before the checkout hour and OUT from it on.
func (p *Pipeline) StatusAt(t time.Time) model.Status {
	if t.Hour() < p.checkoutHour {
		return model.StatusIn
	}
	return model.StatusOut
}

// Sweep drops stale cooldown entries.
func (p *Pipeline) Sweep(now time.Time) int {
	n := p.cooldown.Sweep(now)
	metrics.RecordCooldownSwept(n)
	metrics.UpdateCooldownEntries(p.cooldown.Size())
	return n
}

// Evaluate decides what to do with one probe and records accepted
// sightings. It never fails; ledger errors are logged and reported through
// Decision.Recorded. Cooldown and IN/OUT use the capture time of the probe,
// or the clock when it has none.
func (p *Pipeline) Evaluate(ctx context.Context, probe model.Probe) model.Decision {
	g := p.gallery.Load()
	result := p.matcher.Match(ctx, probe.Embedding, g.Profiles())

	d := model.Decision{
		ProbeID:   probe.ID,
		Match:     result,
		Threshold: threshold.For(result.Quality),
		Accuracy:  threshold.Normalize(result.Accuracy),
		Display:   result.Identity,
	}
	if d.Accuracy < threshold.Floor {
		d.Display = model.UnknownIdentity
	}

	at := probe.CapturedAt
	if at.IsZero() {
		at = p.now()
	}
	switch {
	case result.IsUnknown():
		d.Outcome = metrics.OutcomeUnknown
	case d.Accuracy < d.Threshold:
		d.Outcome = metrics.OutcomeBelowThreshold
		p.log.Debug(ctx, "match below adaptive threshold",
			logger.String("identity", result.Identity),
			logger.Int("accuracy", d.Accuracy),
			logger.Int("threshold", d.Threshold),
			logger.Float64("quality", result.Quality),
		)
	case !g.Known(result.Identity):
		d.Outcome = metrics.OutcomeNotEnrolled
	case !p.cooldown.TryAccept(result.Identity, at):
		d.Outcome = metrics.OutcomeCooldown
	default:
		d.Outcome = metrics.OutcomeAccepted
		d.Accepted = true
		d.Status = p.StatusAt(at)
		det := model.NewDetection(result.Identity, result.EmployeeID, at, d.Status)
		if _, err := p.recorder.RecordDetection(ctx, det); err != nil {
			p.log.Warn(ctx, "attendance not recorded", logger.String("identity", result.Identity), logger.Error(err))
		} else {
			d.Recorded = true
			p.log.Info(ctx, "attendance logged",
				logger.String("identity", result.Identity),
				logger.Int("accuracy", d.Accuracy),
				logger.Float64("quality", result.Quality),
				logger.String("status", string(d.Status)),
			)
		}
		metrics.UpdateCooldownEntries(p.cooldown.Size())
	}
	metrics.RecordMatchOutcome(d.Outcome)
	p.remember(d)
	return d
}

// newProbe stamps an embedding with an id and capture metadata.
func (p *Pipeline) newProbe(e model.Embedding, box model.BoundingBox, at time.Time) model.Probe {
	return model.Probe{ID: uuid.NewString(), Source: p.source, Embedding: e, Box: box, CapturedAt: at}
}

// NewProbe wraps an embedding submitted from outside the frame loop.
func (p *Pipeline) NewProbe(e model.Embedding, source string) model.Probe {
	pr := p.newProbe(e, model.BoundingBox{}, p.now())
	if source != "" {
		pr.Source = source
	}
	return pr
}

// LastDecisions returns the most recent decisions, newest first.
func (p *Pipeline) LastDecisions() []model.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Decision, len(p.last))
	for i, d := range p.last {
		out[len(out)-1-i] = d
	}
	return out
}

// Frames returns the number of frames seen so far.
func (p *Pipeline) Frames() uint64 { return p.frames.Load() }

func (p *Pipeline) remember(d model.Decision) {
	p.mu.Lock()
	p.last = append(p.last, d)
	if over := len(p.last) - recentDecisions; over > 0 {
		p.last = append(p.last[:0], p.last[over:]...)
	}
	p.mu.Unlock()
}
