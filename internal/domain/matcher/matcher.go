// Package matcher scores a probe embedding against the enrolled gallery.
//
// Every variant of every profile is compared by Euclidean distance. The
// raw accuracy round((1-d)*100) is weighted by the profile's enrollment
// quality and the single best weighted score wins; on ties the first
// profile in gallery order is kept.
package matcher

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
	"github.com/okian/facesense/pkg/metrics"
)

// Quality weighting constants.
const (
	qualityFactorBase  = 0.7
	qualityFactorSlope = 0.3
	qualityScale       = 10.0
	qualityFactorMin   = 0.7
	qualityFactorMax   = 1.3
)

// Matcher finds the best gallery match for a probe.
type Matcher struct {
	log logger.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger used for malformed variant reports.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Get().Named("matcher")
	}
	return m
}

// QualityFactor maps an enrollment quality to its weight in [0.7, 1.3].
func QualityFactor(quality float64) float64 {
	if math.IsNaN(quality) {
		return qualityFactorMin
	}
	f := qualityFactorBase + qualityFactorSlope*(quality/qualityScale)
	return math.Max(qualityFactorMin, math.Min(f, qualityFactorMax))
}

// RawAccuracy converts a Euclidean distance into a percentage. The result
// is negative for distances above 1.
func RawAccuracy(distance float64) float64 {
	return math.RoundToEven((1 - distance) * 100)
}

// Match scores probe against profiles. It never fails: an empty gallery,
// an unusable probe or a non-positive best score yield model.Unknown().
func (m *Matcher) Match(ctx context.Context, probe model.Embedding, profiles []model.EmployeeProfile) model.MatchResult {
	start := time.Now()
	defer func() { metrics.RecordMatchLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	dim := len(probe)
	if !probe.Valid(dim) {
		m.log.Warn(ctx, "probe embedding rejected", logger.Int("dimension", dim))
		return model.Unknown()
	}

	best := model.Unknown()
	for i := range profiles {
		p := &profiles[i]
		factor := QualityFactor(p.Quality)
		for vi, variant := range p.Variants {
			if !variant.Valid(dim) {
				metrics.RecordMalformedVariant()
				m.log.Warn(ctx, "skipping malformed variant",
					logger.String("employee", p.Name),
					logger.Int("variant", vi),
					logger.Int("dimension", len(variant)),
					logger.Int("expected", dim),
				)
				continue
			}

			d := floats.Distance(probe, variant, 2)
			raw := RawAccuracy(d)
			weighted := raw * factor
			if weighted > best.Accuracy {
				best = model.MatchResult{
					Identity:    p.Name,
					EmployeeID:  p.EmployeeID,
					Accuracy:    weighted,
					RawAccuracy: raw,
					Quality:     p.Quality,
					Distance:    d,
				}
			}
		}
	}

	if best.Accuracy <= 0 {
		return model.Unknown()
	}

	m.log.Debug(ctx, "best match",
		logger.String("identity", best.Identity),
		logger.Float64("raw_accuracy", best.RawAccuracy),
		logger.Float64("weighted_accuracy", best.Accuracy),
		logger.Float64("quality", best.Quality),
	)
	return best
}
