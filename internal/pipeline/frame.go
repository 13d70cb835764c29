package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"

	"github.com/okian/facesense/internal/adapters/camera"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
	"github.com/okian/facesense/pkg/metrics"
)

// Frame scales used before detection.
const (
	CountScale   = 0.25
	CloseUpScale = 0.5
	CrowdScale   = 0.2

	lowConfidence = 60.0
	crowdFaces    = 3
)

// ErrDecodeFrame is returned when a frame is not a decodable image.
var ErrDecodeFrame = errors.New("decode frame")

// Submit hands a probe to whatever evaluates it, typically a queue.
type Submit func(ctx context.Context, p model.Probe) error

// ScaleFor picks the detection scale from a first face count. A single
// uncertain face is looked at closer; crowds are shrunk further.
func ScaleFor(faces int, confidence float64) float64 {
	switch {
	case faces == 1 && confidence < lowConfidence:
		return CloseUpScale
	case faces >= crowdFaces:
		return CrowdScale
	default:
		return CountScale
	}
}

// Extract detects and embeds every face in frame. Boxes on the returned
// probes are in full-frame coordinates.
func (p *Pipeline) Extract(ctx context.Context, frame camera.Frame) ([]model.Probe, error) {
	img, err := imaging.Decode(bytes.NewReader(frame.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFrame, err)
	}

	data, err := encodeScaled(img, CountScale)
	if err != nil {
		return nil, err
	}
	boxes, err := p.engine.Detect(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	scale := ScaleFor(len(boxes), topConfidence(boxes))
	if scale != CountScale {
		if data, err = encodeScaled(img, scale); err != nil {
			return nil, err
		}
		if boxes, err = p.engine.Detect(ctx, data); err != nil {
			return nil, fmt.Errorf("detect: %w", err)
		}
	}
	metrics.RecordFacesDetected(len(boxes))
	if len(boxes) == 0 {
		return nil, nil
	}

	embeddings, err := p.engine.Embed(ctx, data, boxes)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	at := frame.CapturedAt
	if at.IsZero() {
		at = p.now()
	}
	probes := make([]model.Probe, 0, len(embeddings))
	for i, e := range embeddings {
		probes = append(probes, p.newProbe(e, unscale(boxes[i], scale), at))
	}
	return probes, nil
}

// ProcessFrame runs one frame through the pipeline synchronously. Frames
// skipped by the detection cadence return nil decisions.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame camera.Frame) ([]model.Decision, error) {
	if !p.tick() {
		return nil, nil
	}
	probes, err := p.Extract(ctx, frame)
	if err != nil {
		return nil, err
	}
	metrics.RecordFrameProcessed()
	decisions := make([]model.Decision, 0, len(probes))
	for _, pr := range probes {
		decisions = append(decisions, p.Evaluate(ctx, pr))
	}
	return decisions, nil
}

// Run pulls frames from src every interval until ctx is done. Probes go to
// submit when it is set and are evaluated inline otherwise. Cancellation
// is only observed between frames.
func (p *Pipeline) Run(ctx context.Context, src camera.Source, interval time.Duration, submit Submit) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info(ctx, "recognition loop started", logger.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			p.log.Info(ctx, "recognition loop stopped", logger.Int64("frames", int64(p.Frames())))
			return ctx.Err()
		case <-ticker.C:
		}

		frame, ok := src.Frame()
		if !ok {
			continue
		}
		if !p.tick() {
			continue
		}
		probes, err := p.Extract(ctx, frame)
		if err != nil {
			p.log.Warn(ctx, "frame dropped", logger.Int64("seq", int64(frame.Seq)), logger.Error(err))
			continue
		}
		metrics.RecordFrameProcessed()
		for _, pr := range probes {
			if submit == nil {
				p.Evaluate(ctx, pr)
				continue
			}
			if err := submit(ctx, pr); err != nil {
				p.log.Warn(ctx, "probe not queued", logger.String("probe_id", pr.ID), logger.Error(err))
			}
		}
	}
}

// tick counts a frame, sweeps the cooldown on schedule and reports whether
// this frame should be detected.
func (p *Pipeline) tick() bool {
	n := p.frames.Add(1)
	if n%uint64(p.sweepEvery) == 0 {
		p.Sweep(p.now())
	}
	if (n-1)%uint64(p.detectEvery) != 0 {
		metrics.RecordFrameSkipped()
		return false
	}
	return true
}

func encodeScaled(img image.Image, scale float64) ([]byte, error) {
	w := int(math.Round(float64(img.Bounds().Dx()) * scale))
	if w < 1 {
		w = 1
	}
	small := imaging.Resize(img, w, 0, imaging.Linear)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode scaled frame: %w", err)
	}
	return buf.Bytes(), nil
}

func topConfidence(boxes []model.BoundingBox) float64 {
	best := 0.0
	for _, b := range boxes {
		best = max(best, b.Confidence*100)
	}
	return best
}

func unscale(b model.BoundingBox, scale float64) model.BoundingBox {
	f := func(v int) int { return int(math.Round(float64(v) / scale)) }
	return model.BoundingBox{X: f(b.X), Y: f(b.Y), Width: f(b.Width), Height: f(b.Height), Confidence: b.Confidence}
}
