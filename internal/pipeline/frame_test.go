package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/okian/facesense/internal/adapters/camera"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/internal/pipeline"
	"github.com/okian/facesense/pkg/logger"
	"github.com/okian/facesense/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeEngine answers detect with boxes and records the widths it was sent.
type fakeEngine struct {
	mu     sync.Mutex
	boxes  func(width int) []model.BoundingBox
	embed  model.Embedding
	widths []int
	embeds int
}

func width(data []byte) int {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return -1
	}
	return img.Bounds().Dx()
}

func (f *fakeEngine) Detect(_ context.Context, data []byte) ([]model.BoundingBox, error) {
	w := width(data)
	f.mu.Lock()
	f.widths = append(f.widths, w)
	f.mu.Unlock()
	return f.boxes(w), nil
}

func (f *fakeEngine) Embed(_ context.Context, _ []byte, boxes []model.BoundingBox) ([]model.Embedding, error) {
	f.mu.Lock()
	f.embeds++
	f.mu.Unlock()
	out := make([]model.Embedding, len(boxes))
	for i := range boxes {
		out[i] = f.embed
	}
	return out, nil
}

func jpegFrame(seq uint64) camera.Frame {
	img := imaging.New(400, 300, color.NRGBA{R: 120, G: 110, B: 100, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		panic(err)
	}
	return camera.Frame{Data: buf.Bytes(), Seq: seq, CapturedAt: time.Date(2024, 3, 11, 9, 15, 0, 0, time.Local)}
}

func faces(n int, conf float64) []model.BoundingBox {
	out := make([]model.BoundingBox, n)
	for i := range out {
		out[i] = model.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20, Confidence: conf}
	}
	return out
}

func TestScaleFor(t *testing.T) {
	Convey("Detection scale adapts to the first count", t, func() {
		So(pipeline.ScaleFor(1, 40), ShouldEqual, pipeline.CloseUpScale)
		So(pipeline.ScaleFor(1, 90), ShouldEqual, pipeline.CountScale)
		So(pipeline.ScaleFor(0, 0), ShouldEqual, pipeline.CountScale)
		So(pipeline.ScaleFor(2, 10), ShouldEqual, pipeline.CountScale)
		So(pipeline.ScaleFor(3, 99), ShouldEqual, pipeline.CrowdScale)
	})
}

func TestExtract(t *testing.T) {
	metrics.SetEnabled(false)
	ctx := context.Background()

	Convey("Given a single uncertain face", t, func() {
		eng := &fakeEngine{boxes: func(int) []model.BoundingBox { return faces(1, 0.4) }, embed: model.Embedding{0, 0}}
		p := pipeline.New(eng, &failingRecorder{}, nil, pipeline.WithLogger(logger.Nop()))

		probes, err := p.Extract(ctx, jpegFrame(1))
		So(err, ShouldBeNil)

		Convey("The frame is detected again at half scale", func() {
			So(eng.widths, ShouldResemble, []int{100, 200})
			So(probes, ShouldHaveLength, 1)
		})

		Convey("Boxes are mapped back to full-frame coordinates", func() {
			So(probes[0].Box.X, ShouldEqual, 20)
			So(probes[0].Box.Width, ShouldEqual, 40)
			So(probes[0].ID, ShouldNotBeEmpty)
			So(probes[0].Source, ShouldEqual, "camera")
		})
	})

	Convey("Given a confident pair of faces", t, func() {
		eng := &fakeEngine{boxes: func(int) []model.BoundingBox { return faces(2, 0.9) }}
		p := pipeline.New(eng, &failingRecorder{}, nil, pipeline.WithLogger(logger.Nop()))

		probes, err := p.Extract(ctx, jpegFrame(1))
		So(err, ShouldBeNil)
		So(eng.widths, ShouldResemble, []int{100})
		So(probes, ShouldHaveLength, 2)
		So(probes[0].ID, ShouldNotEqual, probes[1].ID)
	})

	Convey("Given no faces", t, func() {
		eng := &fakeEngine{boxes: func(int) []model.BoundingBox { return nil }}
		p := pipeline.New(eng, &failingRecorder{}, nil, pipeline.WithLogger(logger.Nop()))

		probes, err := p.Extract(ctx, jpegFrame(1))
		So(err, ShouldBeNil)
		So(probes, ShouldBeEmpty)
		So(eng.embeds, ShouldEqual, 0)
	})

	Convey("Given bytes that are not an image", t, func() {
		p := pipeline.New(&fakeEngine{}, &failingRecorder{}, nil, pipeline.WithLogger(logger.Nop()))
		_, err := p.Extract(ctx, camera.Frame{Data: []byte("nope")})
		So(errors.Is(err, pipeline.ErrDecodeFrame), ShouldBeTrue)
	})
}

func TestProcessFrame(t *testing.T) {
	metrics.SetEnabled(false)
	ctx := context.Background()

	Convey("Given a pipeline that detects every second frame", t, func() {
		eng := &fakeEngine{boxes: func(int) []model.BoundingBox { return faces(1, 0.9) }, embed: model.Embedding{0.3, 0}}
		rec := &failingRecorder{}
		p := pipeline.New(eng, rec, janeGallery(9),
			pipeline.WithLogger(logger.Nop()),
			pipeline.WithDetectEvery(2),
			pipeline.WithClock(func() time.Time { return time.Date(2024, 3, 11, 9, 15, 0, 0, time.Local) }),
		)

		first, err := p.ProcessFrame(ctx, jpegFrame(1))
		So(err, ShouldBeNil)
		second, err := p.ProcessFrame(ctx, jpegFrame(2))
		So(err, ShouldBeNil)

		So(first, ShouldHaveLength, 1)
		So(first[0].Display, ShouldEqual, "Jane Doe")
		So(second, ShouldBeNil)
		So(p.Frames(), ShouldEqual, 2)
		So(eng.embeds, ShouldEqual, 1)
	})
}

type oneShot struct {
	mu   sync.Mutex
	left []camera.Frame
}

func (o *oneShot) Frame() (camera.Frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.left) == 0 {
		return camera.Frame{}, false
	}
	f := o.left[0]
	o.left = o.left[1:]
	return f, true
}

func TestRun(t *testing.T) {
	metrics.SetEnabled(false)

	Convey("Given a source with one frame and a submit hook", t, func() {
		eng := &fakeEngine{boxes: func(int) []model.BoundingBox { return faces(2, 0.9) }, embed: model.Embedding{0, 0}}
		p := pipeline.New(eng, &failingRecorder{}, nil, pipeline.WithLogger(logger.Nop()))
		src := &oneShot{left: []camera.Frame{jpegFrame(1)}}

		got := make(chan model.Probe, 4)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- p.Run(ctx, src, 5*time.Millisecond, func(_ context.Context, pr model.Probe) error {
				got <- pr
				return nil
			})
		}()

		first := <-got
		second := <-got
		cancel()

		So(first.ID, ShouldNotEqual, second.ID)
		So(<-done, ShouldEqual, context.Canceled)
	})
}
