// Package enroll builds the employee gallery from a directory of photos.
//
// Photos are named first_last_<id>.jpg. Each photo is enhanced, the
// largest detected face is scored for quality, and five variations of it
// are embedded. Profiles with no successful variation are left out.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/facette/natsort"
	"github.com/schollz/progressbar/v3"

	"github.com/okian/facesense/internal/domain/gallery"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
)

// ErrNoFace is recorded for photos in which no face was found.
var ErrNoFace = errors.New("no face detected")

// FaceEngine detects and embeds faces.
type FaceEngine interface {
	Detect(ctx context.Context, image []byte) ([]model.BoundingBox, error)
	Embed(ctx context.Context, image []byte, boxes []model.BoundingBox) ([]model.Embedding, error)
}

var photoExts = []string{".jpg", ".jpeg", ".png"}

// Report summarises an enrollment run.
type Report struct {
	Photos   int
	Enrolled int
	Failures map[string]error
}

// Enroller turns photos into profiles.
type Enroller struct {
	engine      FaceEngine
	concurrency int
	progress    io.Writer
	log         logger.Logger
}

// Option configures an Enroller.
type Option func(*Enroller)

// WithConcurrency bounds the number of photos processed at once.
func WithConcurrency(n int) Option {
	return func(e *Enroller) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithProgress renders a progress bar to w.
func WithProgress(w io.Writer) Option {
	return func(e *Enroller) { e.progress = w }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Enroller) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an Enroller.
func New(engine FaceEngine, opts ...Option) *Enroller {
	e := &Enroller{engine: engine, concurrency: 4}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("enroll")
	}
	return e
}

// ListPhotos returns the photo file names in dir in natural order.
func ListPhotos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read photo dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(photoExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		names = append(names, e.Name())
	}
	natsort.Sort(names)
	return names, nil
}

// Run enrolls every photo in dir. Profiles keep the photo order.
func (e *Enroller) Run(ctx context.Context, dir string) (*gallery.Gallery, Report, error) {
	names, err := ListPhotos(dir)
	if err != nil {
		return nil, Report{}, err
	}
	rep := Report{Photos: len(names), Failures: make(map[string]error)}

	bar := e.newBar(len(names))
	profiles := make([]*model.EmployeeProfile, len(names))
	var mu sync.Mutex
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, name := range names {
		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p, err := e.Photo(ctx, filepath.Join(dir, name))
			mu.Lock()
			if err != nil {
				rep.Failures[name] = err
			} else {
				profiles[idx] = &p
			}
			mu.Unlock()
			_ = bar.Add(1)
		}(i, name)
	}
	wg.Wait()
	_ = bar.Finish()

	if err := ctx.Err(); err != nil {
		return nil, rep, err
	}

	var out []model.EmployeeProfile
	for _, p := range profiles {
		if p != nil {
			out = append(out, *p)
		}
	}
	rep.Enrolled = len(out)
	for name, err := range rep.Failures {
		e.log.Warn(ctx, "photo not enrolled", logger.String("file", name), logger.Error(err))
	}
	g := gallery.New(out)
	st := g.Stats()
	e.log.Info(ctx, "enrollment completed",
		logger.Int("photos", rep.Photos),
		logger.Int("enrolled", rep.Enrolled),
		logger.Int("variations", st.Variations),
		logger.Float64("average_quality", st.AverageQuality),
	)
	return g, rep, nil
}

// Photo builds one profile from the photo at path.
func (e *Enroller) Photo(ctx context.Context, path string) (model.EmployeeProfile, error) {
	name, id := gallery.ParseFilename(filepath.Base(path))

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return model.EmployeeProfile{}, fmt.Errorf("open photo: %w", err)
	}
	enhanced := Enhance(img)
	data, err := encode(enhanced)
	if err != nil {
		return model.EmployeeProfile{}, err
	}
	boxes, err := e.engine.Detect(ctx, data)
	if err != nil {
		return model.EmployeeProfile{}, fmt.Errorf("detect: %w", err)
	}
	if len(boxes) == 0 {
		return model.EmployeeProfile{}, ErrNoFace
	}
	box := largest(boxes)
	quality := Quality(imaging.Crop(enhanced, faceRect(enhanced.Bounds(), box)))

	var variants []model.Embedding
	for i, v := range Variations(enhanced, box) {
		emb, err := e.embedWhole(ctx, v)
		if err != nil {
			e.log.Debug(ctx, "variation not embedded",
				logger.String("file", filepath.Base(path)), logger.Int("variation", i+1), logger.Error(err))
			continue
		}
		variants = append(variants, emb)
	}
	if len(variants) == 0 {
		return model.EmployeeProfile{}, errors.New("no variation could be embedded")
	}
	return model.EmployeeProfile{
		Name:       name,
		EmployeeID: id,
		Variants:   variants,
		Quality:    quality,
		Source:     filepath.Base(path),
	}, nil
}

// embedWhole embeds an image that is entirely one face.
func (e *Enroller) embedWhole(ctx context.Context, img image.Image) (model.Embedding, error) {
	data, err := encode(img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	embs, err := e.engine.Embed(ctx, data, []model.BoundingBox{{Width: b.Dx(), Height: b.Dy(), Confidence: 1}})
	if err != nil {
		return nil, err
	}
	if len(embs) != 1 || !embs[0].Valid(len(embs[0])) {
		return nil, errors.New("embedder returned no usable embedding")
	}
	return embs[0], nil
}

func (e *Enroller) newBar(n int) *progressbar.ProgressBar {
	w := e.progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Enrolling employees"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
	)
}
