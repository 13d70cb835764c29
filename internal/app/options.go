package service

import (
	"time"

	"github.com/okian/facesense/internal/adapters/camera"
	"github.com/okian/facesense/internal/domain/gallery"
	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/pipeline"
	"github.com/okian/facesense/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock injects the time source shared by the pipeline and ledger.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRepository uses repo instead of opening the configured database.
func WithRepository(repo ledger.Repository) Option {
	return func(s *Service) { s.repo = repo }
}

// WithGallery uses g instead of loading the gallery file.
func WithGallery(g *gallery.Gallery) Option {
	return func(s *Service) { s.gallery = g }
}

// WithFaceEngine replaces the embedder client.
func WithFaceEngine(e pipeline.FaceEngine) Option {
	return func(s *Service) { s.engine = e }
}

// WithFrameSource replaces the camera capturer. A nil source disables the
// frame loop, leaving only submitted probes.
func WithFrameSource(src camera.Source) Option {
	return func(s *Service) {
		s.source = src
		s.sourceSet = true
	}
}
