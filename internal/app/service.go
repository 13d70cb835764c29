// Package service wires the recognition pipeline, the attendance ledger
// and their adapters into one runnable unit, and serves the HTTP API's
// dependencies.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/okian/facesense/internal/adapters/camera"
	"github.com/okian/facesense/internal/adapters/embedder"
	"github.com/okian/facesense/internal/adapters/mq/queue"
	"github.com/okian/facesense/internal/adapters/mq/worker"
	"github.com/okian/facesense/internal/adapters/repository"
	"github.com/okian/facesense/internal/config"
	"github.com/okian/facesense/internal/domain/cooldown"
	"github.com/okian/facesense/internal/domain/gallery"
	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/internal/pipeline"
	"github.com/okian/facesense/pkg/logger"
	"github.com/okian/facesense/pkg/metrics"
)

// Sentinel errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// Service owns every long-lived component.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	now    func() time.Time
	logger logger.Logger

	repo      ledger.Repository
	ownsRepo  bool
	gallery   *gallery.Gallery
	engine    pipeline.FaceEngine
	source    camera.Source
	sourceSet bool

	capturer  *camera.Capturer
	pipeline  *pipeline.Pipeline
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	scheduler *gocron.Scheduler

	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	loopDone  chan struct{}
}

// New constructs a Service from cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start opens storage, loads the gallery and starts the camera, the frame
// loop, the workers and the scheduled jobs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting attendance service...")

	if s.repo == nil {
		repo, err := repository.Open(ctx, repository.Settings{
			Driver:       s.cfg.DBDriver,
			DSN:          s.cfg.DBDSN,
			MaxOpenConns: s.cfg.DBMaxOpenConns,
			MaxIdleConns: s.cfg.DBMaxIdleConns,
			Logger:       s.logger.Named("gorm"),
		})
		if err != nil {
			return fmt.Errorf("open ledger storage: %w", err)
		}
		s.repo = repo
		s.ownsRepo = true
	}

	g, err := s.loadGallery(ctx)
	if err != nil {
		s.closeRepo(ctx)
		return err
	}

	if s.engine == nil {
		s.engine = embedder.New(s.cfg.EmbedderURL, embedder.WithTimeout(s.cfg.EmbedderTimeout()))
	}

	led := ledger.New(s.repo,
		ledger.WithTimeout(s.cfg.LedgerTimeout()),
		ledger.WithClock(s.now),
		ledger.WithLogger(s.logger.Named("ledger")),
	)
	s.pipeline = pipeline.New(s.engine, led, g,
		pipeline.WithClock(s.now),
		pipeline.WithCheckoutHour(s.cfg.CheckoutHour),
		pipeline.WithDetectEvery(s.cfg.DetectEvery),
		pipeline.WithSweepEvery(s.cfg.SweepEveryFrames),
		pipeline.WithCooldown(cooldown.NewTracker(cooldown.WithWindow(s.cfg.Cooldown()))),
		pipeline.WithSourceName(s.cfg.CameraKind),
		pipeline.WithLogger(s.logger.Named("pipeline")),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	s.pool = worker.NewPool(s.cfg.WorkerCount, s.queue, s.pipeline, worker.WithLogger(s.logger.Named("worker")))
	s.pool.Start(runCtx)

	if !s.sourceSet {
		spec, err := s.cameraSpec()
		if err != nil {
			cancel()
			s.closeRepo(ctx)
			return err
		}
		s.capturer = camera.NewCapturer(spec, camera.WithLogger(s.logger.Named("camera")))
		s.capturer.Start(runCtx)
		s.source = s.capturer
	}

	s.loopDone = make(chan struct{})
	if s.source != nil {
		go func() {
			defer close(s.loopDone)
			_ = s.pipeline.Run(runCtx, s.source, s.cfg.FrameInterval(), s.enqueue)
		}()
	} else {
		close(s.loopDone)
	}

	if err := s.startScheduler(runCtx); err != nil && s.scheduler == nil {
		s.logger.Warn(ctx, "scheduler not started", logger.Error(err))
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "attendance service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.Int("employees", g.Len()),
		logger.String("db_driver", s.cfg.DBDriver),
	)
	return nil
}

// Stop shuts components down in reverse order of Start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping attendance service...")

	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}
	s.cancel()
	<-s.loopDone
	if s.capturer != nil {
		s.capturer.Stop()
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker shutdown", logger.Error(err))
	}
	s.closeRepo(ctx)

	s.started = false
	s.logger.Info(ctx, "attendance service stopped")
}

func (s *Service) closeRepo(ctx context.Context) {
	if !s.ownsRepo || s.repo == nil {
		return
	}
	if err := s.repo.Close(); err != nil {
		s.logger.Warn(ctx, "closing ledger storage", logger.Error(err))
	}
	s.repo = nil
}

func (s *Service) loadGallery(ctx context.Context) (*gallery.Gallery, error) {
	if s.gallery != nil {
		return s.gallery, nil
	}
	g, err := gallery.Load(s.cfg.GalleryPath)
	switch {
	case errors.Is(err, gallery.ErrNoGallery):
		s.logger.Warn(ctx, "no gallery found; every face will be Unknown until enrollment runs",
			logger.String("path", s.cfg.GalleryPath))
		g = gallery.Empty()
	case err != nil:
		return nil, err
	}
	s.gallery = g
	return g, nil
}

func (s *Service) cameraSpec() (camera.Spec, error) {
	kind, err := camera.ParseKind(s.cfg.CameraKind)
	if err != nil {
		return camera.Spec{}, err
	}
	return camera.Spec{
		Kind:     kind,
		Source:   s.cfg.CameraSource,
		Username: s.cfg.CameraUsername,
		Password: s.cfg.CameraPassword,
		Width:    s.cfg.CameraWidth,
		Height:   s.cfg.CameraHeight,
		FPS:      s.cfg.CameraFPS,
		Loop:     s.cfg.CameraLoop,
		FFmpeg:   s.cfg.FFmpegPath,
	}, nil
}

func (s *Service) enqueue(ctx context.Context, p model.Probe) error {
	return s.queue.Enqueue(ctx, p)
}

// startScheduler registers the periodic cooldown sweep and gauge refresh.
// Each job is registered on its own; a failing job is logged and skipped
// and the scheduler runs whatever remains.
func (s *Service) startScheduler(ctx context.Context) error {
	sched := gocron.NewScheduler(time.Local)
	sched.SingletonModeAll()

	jobs := []struct {
		name  string
		every time.Duration
		run   func()
	}{
		{"cooldown_sweep", s.cfg.SweepInterval(), func() {
			if n := s.pipeline.Sweep(s.now()); n > 0 {
				s.logger.Debug(ctx, "cooldown entries swept", logger.Int("removed", n))
			}
		}},
		{"gauge_refresh", metrics.GaugeRefreshInterval(), func() { s.refreshGauges(ctx) }},
	}

	var errs []error
	for _, j := range jobs {
		if _, err := sched.Every(j.every).Do(j.run); err != nil {
			s.logger.Warn(ctx, "scheduled job disabled",
				logger.String("job", j.name), logger.Duration("every", j.every), logger.Error(err))
			errs = append(errs, fmt.Errorf("schedule %s: %w", j.name, err))
		}
	}
	if sched.Len() == 0 {
		return errors.Join(errs...)
	}

	sched.StartAsync()
	s.scheduler = sched
	return errors.Join(errs...)
}

func (s *Service) refreshGauges(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	metrics.UpdateCooldownEntries(s.pipeline.Cooldown().Size())

	if st, err := s.repo.Stats(ctx, s.now().Format(model.DateLayout)); err == nil {
		metrics.UpdateLedgerRecordsToday(st.Total)
	}
}
