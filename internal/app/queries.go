package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/facesense/internal/adapters/camera"
	"github.com/okian/facesense/internal/domain/gallery"
	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
)

// SystemStatus summarises the running engine.
type SystemStatus struct {
	gallery.Stats
	Started         bool      `json:"started"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	QueueLength     int       `json:"queue_length"`
	QueueCapacity   int       `json:"queue_capacity"`
	Workers         int       `json:"workers"`
	Processed       uint64    `json:"processed"`
	Frames          uint64    `json:"frames"`
	CooldownEntries int       `json:"cooldown_entries"`
	CooldownSeconds int       `json:"cooldown_seconds"`
	CheckoutHour    int       `json:"checkout_hour"`
	CameraConnected bool      `json:"camera_connected"`
	ScheduledJobs   int       `json:"scheduled_jobs"`
}

// Status returns the current system status.
func (s *Service) Status(_ context.Context) SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SystemStatus{
		Started:         s.started,
		CooldownSeconds: s.cfg.CooldownSeconds,
		CheckoutHour:    s.cfg.CheckoutHour,
	}
	if !s.started {
		st.Stats = gallery.Empty().Stats()
		return st
	}
	st.Stats = s.pipeline.Gallery().Stats()
	st.StartedAt = s.startedAt
	st.QueueLength = len(s.queue.Dequeue(context.Background()))
	st.QueueCapacity = s.queue.Cap()
	st.Workers = s.pool.Size()
	st.Processed = s.pool.Processed()
	st.Frames = s.pipeline.Frames()
	st.CooldownEntries = s.pipeline.Cooldown().Size()
	if s.capturer != nil {
		st.CameraConnected = s.capturer.Status().Connected
	}
	if s.scheduler != nil {
		st.ScheduledJobs = s.scheduler.Len()
	}
	return st
}

// CameraStatus reports the capturer state. The bool is false when frames
// do not come from a managed camera.
func (s *Service) CameraStatus() (camera.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.capturer == nil {
		return camera.Status{}, false
	}
	return s.capturer.Status(), true
}

// PingDB checks the ledger storage.
func (s *Service) PingDB(ctx context.Context) error {
	s.mu.RLock()
	repo := s.repo
	s.mu.RUnlock()
	if repo == nil {
		return ErrNotStarted
	}
	return repo.Ping(ctx)
}

// RecentDecisions returns the latest recognition decisions.
func (s *Service) RecentDecisions() []model.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pipeline == nil {
		return nil
	}
	return s.pipeline.LastDecisions()
}

// SubmitEmbedding queues an externally computed embedding for recognition
// and returns the probe id. Queue errors are returned unchanged so callers
// can detect backpressure with errors.Is(err, queue.ErrFull).
func (s *Service) SubmitEmbedding(ctx context.Context, e model.Embedding, source string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return "", ErrNotStarted
	}
	if !e.Valid(len(e)) {
		return "", ErrInvalidEmbedding
	}
	if dim := s.pipeline.Gallery().Dim(); dim > 0 && len(e) != dim {
		return "", fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidEmbedding, dim, len(e))
	}
	p := s.pipeline.NewProbe(e, source)
	if err := s.queue.Enqueue(ctx, p); err != nil {
		s.logger.Warn(ctx, "probe rejected", logger.String("probe_id", p.ID), logger.Error(err))
		return "", err
	}
	return p.ID, nil
}

// Today returns today's attendance date in the service clock.
func (s *Service) Today() string { return s.now().Format(model.DateLayout) }

// ListByDate returns the records for one day.
func (s *Service) ListByDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	repo, err := s.reader()
	if err != nil {
		return nil, err
	}
	return repo.ListByDate(ctx, date)
}

// ListRange returns records with from <= date <= to.
func (s *Service) ListRange(ctx context.Context, from, to string) ([]model.AttendanceRecord, error) {
	repo, err := s.reader()
	if err != nil {
		return nil, err
	}
	return repo.ListRange(ctx, from, to)
}

// ListByEmployee returns one employee's records within the range.
func (s *Service) ListByEmployee(ctx context.Context, name, from, to string) ([]model.AttendanceRecord, error) {
	repo, err := s.reader()
	if err != nil {
		return nil, err
	}
	return repo.ListByEmployee(ctx, name, from, to)
}

// Stats returns the day's totals.
func (s *Service) Stats(ctx context.Context, date string) (model.DayStats, error) {
	repo, err := s.reader()
	if err != nil {
		return model.DayStats{}, err
	}
	return repo.Stats(ctx, date)
}

func (s *Service) reader() (ledger.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.repo == nil {
		return nil, ErrNotStarted
	}
	return s.repo, nil
}
