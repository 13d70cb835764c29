// Package worker runs recognition workers that drain the probe queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
	"github.com/okian/facesense/pkg/metrics"
)

const poolShutdownTimeout = 10 * time.Second

// Evaluator turns a probe into a decision, recording it when accepted.
type Evaluator interface {
	Evaluate(ctx context.Context, p model.Probe) model.Decision
}

// Queue defines how workers receive probes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Probe
}

// Worker evaluates probes until stopped.
type Worker struct {
	queue     Queue
	evaluator Evaluator
	name      string
	processed *atomic.Uint64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// New creates a worker.
func New(queue Queue, evaluator Evaluator, opts ...Option) *Worker {
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("worker")
	}
	return &Worker{
		queue:     queue,
		evaluator: evaluator,
		name:      s.name,
		processed: new(atomic.Uint64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    s.logger.With(logger.String("worker", s.name)),
	}
}

// Run processes probes until ctx is cancelled, Shutdown is called or the
// queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	probes := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case p, ok := <-probes:
			if !ok {
				return
			}
			w.process(ctx, p)
		}
	}
}

// Shutdown stops the worker and waits for the current probe to finish.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of probes this worker evaluated.
func (w *Worker) Processed() uint64 { return w.processed.Load() }

func (w *Worker) process(ctx context.Context, p model.Probe) {
	start := time.Now()
	defer func() {
		metrics.RecordQueueDequeue()
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			w.logger.Error(ctx, "probe evaluation panicked",
				logger.String("probe_id", p.ID),
				logger.Any("panic", r),
			)
		}
	}()

	d := w.evaluator.Evaluate(ctx, p)
	w.processed.Add(1)
	if d.Accepted && !d.Recorded {
		metrics.RecordWorkerError()
	}
}

// Pool manages a fixed set of workers over one queue.
type Pool struct {
	workers []*Worker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates count workers. A non-positive count uses the CPU count.
func NewPool(count int, queue Queue, evaluator Evaluator, opts ...Option) *Pool {
	if count < 1 {
		count = runtime.NumCPU()
	}
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("worker-pool")
	}

	p := &Pool{workers: make([]*Worker, count), queue: queue, logger: s.logger}
	for i := range p.workers {
		p.workers[i] = New(queue, evaluator,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(s.logger),
		)
	}
	metrics.UpdateWorkerCount(count)
	return p
}

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of probes evaluated by all workers.
func (p *Pool) Processed() uint64 {
	var n uint64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the queue when it can be closed, then lets the workers
// drain it before stopping them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(shutdownCtx)
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
