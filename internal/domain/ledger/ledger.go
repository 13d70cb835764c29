// Package ledger keeps one attendance record per employee and day and
// applies detections to it idempotently.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
	"github.com/okian/facesense/pkg/metrics"
)

// DefaultTimeout bounds one RecordDetection call.
const DefaultTimeout = 2 * time.Second

// Outcome describes what a detection did to the ledger.
type Outcome struct {
	Op     Op
	Record model.AttendanceRecord
}

// Ledger applies detections to a Store.
type Ledger struct {
	store   Store
	locks   *keyedMutex
	timeout time.Duration
	now     func() time.Time
	log     logger.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTimeout bounds each write. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithClock sets the clock used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.log = lg
		}
	}
}

// New creates a Ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		locks:   newKeyedMutex(),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("ledger")
	}
	return l
}

// RecordDetection applies d to its record. Failures are logged, counted
// and returned; the store has rolled back by then.
func (l *Ledger) RecordDetection(ctx context.Context, d model.Detection) (Outcome, error) {
	if err := d.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidDetection, err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key := d.Key()
	unlock := l.locks.Lock(key.String())
	defer unlock()

	start := time.Now()
	out, err := l.apply(ctx, key, d)
	if errors.Is(err, ErrConflict) {
		// Another writer inserted the key first; the row exists now.
		out, err = l.apply(ctx, key, d)
	}
	metrics.RecordLedgerLatency(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		metrics.RecordLedgerError()
		l.log.Error(ctx, "attendance write rolled back",
			logger.String("employee", d.EmployeeName),
			logger.String("date", d.Date),
			logger.String("status", string(d.Status)),
			logger.Error(err),
		)
		return Outcome{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	metrics.RecordLedgerWrite(string(out.Op))
	if out.Op != OpNoop {
		l.log.Info(ctx, "attendance recorded",
			logger.String("employee", d.EmployeeName),
			logger.String("date", d.Date),
			logger.String("time", d.Time),
			logger.String("status", string(d.Status)),
			logger.String("op", string(out.Op)),
		)
	}
	return out, nil
}

func (l *Ledger) apply(ctx context.Context, key model.RecordKey, d model.Detection) (Outcome, error) {
	var out Outcome
	err := l.store.InTx(ctx, key, func(tx Tx) error {
		existing, err := tx.Get(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if errors.Is(err, ErrNotFound) {
			existing = nil
		}

		next, op := Apply(existing, d, l.now())
		switch op {
		case OpInsert:
			err = tx.Insert(ctx, next)
		case OpUpdate:
			err = tx.Update(ctx, next)
		}
		if err != nil {
			return err
		}
		out = Outcome{Op: op, Record: next}
		return nil
	})
	return out, err
}
