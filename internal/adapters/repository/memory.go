package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/domain/model"
)

// MemoryStore keeps the ledger in process memory. Writes made inside a
// transaction become visible only when the transaction commits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[model.RecordKey]model.AttendanceRecord
}

var _ ledger.Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[model.RecordKey]model.AttendanceRecord)}
}

type memoryTx struct {
	store  *MemoryStore
	staged map[model.RecordKey]model.AttendanceRecord
}

// InTx runs fn under the store's write lock and commits staged writes
// only when fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, _ model.RecordKey, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{store: s, staged: make(map[model.RecordKey]model.AttendanceRecord)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, v := range tx.staged {
		s.records[k] = v
	}
	return nil
}

func (tx *memoryTx) Get(_ context.Context, key model.RecordKey) (*model.AttendanceRecord, error) {
	if r, ok := tx.staged[key]; ok {
		return &r, nil
	}
	r, ok := tx.store.records[key]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &r, nil
}

func (tx *memoryTx) Insert(ctx context.Context, rec model.AttendanceRecord) error {
	if _, err := tx.Get(ctx, rec.Key()); err == nil {
		return ledger.ErrConflict
	}
	tx.staged[rec.Key()] = rec
	return nil
}

func (tx *memoryTx) Update(ctx context.Context, rec model.AttendanceRecord) error {
	if _, err := tx.Get(ctx, rec.Key()); err != nil {
		return err
	}
	tx.staged[rec.Key()] = rec
	return nil
}

func (s *MemoryStore) collect(keep func(model.AttendanceRecord) bool) []model.AttendanceRecord {
	s.mu.RLock()
	out := make([]model.AttendanceRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].EmployeeName < out[j].EmployeeName
	})
	return out
}

// ListByDate returns the records for one date ordered by employee name.
func (s *MemoryStore) ListByDate(_ context.Context, date string) ([]model.AttendanceRecord, error) {
	return s.collect(func(r model.AttendanceRecord) bool { return r.Date == date }), nil
}

// ListRange returns the records between from and to inclusive.
func (s *MemoryStore) ListRange(_ context.Context, from, to string) ([]model.AttendanceRecord, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.collect(func(r model.AttendanceRecord) bool { return r.Date >= from && r.Date <= to }), nil
}

// ListByEmployee returns one employee's records between from and to inclusive.
func (s *MemoryStore) ListByEmployee(_ context.Context, name, from, to string) ([]model.AttendanceRecord, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.collect(func(r model.AttendanceRecord) bool {
		return r.EmployeeName == name && r.Date >= from && r.Date <= to
	}), nil
}

// Stats summarizes one date.
func (s *MemoryStore) Stats(ctx context.Context, date string) (model.DayStats, error) {
	recs, _ := s.ListByDate(ctx, date)
	return stats(date, recs), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
