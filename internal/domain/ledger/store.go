package ledger

import (
	"context"

	"github.com/okian/facesense/internal/domain/model"
)

// Tx is the unit of work a Store runs for one record key.
type Tx interface {
	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, key model.RecordKey) (*model.AttendanceRecord, error)
	// Insert returns ErrConflict when the key already exists.
	Insert(ctx context.Context, rec model.AttendanceRecord) error
	Update(ctx context.Context, rec model.AttendanceRecord) error
}

// Store runs fn atomically; returning an error from fn rolls back.
type Store interface {
	InTx(ctx context.Context, key model.RecordKey, fn func(Tx) error) error
}

// Reader answers reporting queries. Dates are YYYY-MM-DD, ranges inclusive.
type Reader interface {
	ListByDate(ctx context.Context, date string) ([]model.AttendanceRecord, error)
	ListRange(ctx context.Context, from, to string) ([]model.AttendanceRecord, error)
	ListByEmployee(ctx context.Context, name, from, to string) ([]model.AttendanceRecord, error)
	Stats(ctx context.Context, date string) (model.DayStats, error)
}

// Repository is a full ledger backend.
type Repository interface {
	Store
	Reader
	Ping(ctx context.Context) error
	Close() error
}
