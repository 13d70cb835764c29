package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
)

// GormStore persists the ledger through gorm on SQLite or MySQL.
type GormStore struct {
	db     *gorm.DB
	driver string
}

var _ ledger.Repository = (*GormStore)(nil)

// GormOptions tunes the connection pool.
type GormOptions struct {
	MaxOpenConns  int
	MaxIdleConns  int
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
	Logger        logger.Logger
}

// OpenGorm connects to driver ("sqlite" or "mysql") at dsn and migrates the
// attendance table.
func OpenGorm(ctx context.Context, driver, dsn string, opts GormOptions) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrOpen, err)
			}
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}

	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = time.Second
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = gormlogger.Warn
	}
	gl := newGormLog(opts.Logger, opts.LogLevel, opts.SlowThreshold)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if driver == "sqlite" {
		// One writer at a time avoids SQLITE_BUSY under concurrent workers.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.WithContext(ctx).AutoMigrate(&attendanceRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrOpen, err)
	}
	return &GormStore{db: db, driver: driver}, nil
}

type gormTx struct {
	db     *gorm.DB
	driver string
}

// InTx runs fn in a database transaction.
func (s *GormStore) InTx(ctx context.Context, _ model.RecordKey, fn func(ledger.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, driver: s.driver})
	})
}

func (tx *gormTx) Get(ctx context.Context, key model.RecordKey) (*model.AttendanceRecord, error) {
	q := tx.db.WithContext(ctx).Where("employee_name = ? AND date = ?", key.EmployeeName, key.Date)
	if tx.driver != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row attendanceRow
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	rec := row.toModel()
	return &rec, nil
}

func (tx *gormTx) Insert(ctx context.Context, rec model.AttendanceRecord) error {
	row := toRow(rec)
	res := tx.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "employee_name"}, {Name: "date"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledger.ErrConflict
	}
	return nil
}

func (tx *gormTx) Update(ctx context.Context, rec model.AttendanceRecord) error {
	res := tx.db.WithContext(ctx).
		Model(&attendanceRow{}).
		Where("employee_name = ? AND date = ?", rec.EmployeeName, rec.Date).
		Updates(map[string]any{
			"employee_id": rec.EmployeeID,
			"time_in":     rec.TimeIn,
			"time_out":    rec.TimeOut,
			"status":      string(rec.Status),
			"updated_at":  rec.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *GormStore) find(ctx context.Context, query string, args ...any) ([]model.AttendanceRecord, error) {
	var rows []attendanceRow
	if err := s.db.WithContext(ctx).Where(query, args...).Order("date, employee_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.AttendanceRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// ListByDate returns the records for one date ordered by employee name.
func (s *GormStore) ListByDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	return s.find(ctx, "date = ?", date)
}

// ListRange returns the records between from and to inclusive.
func (s *GormStore) ListRange(ctx context.Context, from, to string) ([]model.AttendanceRecord, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.find(ctx, "date BETWEEN ? AND ?", from, to)
}

// ListByEmployee returns one employee's records between from and to inclusive.
func (s *GormStore) ListByEmployee(ctx context.Context, name, from, to string) ([]model.AttendanceRecord, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.find(ctx, "employee_name = ? AND date BETWEEN ? AND ?", name, from, to)
}

// Stats summarizes one date.
func (s *GormStore) Stats(ctx context.Context, date string) (model.DayStats, error) {
	var out struct {
		Total      int
		CheckedIn  int
		CheckedOut int
	}
	err := s.db.WithContext(ctx).Model(&attendanceRow{}).
		Select("COUNT(*) AS total, "+
			"COUNT(CASE WHEN status = ? THEN 1 END) AS checked_in, "+
			"COUNT(CASE WHEN status = ? THEN 1 END) AS checked_out",
			string(model.StatusIn), string(model.StatusOut)).
		Where("date = ?", date).
		Scan(&out).Error
	if err != nil {
		return model.DayStats{}, err
	}
	return model.DayStats{Date: date, Total: out.Total, CheckedIn: out.CheckedIn, CheckedOut: out.CheckedOut}, nil
}

// Ping checks the connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
