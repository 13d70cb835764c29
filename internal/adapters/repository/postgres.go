package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/domain/model"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var columns = []string{"employee_name", "employee_id", "date", "time_in", "time_out", "status", "created_at", "updated_at"}

const createAttendanceTable = `
CREATE TABLE IF NOT EXISTS attendance (
	id            BIGSERIAL PRIMARY KEY,
	employee_name VARCHAR(255) NOT NULL,
	employee_id   VARCHAR(64)  NOT NULL DEFAULT 'N/A',
	date          VARCHAR(10)  NOT NULL,
	time_in       VARCHAR(8),
	time_out      VARCHAR(8),
	status        VARCHAR(3)   NOT NULL,
	created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	CONSTRAINT uq_attendance_employee_date UNIQUE (employee_name, date)
);
CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance (date);
`

// PostgresStore persists the ledger in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ ledger.Repository = (*PostgresStore)(nil)

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// OpenPostgres connects to dsn, verifies the connection and creates the
// attendance table when missing.
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: database URL is required", ErrOpen)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrOpen, err)
	}
	if _, err := db.ExecContext(ctx, createAttendanceTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrOpen, err)
	}
	return &PostgresStore{db: db}, nil
}

type pgTx struct {
	tx *sql.Tx
}

// InTx runs fn in a transaction; the record row is locked by Get.
func (s *PostgresStore) InTx(ctx context.Context, _ model.RecordKey, fn func(ledger.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.AttendanceRecord, error) {
	var (
		r       model.AttendanceRecord
		status  string
		in, out sql.NullString
	)
	if err := row.Scan(&r.EmployeeName, &r.EmployeeID, &r.Date, &in, &out, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.AttendanceRecord{}, err
	}
	if in.Valid {
		r.TimeIn = &in.String
	}
	if out.Valid {
		r.TimeOut = &out.String
	}
	r.Status = model.Status(status)
	return r, nil
}

func (t *pgTx) Get(ctx context.Context, key model.RecordKey) (*model.AttendanceRecord, error) {
	query, args, err := psql.Select(columns...).
		From(tableName).
		Where(sq.Eq{"employee_name": key.EmployeeName, "date": key.Date}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rec, err := scanRecord(t.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *pgTx) Insert(ctx context.Context, rec model.AttendanceRecord) error {
	query, args, err := psql.Insert(tableName).
		Columns(columns...).
		Values(rec.EmployeeName, rec.EmployeeID, rec.Date, rec.TimeIn, rec.TimeOut, string(rec.Status), rec.CreatedAt, rec.UpdatedAt).
		Suffix("ON CONFLICT (employee_name, date) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrConflict
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, rec model.AttendanceRecord) error {
	query, args, err := psql.Update(tableName).
		Set("employee_id", rec.EmployeeID).
		Set("time_in", rec.TimeIn).
		Set("time_out", rec.TimeOut).
		Set("status", string(rec.Status)).
		Set("updated_at", rec.UpdatedAt).
		Where(sq.Eq{"employee_name": rec.EmployeeName, "date": rec.Date}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, where sq.Sqlizer) ([]model.AttendanceRecord, error) {
	query, args, err := psql.Select(columns...).
		From(tableName).
		Where(where).
		OrderBy("date", "employee_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.AttendanceRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListByDate returns the records for one date ordered by employee name.
func (s *PostgresStore) ListByDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	return s.list(ctx, sq.Eq{"date": date})
}

// ListRange returns the records between from and to inclusive.
func (s *PostgresStore) ListRange(ctx context.Context, from, to string) ([]model.AttendanceRecord, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.list(ctx, sq.And{sq.GtOrEq{"date": from}, sq.LtOrEq{"date": to}})
}

// ListByEmployee returns one employee's records between from and to inclusive.
func (s *PostgresStore) ListByEmployee(ctx context.Context, name, from, to string) ([]model.AttendanceRecord, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.list(ctx, sq.And{sq.Eq{"employee_name": name}, sq.GtOrEq{"date": from}, sq.LtOrEq{"date": to}})
}

// Stats summarizes one date.
func (s *PostgresStore) Stats(ctx context.Context, date string) (model.DayStats, error) {
	query, args, err := psql.Select("COUNT(*)").
		Column("COUNT(CASE WHEN status = ? THEN 1 END)", string(model.StatusIn)).
		Column("COUNT(CASE WHEN status = ? THEN 1 END)", string(model.StatusOut)).
		From(tableName).
		Where(sq.Eq{"date": date}).
		ToSql()
	if err != nil {
		return model.DayStats{}, fmt.Errorf("build stats: %w", err)
	}
	st := model.DayStats{Date: date}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.Total, &st.CheckedIn, &st.CheckedOut); err != nil {
		return model.DayStats{}, err
	}
	return st, nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}
