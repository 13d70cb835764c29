// Package repository implements attendance ledger backends: an in-memory
// store, a gorm store for SQLite and MySQL, and a PostgreSQL store.
package repository

import (
	"fmt"
	"time"

	"github.com/okian/facesense/internal/domain/model"
)

const tableName = "attendance"

// attendanceRow is the persisted form of model.AttendanceRecord.
type attendanceRow struct {
	ID           uint      `gorm:"primaryKey"`
	EmployeeName string    `gorm:"size:255;not null;uniqueIndex:idx_attendance_employee_date,priority:1"`
	EmployeeID   string    `gorm:"size:64;not null;default:'N/A'"`
	Date         string    `gorm:"size:10;not null;uniqueIndex:idx_attendance_employee_date,priority:2;index"`
	TimeIn       *string   `gorm:"size:8"`
	TimeOut      *string   `gorm:"size:8"`
	Status       string    `gorm:"size:3;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (attendanceRow) TableName() string { return tableName }

func toRow(r model.AttendanceRecord) attendanceRow {
	return attendanceRow{
		EmployeeName: r.EmployeeName,
		EmployeeID:   r.EmployeeID,
		Date:         r.Date,
		TimeIn:       r.TimeIn,
		TimeOut:      r.TimeOut,
		Status:       string(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (row attendanceRow) toModel() model.AttendanceRecord {
	return model.AttendanceRecord{
		EmployeeName: row.EmployeeName,
		EmployeeID:   row.EmployeeID,
		Date:         row.Date,
		TimeIn:       row.TimeIn,
		TimeOut:      row.TimeOut,
		Status:       model.Status(row.Status),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func checkRange(from, to string) error {
	f, err := time.Parse(model.DateLayout, from)
	if err != nil {
		return fmt.Errorf("%w: from %q", ErrInvalidRange, from)
	}
	t, err := time.Parse(model.DateLayout, to)
	if err != nil {
		return fmt.Errorf("%w: to %q", ErrInvalidRange, to)
	}
	if t.Before(f) {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from, to)
	}
	return nil
}

func stats(date string, recs []model.AttendanceRecord) model.DayStats {
	s := model.DayStats{Date: date, Total: len(recs)}
	for _, r := range recs {
		switch r.Status {
		case model.StatusIn:
			s.CheckedIn++
		case model.StatusOut:
			s.CheckedOut++
		}
	}
	return s
}
