package model

import (
	"fmt"
	"time"
)

// Status is the last transition applied to an attendance record.
type Status string

const (
	StatusIn  Status = "IN"
	StatusOut Status = "OUT"
)

// Valid reports whether s is IN or OUT.
func (s Status) Valid() bool { return s == StatusIn || s == StatusOut }

// Layouts used for ledger keys and times. Both sort lexicographically.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// AttendanceRecord is the single ledger row for an employee on a date.
type AttendanceRecord struct {
	EmployeeName string    `json:"employee_name"`
	EmployeeID   string    `json:"employee_id"`
	Date         string    `json:"date"`
	TimeIn       *string   `json:"time_in"`
	TimeOut      *string   `json:"time_out"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Key identifies the record.
func (r AttendanceRecord) Key() RecordKey {
	return RecordKey{EmployeeName: r.EmployeeName, Date: r.Date}
}

// RecordKey is the (employee, date) ledger key.
type RecordKey struct {
	EmployeeName string
	Date         string
}

func (k RecordKey) String() string { return k.EmployeeName + "|" + k.Date }

// Detection is an accepted sighting handed to the ledger.
type Detection struct {
	EmployeeName string
	EmployeeID   string
	Date         string
	Time         string
	Status       Status
}

// Key identifies the record the detection applies to.
func (d Detection) Key() RecordKey {
	return RecordKey{EmployeeName: d.EmployeeName, Date: d.Date}
}

// Validate checks the detection's fields.
func (d Detection) Validate() error {
	if d.EmployeeName == "" {
		return fmt.Errorf("detection: empty employee name")
	}
	if !d.Status.Valid() {
		return fmt.Errorf("detection: invalid status %q", d.Status)
	}
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return fmt.Errorf("detection: date %q: %w", d.Date, err)
	}
	if _, err := time.Parse(TimeLayout, d.Time); err != nil {
		return fmt.Errorf("detection: time %q: %w", d.Time, err)
	}
	return nil
}

// NewDetection builds a detection for name at instant now with status s.
func NewDetection(name, employeeID string, now time.Time, s Status) Detection {
	return Detection{
		EmployeeName: name,
		EmployeeID:   employeeID,
		Date:         now.Format(DateLayout),
		Time:         now.Format(TimeLayout),
		Status:       s,
	}
}

// DayStats summarizes a day of the ledger.
type DayStats struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	CheckedIn  int    `json:"checked_in"`
	CheckedOut int    `json:"checked_out"`
}
