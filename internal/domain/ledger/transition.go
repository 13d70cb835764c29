package ledger

import (
	"time"

	"github.com/okian/facesense/internal/domain/model"
)

// Op is the store operation a transition requires.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpNoop   Op = "noop"
)

// Apply computes the next state of the record for d.
//
// Without a record, IN creates one with TimeIn and OUT creates one with
// only TimeOut. With a record, OUT always overwrites TimeOut and sets the
// status; IN only moves TimeIn earlier and leaves the status alone.
func Apply(existing *model.AttendanceRecord, d model.Detection, now time.Time) (model.AttendanceRecord, Op) {
	t := d.Time

	if existing == nil {
		rec := model.AttendanceRecord{
			EmployeeName: d.EmployeeName,
			EmployeeID:   d.EmployeeID,
			Date:         d.Date,
			Status:       d.Status,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if d.Status == model.StatusIn {
			rec.TimeIn = &t
		} else {
			rec.TimeOut = &t
		}
		return rec, OpInsert
	}

	rec := *existing
	if rec.EmployeeID == "" || rec.EmployeeID == model.UnknownEmployeeID {
		rec.EmployeeID = d.EmployeeID
	}

	switch d.Status {
	case model.StatusOut:
		if rec.Status == model.StatusOut && rec.TimeOut != nil && *rec.TimeOut == t {
			return *existing, OpNoop
		}
		rec.TimeOut = &t
		rec.Status = model.StatusOut
	default:
		if rec.TimeIn != nil && *rec.TimeIn <= t {
			return *existing, OpNoop
		}
		rec.TimeIn = &t
	}
	rec.UpdatedAt = now
	return rec, OpUpdate
}
