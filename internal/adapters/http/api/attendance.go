package api

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/internal/domain/report"
)

// AttendanceHandler serves ledger reads.
type AttendanceHandler struct {
	reader AttendanceReader
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(reader AttendanceReader) *AttendanceHandler {
	return &AttendanceHandler{reader: reader}
}

// RecordView is the exported shape of a ledger record. WorkHours is nil
// until both times are known.
type RecordView struct {
	EmployeeName string   `json:"name"`
	EmployeeID   string   `json:"employee_id"`
	Date         string   `json:"date"`
	TimeIn       *string  `json:"time_in"`
	TimeOut      *string  `json:"time_out"`
	Status       string   `json:"status"`
	WorkHours    *float64 `json:"work_hours"`
}

// ToViews converts records for export.
func ToViews(recs []model.AttendanceRecord) []RecordView {
	out := make([]RecordView, 0, len(recs))
	for _, r := range recs {
		v := RecordView{
			EmployeeName: r.EmployeeName,
			EmployeeID:   r.EmployeeID,
			Date:         r.Date,
			TimeIn:       r.TimeIn,
			TimeOut:      r.TimeOut,
			Status:       string(r.Status),
		}
		if h, ok := report.WorkHours(r); ok {
			v.WorkHours = &h
		}
		out = append(out, v)
	}
	return out
}

// HandleToday handles GET /api/attendance/today.
func (h *AttendanceHandler) HandleToday(w http.ResponseWriter, r *http.Request) {
	date := h.reader.Today()
	recs, err := h.reader.ListByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "count": len(recs), "records": ToViews(recs)})
}

// HandleList handles GET /api/attendance?date= and ?employee=&from=&to=.
func (h *AttendanceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if employee := strings.TrimSpace(q.Get("employee")); employee != "" {
		from, to, err := h.rangeFrom(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		recs, err := h.reader.ListByEmployee(r.Context(), employee, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"employee": employee, "from": from, "to": to, "records": ToViews(recs)})
		return
	}

	date, err := h.dateParam(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	recs, err := h.reader.ListByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "count": len(recs), "records": ToViews(recs)})
}

// HandleStats handles GET /api/attendance/stats.
func (h *AttendanceHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	date, err := h.dateParam(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	st, err := h.reader.Stats(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleDownload handles GET /api/attendance/download?format=csv|json.
func (h *AttendanceHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.rangeFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: format must be csv or json", ErrBadRequest))
		return
	}

	recs, err := h.reader.ListRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	filename := fmt.Sprintf("attendance_%s_%s.%s", from, to, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if format == "json" {
		writeJSON(w, http.StatusOK, ToViews(recs))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = WriteCSV(w, recs)
}

// CSVHeader is the column order of exported attendance.
var CSVHeader = []string{"name", "employee_id", "date", "time_in", "time_out", "status", "work_hours"}

// WriteCSV writes records as CSV with a header row. Missing times are empty.
func WriteCSV(w io.Writer, recs []model.AttendanceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range recs {
		row := []string{
			r.EmployeeName, r.EmployeeID, r.Date,
			deref(r.TimeIn), deref(r.TimeOut), string(r.Status), report.FormatHours(r),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *AttendanceHandler) dateParam(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return h.reader.Today(), nil
	}
	if _, err := time.Parse(model.DateLayout, v); err != nil {
		return "", fmt.Errorf("%w: date must be YYYY-MM-DD", ErrBadRequest)
	}
	return v, nil
}

// rangeFrom reads from/to, defaulting both to today.
func (h *AttendanceHandler) rangeFrom(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	from, err := h.dateParam(q.Get("from"))
	if err != nil {
		return "", "", err
	}
	to, err := h.dateParam(q.Get("to"))
	if err != nil {
		return "", "", err
	}
	if from > to {
		return "", "", fmt.Errorf("%w: from must not be after to", ErrBadRequest)
	}
	return from, to, nil
}
