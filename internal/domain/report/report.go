// Package report derives worked hours from ledger records and aggregates
// them into weekly and per-employee monthly summaries.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/facesense/internal/domain/model"
)

// FullDayHours is the worked time that counts as a full day.
const FullDayHours = 8.0

// WorkHours returns time_out minus time_in in hours, rounded to two
// decimals. A checkout earlier than the check-in is taken as the next day.
// The bool is false when either time is missing or unparsable.
func WorkHours(r model.AttendanceRecord) (float64, bool) {
	if r.TimeIn == nil || r.TimeOut == nil {
		return 0, false
	}
	in, err := time.Parse(model.TimeLayout, *r.TimeIn)
	if err != nil {
		return 0, false
	}
	out, err := time.Parse(model.TimeLayout, *r.TimeOut)
	if err != nil {
		return 0, false
	}
	if out.Before(in) {
		out = out.Add(24 * time.Hour)
	}
	return round2(out.Sub(in).Hours()), true
}

// FormatHours renders hours for export; records without hours are empty.
func FormatHours(r model.AttendanceRecord) string {
	h, ok := WorkHours(r)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(h, 'f', 2, 64)
}

// Weekly summarizes a range of records.
type Weekly struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	TotalRecords    int     `json:"total_records"`
	AvgWorkHours    float64 `json:"avg_work_hours"`
	FullDays        int     `json:"full_days"`
	UniqueEmployees int     `json:"unique_employees"`
}

// SummarizeWeek aggregates recs. The average only covers records with both
// times set and is zero when there are none.
func SummarizeWeek(from, to string, recs []model.AttendanceRecord) Weekly {
	w := Weekly{From: from, To: to, TotalRecords: len(recs)}
	employees := make(map[string]struct{})
	var hours []float64
	for _, r := range recs {
		employees[employeeKey(r)] = struct{}{}
		h, ok := WorkHours(r)
		if !ok {
			continue
		}
		hours = append(hours, h)
		if h >= FullDayHours {
			w.FullDays++
		}
	}
	if len(hours) > 0 {
		w.AvgWorkHours = round2(stat.Mean(hours, nil))
	}
	w.UniqueEmployees = len(employees)
	return w
}

// EmployeeMonth is one employee's line of a monthly summary.
type EmployeeMonth struct {
	EmployeeName   string  `json:"name"`
	EmployeeID     string  `json:"employee_id"`
	DaysPresent    int     `json:"days_present"`
	TotalWorkHours float64 `json:"total_work_hours"`
	AvgHoursPerDay float64 `json:"avg_hours_per_day"`
}

// SummarizeMonth groups recs by employee. Days present counts distinct
// dates; days without hours still count as present.
func SummarizeMonth(recs []model.AttendanceRecord) []EmployeeMonth {
	type acc struct {
		name, id string
		dates    map[string]struct{}
		hours    []float64
	}
	byKey := make(map[string]*acc)
	for _, r := range recs {
		k := r.EmployeeName + "\x00" + r.EmployeeID
		a, ok := byKey[k]
		if !ok {
			a = &acc{name: r.EmployeeName, id: r.EmployeeID, dates: make(map[string]struct{})}
			byKey[k] = a
		}
		a.dates[r.Date] = struct{}{}
		if h, ok := WorkHours(r); ok {
			a.hours = append(a.hours, h)
		}
	}

	out := make([]EmployeeMonth, 0, len(byKey))
	for _, a := range byKey {
		m := EmployeeMonth{EmployeeName: a.name, EmployeeID: a.id, DaysPresent: len(a.dates)}
		m.TotalWorkHours = round2(floats.Sum(a.hours))
		if m.DaysPresent > 0 {
			m.AvgHoursPerDay = round2(m.TotalWorkHours / float64(m.DaysPresent))
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeName != out[j].EmployeeName {
			return out[i].EmployeeName < out[j].EmployeeName
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out
}

// WeekRange returns the seven days ending on end.
func WeekRange(end time.Time) (string, string) {
	return end.AddDate(0, 0, -6).Format(model.DateLayout), end.Format(model.DateLayout)
}

// MonthRange returns the first and last day of the month containing day.
func MonthRange(day time.Time) (string, string) {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	return first.Format(model.DateLayout), first.AddDate(0, 1, -1).Format(model.DateLayout)
}

// WriteWeeklyCSV writes w as a header and one row.
func WriteWeeklyCSV(out io.Writer, w Weekly) error {
	return writeCSV(out,
		[]string{"from", "to", "total_records", "avg_work_hours", "full_days", "unique_employees"},
		[][]string{{
			w.From, w.To, strconv.Itoa(w.TotalRecords), hoursText(w.AvgWorkHours),
			strconv.Itoa(w.FullDays), strconv.Itoa(w.UniqueEmployees),
		}})
}

// WriteMonthlyCSV writes one row per employee.
func WriteMonthlyCSV(out io.Writer, months []EmployeeMonth) error {
	rows := make([][]string, 0, len(months))
	for _, m := range months {
		rows = append(rows, []string{
			m.EmployeeName, m.EmployeeID, strconv.Itoa(m.DaysPresent),
			hoursText(m.TotalWorkHours), hoursText(m.AvgHoursPerDay),
		})
	}
	return writeCSV(out,
		[]string{"name", "employee_id", "days_present", "total_work_hours", "avg_hours_per_day"}, rows)
}

func writeCSV(out io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

func employeeKey(r model.AttendanceRecord) string {
	if r.EmployeeID != "" {
		return r.EmployeeID
	}
	return r.EmployeeName
}

func hoursText(h float64) string { return strconv.FormatFloat(h, 'f', 2, 64) }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
