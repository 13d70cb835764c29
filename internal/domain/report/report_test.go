package report_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/internal/domain/report"
	. "github.com/smartystreets/goconvey/convey"
)

func rec(name, id, date, in, out string) model.AttendanceRecord {
	r := model.AttendanceRecord{EmployeeName: name, EmployeeID: id, Date: date, Status: model.StatusIn}
	if in != "" {
		r.TimeIn = &in
	}
	if out != "" {
		r.TimeOut = &out
		r.Status = model.StatusOut
	}
	return r
}

func TestWorkHours(t *testing.T) {
	Convey("Given records with check-in and checkout times", t, func() {
		Convey("Then hours are the rounded difference", func() {
			h, ok := report.WorkHours(rec("Jane", "E1", "2024-03-04", "09:00:00", "17:30:00"))
			So(ok, ShouldBeTrue)
			So(h, ShouldEqual, 8.5)

			h, ok = report.WorkHours(rec("Jane", "E1", "2024-03-04", "09:00:00", "09:20:00"))
			So(ok, ShouldBeTrue)
			So(h, ShouldEqual, 0.33)
		})

		Convey("Then a checkout past midnight rolls into the next day", func() {
			h, ok := report.WorkHours(rec("Jane", "E1", "2024-03-04", "22:00:00", "02:00:00"))
			So(ok, ShouldBeTrue)
			So(h, ShouldEqual, 4.0)
		})
	})

	Convey("Given records missing a time", t, func() {
		Convey("Then no hours are reported", func() {
			_, ok := report.WorkHours(rec("Jane", "E1", "2024-03-04", "09:00:00", ""))
			So(ok, ShouldBeFalse)
			_, ok = report.WorkHours(rec("John", "E2", "2024-03-04", "", "13:00:00"))
			So(ok, ShouldBeFalse)
			So(report.FormatHours(rec("John", "E2", "2024-03-04", "", "13:00:00")), ShouldEqual, "")
		})
	})
}

func TestSummarizeWeek(t *testing.T) {
	Convey("Given a week of records", t, func() {
		recs := []model.AttendanceRecord{
			rec("Jane", "E1", "2024-03-04", "09:00:00", "17:00:00"),
			rec("Jane", "E1", "2024-03-05", "09:00:00", "13:00:00"),
			rec("John", "E2", "2024-03-05", "08:00:00", "18:00:00"),
			rec("John", "E2", "2024-03-06", "08:00:00", ""),
		}

		Convey("Then totals and averages skip records without hours", func() {
			w := report.SummarizeWeek("2024-03-04", "2024-03-10", recs)
			So(w.TotalRecords, ShouldEqual, 4)
			So(w.AvgWorkHours, ShouldEqual, 7.33)
			So(w.FullDays, ShouldEqual, 2)
			So(w.UniqueEmployees, ShouldEqual, 2)
		})

		Convey("Then the csv has one summary row", func() {
			var buf bytes.Buffer
			So(report.WriteWeeklyCSV(&buf, report.SummarizeWeek("2024-03-04", "2024-03-10", recs)), ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(lines, ShouldResemble, []string{
				"from,to,total_records,avg_work_hours,full_days,unique_employees",
				"2024-03-04,2024-03-10,4,7.33,2,2",
			})
		})
	})

	Convey("Given no complete records", t, func() {
		w := report.SummarizeWeek("2024-03-04", "2024-03-10", []model.AttendanceRecord{
			rec("Jane", "E1", "2024-03-04", "09:00:00", ""),
		})
		So(w.AvgWorkHours, ShouldEqual, 0)
		So(w.FullDays, ShouldEqual, 0)
		So(w.UniqueEmployees, ShouldEqual, 1)
	})
}

func TestSummarizeMonth(t *testing.T) {
	Convey("Given a month of records", t, func() {
		recs := []model.AttendanceRecord{
			rec("John", "E2", "2024-03-04", "08:00:00", "16:00:00"),
			rec("Jane", "E1", "2024-03-04", "09:00:00", "17:00:00"),
			rec("Jane", "E1", "2024-03-05", "09:00:00", "19:00:00"),
			rec("Jane", "E1", "2024-03-06", "09:00:00", ""),
		}

		Convey("Then each employee gets days, totals and a daily average", func() {
			months := report.SummarizeMonth(recs)
			So(months, ShouldHaveLength, 2)
			So(months[0], ShouldResemble, report.EmployeeMonth{
				EmployeeName: "Jane", EmployeeID: "E1", DaysPresent: 3, TotalWorkHours: 18, AvgHoursPerDay: 6,
			})
			So(months[1], ShouldResemble, report.EmployeeMonth{
				EmployeeName: "John", EmployeeID: "E2", DaysPresent: 1, TotalWorkHours: 8, AvgHoursPerDay: 8,
			})
		})

		Convey("Then the csv lists employees by name", func() {
			var buf bytes.Buffer
			So(report.WriteMonthlyCSV(&buf, report.SummarizeMonth(recs)), ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(lines, ShouldHaveLength, 3)
			So(lines[0], ShouldEqual, "name,employee_id,days_present,total_work_hours,avg_hours_per_day")
			So(lines[1], ShouldEqual, "Jane,E1,3,18.00,6.00")
		})
	})
}

func TestRanges(t *testing.T) {
	Convey("Given a reference day", t, func() {
		day := time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)

		Convey("Then the week ends on it", func() {
			from, to := report.WeekRange(day)
			So(from, ShouldEqual, "2024-02-08")
			So(to, ShouldEqual, "2024-02-14")
		})

		Convey("Then the month covers the leap day", func() {
			from, to := report.MonthRange(day)
			So(from, ShouldEqual, "2024-02-01")
			So(to, ShouldEqual, "2024-02-29")
		})
	})
}
