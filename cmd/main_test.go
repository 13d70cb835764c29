package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/okian/facesense/internal/adapters/repository"
	"github.com/okian/facesense/internal/config"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given FACESENSE_ overrides", t, func() {
		t.Setenv("FACESENSE_ADDR", ":8080")
		t.Setenv("FACESENSE_QUEUE_SIZE", "64")
		t.Setenv("FACESENSE_WORKER_COUNT", "2")
		t.Setenv("FACESENSE_DB_DRIVER", "memory")
		t.Setenv("FACESENSE_CHECKOUT_HOUR", "13")

		convey.Convey("Then setup loads them", func() {
			cfg, log, err := setup(context.Background(), &bytes.Buffer{})
			convey.So(err, convey.ShouldBeNil)
			convey.So(log, convey.ShouldNotBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			convey.So(cfg.CheckoutHour, convey.ShouldEqual, 13)
		})

		convey.Convey("Then the API server is built from the config", func() {
			cfg := config.New()
			cfg.EnableAuth = true
			convey.So(newAPIServer(cfg, nil, logger.Nop()).Handler(), convey.ShouldNotBeNil)
		})

		convey.Convey("Then production servers send HSTS", func() {
			cfg := config.ForEnvironment(config.EnvProduction)
			w := httptest.NewRecorder()
			newAPIServer(cfg, nil, logger.Nop()).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
			convey.So(w.Header().Get("Strict-Transport-Security"), convey.ShouldNotBeEmpty)

			w = httptest.NewRecorder()
			newAPIServer(config.New(), nil, logger.Nop()).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
			convey.So(w.Header().Get("Strict-Transport-Security"), convey.ShouldBeEmpty)
			convey.So(w.Header().Get("X-Frame-Options"), convey.ShouldEqual, "DENY")
		})
	})

	convey.Convey("Given an invalid override", t, func() {
		t.Setenv("FACESENSE_CHECKOUT_HOUR", "25")
		_, _, err := setup(context.Background(), &bytes.Buffer{})
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestReport(t *testing.T) {
	convey.Convey("Given report bounds", t, func() {
		from, to := reportRange("", "", "2024-05-01")
		convey.So(from, convey.ShouldEqual, "2024-05-01")
		convey.So(to, convey.ShouldEqual, "2024-05-01")

		from, to = reportRange("2024-04-01", "", "2024-05-01")
		convey.So(from, convey.ShouldEqual, "2024-04-01")
		convey.So(to, convey.ShouldEqual, "2024-04-01")
	})

	convey.Convey("Given attendance records", t, func() {
		in := "09:15:00"
		recs := []model.AttendanceRecord{{
			EmployeeName: "Jane Doe", EmployeeID: "1042", Date: "2024-05-01", TimeIn: &in, Status: model.StatusIn,
		}}

		convey.Convey("Then csv carries the header and one row", func() {
			var buf bytes.Buffer
			convey.So(writeReport(&buf, "csv", recs), convey.ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			convey.So(lines, convey.ShouldHaveLength, 2)
			convey.So(lines[0], convey.ShouldEqual, "name,employee_id,date,time_in,time_out,status,work_hours")
			convey.So(lines[1], convey.ShouldStartWith, "Jane Doe,1042,2024-05-01,09:15:00")
		})

		convey.Convey("Then json decodes back", func() {
			var buf bytes.Buffer
			convey.So(writeReport(&buf, "json", recs), convey.ShouldBeNil)
			var got []map[string]any
			convey.So(json.Unmarshal(buf.Bytes(), &got), convey.ShouldBeNil)
			convey.So(got, convey.ShouldHaveLength, 1)
			convey.So(got[0]["name"], convey.ShouldEqual, "Jane Doe")
			convey.So(got[0]["work_hours"], convey.ShouldBeNil)
		})

		convey.Convey("Then unknown formats are refused", func() {
			convey.So(writeReport(&bytes.Buffer{}, "xml", recs), convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given the report command on an empty memory ledger", t, func() {
		t.Setenv("FACESENSE_DB_DRIVER", "memory")
		out, err := execute("report", "--from", "2024-05-01", "--to", "2024-05-02")
		convey.So(err, convey.ShouldBeNil)
		convey.So(strings.TrimSpace(out), convey.ShouldEqual, "name,employee_id,date,time_in,time_out,status,work_hours")
	})

	convey.Convey("Given summary windows", t, func() {
		now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

		convey.Convey("Then weekly ends on --to and monthly covers its month", func() {
			from, to, err := summaryRange("weekly", "", "2024-05-07", now)
			convey.So(err, convey.ShouldBeNil)
			convey.So(from, convey.ShouldEqual, "2024-05-01")
			convey.So(to, convey.ShouldEqual, "2024-05-07")

			from, to, err = summaryRange("monthly", "", "", now)
			convey.So(err, convey.ShouldBeNil)
			convey.So(from, convey.ShouldEqual, "2024-05-01")
			convey.So(to, convey.ShouldEqual, "2024-05-31")
		})

		convey.Convey("Then an explicit --from wins", func() {
			from, to, err := summaryRange("weekly", "2024-05-10", "2024-05-12", now)
			convey.So(err, convey.ShouldBeNil)
			convey.So(from, convey.ShouldEqual, "2024-05-10")
			convey.So(to, convey.ShouldEqual, "2024-05-12")
		})

		convey.Convey("Then unknown summaries and bad dates are refused", func() {
			_, _, err := summaryRange("yearly", "", "", now)
			convey.So(err, convey.ShouldNotBeNil)
			_, _, err = summaryRange("weekly", "", "15/05/2024", now)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a day with one complete and one open record", t, func() {
		in, out := "09:00:00", "17:30:00"
		recs := []model.AttendanceRecord{
			{EmployeeName: "Jane Doe", EmployeeID: "1042", Date: "2024-05-01", TimeIn: &in, TimeOut: &out, Status: model.StatusOut},
			{EmployeeName: "John Roe", EmployeeID: "1043", Date: "2024-05-01", TimeIn: &in, Status: model.StatusIn},
		}

		convey.Convey("Then the weekly summary averages the complete one", func() {
			var buf bytes.Buffer
			convey.So(writeSummary(&buf, "weekly", "csv", "2024-04-25", "2024-05-01", recs), convey.ShouldBeNil)
			convey.So(buf.String(), convey.ShouldContainSubstring, "2024-04-25,2024-05-01,2,8.50,1,2")
		})

		convey.Convey("Then the monthly summary is json per employee", func() {
			var buf bytes.Buffer
			convey.So(writeSummary(&buf, "monthly", "json", "2024-05-01", "2024-05-31", recs), convey.ShouldBeNil)
			var got struct {
				Employees []map[string]any `json:"employees"`
			}
			convey.So(json.Unmarshal(buf.Bytes(), &got), convey.ShouldBeNil)
			convey.So(got.Employees, convey.ShouldHaveLength, 2)
			convey.So(got.Employees[0]["total_work_hours"], convey.ShouldEqual, 8.5)
			convey.So(got.Employees[1]["days_present"], convey.ShouldEqual, 1.0)
		})

		convey.Convey("Then an unknown format is refused", func() {
			convey.So(writeSummary(&bytes.Buffer{}, "weekly", "xml", "", "", recs), convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given the weekly summary command on an empty memory ledger", t, func() {
		t.Setenv("FACESENSE_DB_DRIVER", "memory")
		defer func() { _ = reportCmd.Flags().Set("summary", "") }()
		out, err := execute("report", "--summary", "weekly", "--to", "2024-05-07")
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldContainSubstring, "2024-05-01,2024-05-07,0,0.00,0,0")
	})

	convey.Convey("Given an unsupported driver", t, func() {
		_, err := repository.Open(context.Background(), repository.Settings{Driver: "oracle"})
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestCommands(t *testing.T) {
	convey.Convey("Given the version command", t, func() {
		out, err := execute("version")
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldContainSubstring, "facesense "+Version)
		convey.So(out, convey.ShouldContainSubstring, "Commit: "+CommitSHA)
	})

	convey.Convey("Given the hash-password command", t, func() {
		out, err := execute("hash-password", "s3cret")
		convey.So(err, convey.ShouldBeNil)
		hash := strings.TrimSpace(out)
		convey.So(bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")), convey.ShouldBeNil)
	})

	convey.Convey("Given every subcommand is registered", t, func() {
		names := map[string]bool{}
		for _, c := range rootCmd.Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"serve", "enroll", "report", "loadtest", "version", "hash-password"} {
			convey.So(names[want], convey.ShouldBeTrue)
		}
	})
}
