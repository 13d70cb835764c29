package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/facesense/internal/adapters/repository"
	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func det(name, date, hms string, s model.Status) model.Detection {
	return model.Detection{EmployeeName: name, EmployeeID: "1042", Date: date, Time: hms, Status: s}
}

// repositoryContract runs the shared ledger behaviour against repo.
func repositoryContract(repo ledger.Repository) {
	ctx := context.Background()
	l := ledger.New(repo, ledger.WithLogger(logger.Nop()), ledger.WithClock(func() time.Time { return fixedNow }))

	Convey("When an IN detection arrives for a new key", func() {
		out, err := l.RecordDetection(ctx, det("Jane Doe", "2024-03-04", "09:05:00", model.StatusIn))
		So(err, ShouldBeNil)
		So(out.Op, ShouldEqual, ledger.OpInsert)

		recs, err := repo.ListByDate(ctx, "2024-03-04")
		So(err, ShouldBeNil)
		So(recs, ShouldHaveLength, 1)
		So(*recs[0].TimeIn, ShouldEqual, "09:05:00")
		So(recs[0].TimeOut, ShouldBeNil)
		So(recs[0].Status, ShouldEqual, model.StatusIn)
		So(recs[0].EmployeeID, ShouldEqual, "1042")

		Convey("And a later IN and an OUT follow", func() {
			_, err := l.RecordDetection(ctx, det("Jane Doe", "2024-03-04", "10:00:00", model.StatusIn))
			So(err, ShouldBeNil)
			_, err = l.RecordDetection(ctx, det("Jane Doe", "2024-03-04", "17:30:00", model.StatusOut))
			So(err, ShouldBeNil)
			_, err = l.RecordDetection(ctx, det("Jane Doe", "2024-03-04", "18:10:00", model.StatusOut))
			So(err, ShouldBeNil)

			Convey("Then the first IN and the last OUT are kept", func() {
				recs, err := repo.ListByDate(ctx, "2024-03-04")
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 1)
				So(*recs[0].TimeIn, ShouldEqual, "09:05:00")
				So(*recs[0].TimeOut, ShouldEqual, "18:10:00")
				So(recs[0].Status, ShouldEqual, model.StatusOut)

				st, err := repo.Stats(ctx, "2024-03-04")
				So(err, ShouldBeNil)
				So(st, ShouldResemble, model.DayStats{Date: "2024-03-04", Total: 1, CheckedIn: 0, CheckedOut: 1})
			})

			Convey("And another employee is still in", func() {
				_, err := l.RecordDetection(ctx, det("John Roe", "2024-03-04", "09:30:00", model.StatusIn))
				So(err, ShouldBeNil)

				Convey("Then the day splits by current status", func() {
					st, err := repo.Stats(ctx, "2024-03-04")
					So(err, ShouldBeNil)
					So(st, ShouldResemble, model.DayStats{Date: "2024-03-04", Total: 2, CheckedIn: 1, CheckedOut: 1})
					So(st.CheckedIn+st.CheckedOut, ShouldEqual, st.Total)
				})
			})
		})
	})

	Convey("When the first detection of the day is OUT", func() {
		_, err := l.RecordDetection(ctx, det("John Roe", "2024-03-05", "13:00:00", model.StatusOut))
		So(err, ShouldBeNil)

		Convey("Then an OUT-only record exists", func() {
			recs, err := repo.ListByEmployee(ctx, "John Roe", "2024-03-01", "2024-03-31")
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
			So(recs[0].TimeIn, ShouldBeNil)
			So(*recs[0].TimeOut, ShouldEqual, "13:00:00")
			So(recs[0].Status, ShouldEqual, model.StatusOut)
		})
	})

	Convey("When the same detection is applied twice", func() {
		d := det("Jane Doe", "2024-03-06", "08:00:00", model.StatusIn)
		_, err := l.RecordDetection(ctx, d)
		So(err, ShouldBeNil)
		out, err := l.RecordDetection(ctx, d)
		So(err, ShouldBeNil)

		Convey("Then the second is a no-op", func() {
			So(out.Op, ShouldEqual, ledger.OpNoop)
			recs, _ := repo.ListByDate(ctx, "2024-03-06")
			So(recs, ShouldHaveLength, 1)
		})
	})

	Convey("When several employees are recorded across days", func() {
		for i, day := range []string{"2024-04-01", "2024-04-02", "2024-04-03"} {
			for _, name := range []string{"Ann", "Bob"} {
				_, err := l.RecordDetection(ctx, det(name, day, fmt.Sprintf("0%d:00:00", 7+i), model.StatusIn))
				So(err, ShouldBeNil)
			}
		}

		Convey("Then range queries are inclusive and ordered", func() {
			recs, err := repo.ListRange(ctx, "2024-04-02", "2024-04-03")
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 4)
			So(recs[0].Date, ShouldEqual, "2024-04-02")
			So(recs[0].EmployeeName, ShouldEqual, "Ann")
			So(recs[3].Date, ShouldEqual, "2024-04-03")
			So(recs[3].EmployeeName, ShouldEqual, "Bob")
		})

		Convey("Then an inverted range is rejected", func() {
			_, err := repo.ListRange(ctx, "2024-04-03", "2024-04-01")
			So(errors.Is(err, repository.ErrInvalidRange), ShouldBeTrue)
		})
	})

	Convey("When many workers record the same key concurrently", func() {
		var wg sync.WaitGroup
		times := []string{"09:30:00", "09:10:00", "09:50:00", "09:01:00", "09:20:00", "09:40:00"}
		for _, hms := range times {
			wg.Add(1)
			go func(hms string) {
				defer wg.Done()
				_, _ = l.RecordDetection(ctx, det("Race", "2024-05-01", hms, model.StatusIn))
			}(hms)
		}
		wg.Wait()

		Convey("Then one record holds the earliest time", func() {
			recs, err := repo.ListByDate(ctx, "2024-05-01")
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
			So(*recs[0].TimeIn, ShouldEqual, "09:01:00")
		})
	})

	Convey("When a transaction fails", func() {
		key := model.RecordKey{EmployeeName: "Rollback", Date: "2024-06-01"}
		boom := errors.New("boom")
		err := repo.InTx(ctx, key, func(tx ledger.Tx) error {
			in := "08:00:00"
			if err := tx.Insert(ctx, model.AttendanceRecord{
				EmployeeName: key.EmployeeName, EmployeeID: "7", Date: key.Date,
				TimeIn: &in, Status: model.StatusIn, CreatedAt: fixedNow, UpdatedAt: fixedNow,
			}); err != nil {
				return err
			}
			return boom
		})

		Convey("Then nothing is persisted", func() {
			So(errors.Is(err, boom), ShouldBeTrue)
			recs, _ := repo.ListByDate(ctx, key.Date)
			So(recs, ShouldBeEmpty)
		})
	})

	Convey("When inserting an existing key directly", func() {
		_, err := l.RecordDetection(ctx, det("Dup", "2024-07-01", "08:00:00", model.StatusIn))
		So(err, ShouldBeNil)

		err = repo.InTx(ctx, model.RecordKey{EmployeeName: "Dup", Date: "2024-07-01"}, func(tx ledger.Tx) error {
			t := "07:00:00"
			return tx.Insert(ctx, model.AttendanceRecord{
				EmployeeName: "Dup", EmployeeID: "1", Date: "2024-07-01",
				TimeIn: &t, Status: model.StatusIn, CreatedAt: fixedNow, UpdatedAt: fixedNow,
			})
		})

		Convey("Then the conflict is reported", func() {
			So(errors.Is(err, ledger.ErrConflict), ShouldBeTrue)
		})
	})

	Convey("When pinging", func() {
		So(repo.Ping(ctx), ShouldBeNil)
	})
}
