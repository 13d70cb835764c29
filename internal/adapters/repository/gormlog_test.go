package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/facesense/pkg/logger"
)

type entry struct {
	level  string
	msg    string
	fields map[string]any
}

type recorder struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recorder) add(level, msg string, fields []logger.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	r.entries = append(r.entries, entry{level: level, msg: msg, fields: m})
}

func (r *recorder) Info(_ context.Context, msg string, f ...logger.Field)  { r.add("info", msg, f) }
func (r *recorder) Error(_ context.Context, msg string, f ...logger.Field) { r.add("error", msg, f) }
func (r *recorder) Debug(_ context.Context, msg string, f ...logger.Field) { r.add("debug", msg, f) }
func (r *recorder) Warn(_ context.Context, msg string, f ...logger.Field)  { r.add("warn", msg, f) }
func (r *recorder) Fatal(_ context.Context, msg string, f ...logger.Field) { r.add("fatal", msg, f) }
func (r *recorder) Named(string) logger.Logger                             { return r }
func (r *recorder) With(...logger.Field) logger.Logger                     { return r }

func TestGormLog(t *testing.T) {
	Convey("Given a gorm logger at warn", t, func() {
		ctx := context.Background()
		rec := &recorder{}
		gl := newGormLog(rec, gormlogger.Warn, 100*time.Millisecond)
		sql := func() (string, int64) { return "SELECT 1", 1 }

		Convey("When a query fails", func() {
			gl.Trace(ctx, time.Now(), sql, errors.New("boom"))

			Convey("Then it is logged at error with the statement", func() {
				So(rec.entries, ShouldHaveLength, 1)
				So(rec.entries[0].level, ShouldEqual, "error")
				So(rec.entries[0].fields["sql"], ShouldEqual, "SELECT 1")
				So(rec.entries[0].fields["rows"], ShouldEqual, int64(1))
			})
		})

		Convey("When a lookup finds nothing", func() {
			gl.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
			So(rec.entries, ShouldBeEmpty)
		})

		Convey("When a query is slow", func() {
			gl.Trace(ctx, time.Now().Add(-time.Second), sql, nil)

			Convey("Then it is logged at warn", func() {
				So(rec.entries, ShouldHaveLength, 1)
				So(rec.entries[0].level, ShouldEqual, "warn")
				So(rec.entries[0].msg, ShouldEqual, "slow query")
			})
		})

		Convey("When a fast query succeeds", func() {
			gl.Trace(ctx, time.Now(), sql, nil)
			So(rec.entries, ShouldBeEmpty)
		})

		Convey("When gorm reports messages", func() {
			gl.Info(ctx, "migrating %s", "attendance")
			gl.Warn(ctx, "deprecated %d", 1)

			Convey("Then only those at or above the level pass", func() {
				So(rec.entries, ShouldHaveLength, 1)
				So(rec.entries[0].msg, ShouldEqual, "deprecated 1")
			})
		})

		Convey("When switched to info", func() {
			verbose := gl.LogMode(gormlogger.Info)
			verbose.Trace(ctx, time.Now(), sql, nil)

			Convey("Then every query is traced at debug and the original is unchanged", func() {
				So(rec.entries, ShouldHaveLength, 1)
				So(rec.entries[0].level, ShouldEqual, "debug")
				So(gl.level, ShouldEqual, gormlogger.Warn)
			})
		})

		Convey("When silenced", func() {
			gl.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sql, errors.New("boom"))
			So(rec.entries, ShouldBeEmpty)
		})
	})
}
