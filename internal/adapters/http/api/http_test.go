package api_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/facesense/internal/adapters/camera"
	"github.com/okian/facesense/internal/adapters/http/api"
	"github.com/okian/facesense/internal/adapters/mq/queue"
	"github.com/okian/facesense/internal/adapters/repository"
	service "github.com/okian/facesense/internal/app"
	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const today = "2024-03-11"

// mockDeps backs the reader with a real memory store.
type mockDeps struct {
	*repository.MemoryStore
	submitErr error
	submitted []model.Embedding
	dbErr     error
	camera    *camera.Status
	decisions []model.Decision
}

func (m *mockDeps) Today() string { return today }

func (m *mockDeps) Status(context.Context) service.SystemStatus {
	return service.SystemStatus{Started: true, QueueCapacity: 8, Workers: 2}
}

func (m *mockDeps) CameraStatus() (camera.Status, bool) {
	if m.camera == nil {
		return camera.Status{}, false
	}
	return *m.camera, true
}

func (m *mockDeps) PingDB(context.Context) error { return m.dbErr }

func (m *mockDeps) RecentDecisions() []model.Decision { return m.decisions }

func (m *mockDeps) SubmitEmbedding(_ context.Context, e model.Embedding, _ string) (string, error) {
	if m.submitErr != nil {
		return "", m.submitErr
	}
	m.submitted = append(m.submitted, e)
	return "probe-1", nil
}

func seeded() *mockDeps {
	store := repository.NewMemoryStore()
	led := ledger.New(store, ledger.WithLogger(logger.Nop()))
	at := func(h, m int) time.Time { return time.Date(2024, 3, 11, h, m, 0, 0, time.Local) }
	ctx := context.Background()
	for _, d := range []model.Detection{
		model.NewDetection("Jane Doe", "E042", at(9, 15), model.StatusIn),
		model.NewDetection("Jane Doe", "E042", at(17, 2), model.StatusOut),
		model.NewDetection("John Roe", "E007", at(13, 40), model.StatusOut),
		model.NewDetection("Jane Doe", "E042", at(9, 1).AddDate(0, 0, -1), model.StatusIn),
	} {
		if _, err := led.RecordDetection(ctx, d); err != nil {
			panic(err)
		}
	}
	return &mockDeps{MemoryStore: store}
}

func serve(h http.Handler, method, target string, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestAttendanceRoutes(t *testing.T) {
	Convey("Given a server over a seeded ledger", t, func() {
		deps := seeded()
		h := api.NewServer(deps, api.WithLogger(logger.Nop())).Handler()

		Convey("Today lists both employees", func() {
			w := serve(h, http.MethodGet, "/api/attendance/today", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["date"], ShouldEqual, today)
			So(body["count"], ShouldEqual, 2.0)

			recs, _ := body["records"].([]any)
			So(recs, ShouldHaveLength, 2)
			jane, _ := recs[0].(map[string]any)
			So(jane["work_hours"], ShouldEqual, 7.78)
			john, _ := recs[1].(map[string]any)
			So(john["work_hours"], ShouldBeNil)
		})

		Convey("An explicit date is honoured", func() {
			w := serve(h, http.MethodGet, "/api/attendance?date=2024-03-10", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["count"], ShouldEqual, 1.0)
		})

		Convey("A malformed date is rejected", func() {
			w := serve(h, http.MethodGet, "/api/attendance/?date=11/03/2024", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Employee history spans the range", func() {
			w := serve(h, http.MethodGet, "/api/attendance/?employee=Jane%20Doe&from=2024-03-01&to=2024-03-31", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["records"], ShouldHaveLength, 2)
		})

		Convey("An inverted range is rejected", func() {
			w := serve(h, http.MethodGet, "/api/attendance/?employee=Jane&from=2024-03-31&to=2024-03-01", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Stats split the day by current status", func() {
			w := serve(h, http.MethodGet, "/api/attendance/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var st model.DayStats
			So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
			So(st.Total, ShouldEqual, 2)
			So(st.CheckedIn, ShouldEqual, 0)
			So(st.CheckedOut, ShouldEqual, 2)
		})

		Convey("CSV download has a header and one row per record", func() {
			w := serve(h, http.MethodGet, "/api/attendance/download?from=2024-03-10&to=2024-03-11", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "text/csv")
			So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "attendance_2024-03-10_2024-03-11.csv")

			rows, err := csv.NewReader(bytes.NewReader(w.Body.Bytes())).ReadAll()
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 4)
			So(rows[0], ShouldResemble, api.CSVHeader)
			So(rows[1][6], ShouldEqual, "")
			So(rows[2][0], ShouldEqual, "Jane Doe")
			So(rows[2][6], ShouldEqual, "7.78")
		})

		Convey("JSON download and unknown formats", func() {
			So(serve(h, http.MethodGet, "/api/attendance/download?format=json", "").Code, ShouldEqual, http.StatusOK)
			So(serve(h, http.MethodGet, "/api/attendance/download?format=xml", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestWriteCSV(t *testing.T) {
	Convey("Missing times are written as empty cells", t, func() {
		out := "17:00:00"
		var buf bytes.Buffer
		err := api.WriteCSV(&buf, []model.AttendanceRecord{{
			EmployeeName: "Jane Doe", EmployeeID: "E042", Date: today, TimeOut: &out, Status: model.StatusOut,
		}})
		So(err, ShouldBeNil)
		So(buf.String(), ShouldEqual, "name,employee_id,date,time_in,time_out,status,work_hours\nJane Doe,E042,2024-03-11,,17:00:00,OUT,\n")
	})
}

func TestSecurityHeaders(t *testing.T) {
	Convey("Given a server without HSTS", t, func() {
		h := api.NewServer(seeded(), api.WithLogger(logger.Nop())).Handler()

		Convey("Every response carries the hardening headers", func() {
			for _, target := range []string{"/health", "/api/attendance/today", "/missing"} {
				w := serve(h, http.MethodGet, target, "")
				So(w.Header().Get("X-Content-Type-Options"), ShouldEqual, "nosniff")
				So(w.Header().Get("X-Frame-Options"), ShouldEqual, "DENY")
				So(w.Header().Get("Strict-Transport-Security"), ShouldBeEmpty)
			}
		})
	})

	Convey("Given a production server", t, func() {
		h := api.NewServer(seeded(), api.WithLogger(logger.Nop()), api.WithHSTS(true)).Handler()

		Convey("HSTS is sent", func() {
			w := serve(h, http.MethodGet, "/health", "")
			So(w.Header().Get("Strict-Transport-Security"), ShouldEqual, "max-age=31536000; includeSubDomains")
		})
	})
}

func TestHealthRoutes(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := seeded()
		h := api.NewServer(deps, api.WithLogger(logger.Nop())).Handler()

		Convey("Health reports healthy once started", func() {
			w := serve(h, http.MethodGet, "/health", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "healthy")
		})

		Convey("DB health follows the ping", func() {
			So(serve(h, http.MethodGet, "/health/db", "").Code, ShouldEqual, http.StatusOK)
			deps.dbErr = errors.New("connection refused")
			So(serve(h, http.MethodGet, "/health/db", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Camera health reflects the capturer", func() {
			So(serve(h, http.MethodGet, "/health/camera", "").Code, ShouldEqual, http.StatusOK)
			deps.camera = &camera.Status{Kind: "rtsp", Connected: false}
			So(serve(h, http.MethodGet, "/health/camera", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Metrics and system status are served", func() {
			So(serve(h, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
			w := serve(h, http.MethodGet, "/api/system/status", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["workers"], ShouldEqual, 2.0)
		})

		Convey("API docs stay open", func() {
			So(serve(h, http.MethodGet, "/openapi.yaml", "").Code, ShouldEqual, http.StatusOK)
			So(serve(h, http.MethodGet, "/api-docs", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestRecognitionRoutes(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := seeded()
		h := api.NewServer(deps, api.WithLogger(logger.Nop())).Handler()

		Convey("A valid embedding is accepted", func() {
			w := serve(h, http.MethodPost, "/api/recognitions", `{"embedding":[0.1,0.2],"source":"door-1"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decode(w)["probe_id"], ShouldEqual, "probe-1")
			So(deps.submitted, ShouldHaveLength, 1)
		})

		Convey("A full queue answers 429", func() {
			deps.submitErr = queue.ErrFull
			w := serve(h, http.MethodPost, "/api/recognitions", `{"embedding":[0.1,0.2]}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("Bad payloads answer 400", func() {
			So(serve(h, http.MethodPost, "/api/recognitions", `{"embedding":[]}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodPost, "/api/recognitions", `nope`).Code, ShouldEqual, http.StatusBadRequest)
			deps.submitErr = service.ErrInvalidEmbedding
			So(serve(h, http.MethodPost, "/api/recognitions", `{"embedding":[1]}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Recent decisions show the display name", func() {
			deps.decisions = []model.Decision{{ProbeID: "p", Display: model.UnknownIdentity, Match: model.MatchResult{Identity: "Jane Doe"}}}
			w := serve(h, http.MethodGet, "/api/recognitions/recent", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"name":"Unknown"`)
		})
	})
}

func TestAuth(t *testing.T) {
	Convey("Given a server with auth enabled", t, func() {
		hash, err := api.HashPassword("s3cret")
		So(err, ShouldBeNil)
		now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
		cfg := api.AuthConfig{
			Enabled: true, Secret: []byte("test-secret"), Username: "admin", PasswordHash: hash,
			TTL: time.Hour, Now: func() time.Time { return now },
		}
		h := api.NewServer(seeded(), api.WithLogger(logger.Nop()), api.WithAuth(cfg)).Handler()

		Convey("Protected routes refuse anonymous requests", func() {
			So(serve(h, http.MethodGet, "/api/attendance/download", "").Code, ShouldEqual, http.StatusUnauthorized)
			So(serve(h, http.MethodGet, "/health", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Wrong credentials are refused", func() {
			w := serve(h, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"nope"}`)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("A login token unlocks protected routes", func() {
			w := serve(h, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"s3cret"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			token, _ := decode(w)["token"].(string)
			So(token, ShouldNotBeEmpty)

			me := serve(h, http.MethodGet, "/api/auth/me", "", "Authorization", "Bearer "+token)
			So(me.Code, ShouldEqual, http.StatusOK)
			So(decode(me)["username"], ShouldEqual, "admin")

			dl := serve(h, http.MethodGet, "/api/attendance/download", "", "Authorization", "Bearer "+token)
			So(dl.Code, ShouldEqual, http.StatusOK)

			Convey("And stops working once expired", func() {
				now = now.Add(2 * time.Hour)
				w := serve(h, http.MethodGet, "/api/auth/me", "", "Authorization", "Bearer "+token)
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("A token signed with another key is refused", func() {
			w := serve(h, http.MethodGet, "/api/auth/me", "", "Authorization", "Bearer a.b.c")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})

	Convey("Given auth disabled", t, func() {
		h := api.NewServer(seeded(), api.WithLogger(logger.Nop())).Handler()
		So(serve(h, http.MethodPost, "/api/auth/login", `{}`).Code, ShouldEqual, http.StatusNotFound)
		So(serve(h, http.MethodGet, "/api/auth/me", "").Code, ShouldEqual, http.StatusOK)
	})
}
