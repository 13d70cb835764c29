// Package api serves the attendance ledger, engine status and probe
// submission over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/okian/facesense/internal/adapters/camera"
	"github.com/okian/facesense/internal/adapters/http/swagger"
	service "github.com/okian/facesense/internal/app"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/logger"
)

// AttendanceReader answers ledger queries. Dates are YYYY-MM-DD.
type AttendanceReader interface {
	Today() string
	ListByDate(ctx context.Context, date string) ([]model.AttendanceRecord, error)
	ListRange(ctx context.Context, from, to string) ([]model.AttendanceRecord, error)
	ListByEmployee(ctx context.Context, name, from, to string) ([]model.AttendanceRecord, error)
	Stats(ctx context.Context, date string) (model.DayStats, error)
}

// StatusProvider exposes engine health.
type StatusProvider interface {
	Status(ctx context.Context) service.SystemStatus
	CameraStatus() (camera.Status, bool)
	PingDB(ctx context.Context) error
	RecentDecisions() []model.Decision
}

// ProbeSubmitter queues embeddings computed by edge devices.
type ProbeSubmitter interface {
	SubmitEmbedding(ctx context.Context, e model.Embedding, source string) (string, error)
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	AttendanceReader
	StatusProvider
	ProbeSubmitter
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps        Dependencies
	auth        *authenticator
	corsOrigins []string
	hsts        bool
	logger      logger.Logger

	health       *HealthHandler
	attendance   *AttendanceHandler
	recognitions *RecognitionsHandler
}

// Option configures a Server.
type Option func(*Server)

// WithAuth enables bearer token auth on /api routes.
func WithAuth(cfg AuthConfig) Option {
	return func(s *Server) { s.auth = newAuthenticator(cfg) }
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithHSTS adds Strict-Transport-Security to every response.
func WithHSTS(enabled bool) Option {
	return func(s *Server) { s.hsts = enabled }
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	if s.auth == nil {
		s.auth = newAuthenticator(AuthConfig{})
	}
	s.health = NewHealthHandler(deps)
	s.attendance = NewAttendanceHandler(deps)
	s.recognitions = NewRecognitionsHandler(deps)
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.securityHeaders)
	r.Use(s.instrument)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler)
	}

	r.Get("/health", s.health.HandleHealth)
	r.Get("/health/camera", s.health.HandleCamera)
	r.Get("/health/db", s.health.HandleDB)
	r.Handle("/metrics", s.health.MetricsHandler())
	swagger.Register(r)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.auth.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.middleware)

			r.Get("/auth/me", s.auth.handleMe)
			r.Route("/attendance", func(r chi.Router) {
				r.Get("/", s.attendance.HandleList)
				r.Get("/today", s.attendance.HandleToday)
				r.Get("/stats", s.attendance.HandleStats)
				r.Get("/download", s.attendance.HandleDownload)
			})
			r.Get("/system/status", s.health.HandleStatus)
			r.Get("/recognitions/recent", s.recognitions.HandleRecent)
			r.Post("/recognitions", s.recognitions.HandleSubmit)
		})
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
