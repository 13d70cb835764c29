// Package config defines service configuration and its loading.
//
// Values are layered: defaults from New, an optional YAML file, then
// FACESENSE_* environment variables. Keys are flat and match the koanf tags.
package config

import (
	"runtime"
	"time"
)

// Environments recognised by Validate.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// DefaultJWTSecret is the development signing key. Validate refuses it in production.
const DefaultJWTSecret = "dev-secret-key-change-in-production"

// Config contains process configuration.
type Config struct {
	Environment string `koanf:"environment"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// Camera source. CameraKind is one of webcam, ip_camera, rtsp, file.
	CameraKind     string `koanf:"camera_kind"`
	CameraSource   string `koanf:"camera_source"`
	CameraUsername string `koanf:"camera_username"`
	CameraPassword string `koanf:"camera_password"`
	CameraWidth    int    `koanf:"camera_width"`
	CameraHeight   int    `koanf:"camera_height"`
	CameraFPS      int    `koanf:"camera_fps"`
	CameraLoop     bool   `koanf:"camera_loop"`
	FFmpegPath     string `koanf:"ffmpeg_path"`

	// FrameIntervalMS paces the recognition loop.
	FrameIntervalMS int `koanf:"frame_interval_ms"`
	// DetectEvery runs detection on every Nth frame and reuses the rest.
	DetectEvery int `koanf:"detect_every"`

	// DBDriver is memory, sqlite, mysql or postgres.
	DBDriver       string `koanf:"db_driver"`
	DBDSN          string `koanf:"db_dsn"`
	DBMaxOpenConns int    `koanf:"db_max_open_conns"`
	DBMaxIdleConns int    `koanf:"db_max_idle_conns"`

	GalleryPath       string `koanf:"gallery_path"`
	EmployeePhotosDir string `koanf:"employee_photos_dir"`

	EmbedderURL       string `koanf:"embedder_url"`
	EmbedderTimeoutMS int    `koanf:"embedder_timeout_ms"`

	CooldownSeconds      int `koanf:"cooldown_seconds"`
	SweepEveryFrames     int `koanf:"sweep_every_frames"`
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`

	// CheckoutHour is the local hour from which detections count as OUT.
	CheckoutHour int `koanf:"checkout_hour"`

	LedgerTimeoutMS int `koanf:"ledger_timeout_ms"`

	// QueueSize bounds the in-memory probe queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of recognition workers.
	WorkerCount int `koanf:"worker_count"`

	EnableAuth            bool   `koanf:"enable_auth"`
	JWTSecret             string `koanf:"jwt_secret"`
	AdminUsername         string `koanf:"admin_username"`
	AdminPasswordHash     string `koanf:"admin_password_hash"`
	SessionTimeoutSeconds int    `koanf:"session_timeout_seconds"`

	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Environment:           EnvDevelopment,
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":5000",
		CameraKind:            "webcam",
		CameraSource:          "0",
		CameraWidth:           640,
		CameraHeight:          480,
		CameraFPS:             30,
		FFmpegPath:            "ffmpeg",
		FrameIntervalMS:       100,
		DetectEvery:           2,
		DBDriver:              "sqlite",
		DBDSN:                 "attendance_data/attendance.db",
		DBMaxOpenConns:        10,
		DBMaxIdleConns:        5,
		GalleryPath:           "model_data/gallery.yaml",
		EmployeePhotosDir:     "employee_photos",
		EmbedderURL:           "http://localhost:8000",
		EmbedderTimeoutMS:     5000,
		CooldownSeconds:       5,
		SweepEveryFrames:      100,
		SweepIntervalSeconds:  30,
		CheckoutHour:          12,
		LedgerTimeoutMS:       2000,
		QueueSize:             1024,
		WorkerCount:           min(runtime.NumCPU(), 4),
		JWTSecret:             DefaultJWTSecret,
		AdminUsername:         "admin",
		SessionTimeoutSeconds: 3600,
		CORSAllowedOrigins:    []string{"http://localhost:5173"},
	}
}

// ForEnvironment returns the defaults of the named profile. Staging and
// production turn auth on and expect an IP camera; production also quiets
// logging to warn and stores the ledger in postgres. Unknown names get the
// development defaults and are rejected by Validate.
func ForEnvironment(env string) *Config {
	c := New()
	if env == "" {
		return c
	}
	c.Environment = env
	switch env {
	case EnvStaging:
		c.EnableAuth = true
		c.LogLevel = "info"
		c.CameraKind = "ip_camera"
		c.CameraSource = "http://192.168.1.100:8080/video"
		c.CameraWidth, c.CameraHeight = 1280, 720
	case EnvProduction:
		c.EnableAuth = true
		c.LogLevel = "warn"
		c.CameraKind = "ip_camera"
		c.CameraSource = ""
		c.CameraWidth, c.CameraHeight = 1920, 1080
		c.DBDriver = "postgres"
		c.DBDSN = "postgres://localhost:5432/face_sense_prod?sslmode=disable"
		c.JWTSecret = ""
		c.CORSAllowedOrigins = nil
	}
	return c
}

// Cooldown returns the cooldown window.
func (c *Config) Cooldown() time.Duration { return time.Duration(c.CooldownSeconds) * time.Second }

// FrameInterval returns the pause between frame loop iterations.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// LedgerTimeout bounds one ledger write.
func (c *Config) LedgerTimeout() time.Duration {
	return time.Duration(c.LedgerTimeoutMS) * time.Millisecond
}

// EmbedderTimeout bounds one embedder call.
func (c *Config) EmbedderTimeout() time.Duration {
	return time.Duration(c.EmbedderTimeoutMS) * time.Millisecond
}

// SweepInterval is the period of the scheduled cooldown sweep.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// SessionTimeout is the lifetime of issued tokens.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }
