package config

import (
	"fmt"
	"slices"
	"strings"
)

var (
	cameraKinds = []string{"webcam", "ip_camera", "rtsp", "file"}
	dbDrivers   = []string{"memory", "sqlite", "mysql", "postgres"}
)

// Validate checks the configuration and returns every problem found,
// wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		add("unknown environment %q", c.Environment)
	}
	if c.Addr == "" {
		add("addr must not be empty")
	}
	if !slices.Contains(cameraKinds, c.CameraKind) {
		add("camera_kind must be one of %s", strings.Join(cameraKinds, ", "))
	}
	if !slices.Contains(dbDrivers, c.DBDriver) {
		add("db_driver must be one of %s", strings.Join(dbDrivers, ", "))
	}
	if c.DBDriver != "memory" && c.DBDSN == "" {
		add("db_dsn must not be empty for %s", c.DBDriver)
	}
	if c.CooldownSeconds <= 0 {
		add("cooldown_seconds must be positive")
	}
	if c.CheckoutHour < 0 || c.CheckoutHour > 23 {
		add("checkout_hour must be within 0..23")
	}
	if c.LedgerTimeoutMS <= 0 {
		add("ledger_timeout_ms must be positive")
	}
	if c.QueueSize <= 0 || c.WorkerCount <= 0 {
		add("queue_size and worker_count must be positive")
	}
	if c.DetectEvery <= 0 {
		add("detect_every must be positive")
	}
	if c.FrameIntervalMS <= 0 {
		add("frame_interval_ms must be positive")
	}
	if c.SweepEveryFrames <= 0 {
		add("sweep_every_frames must be positive")
	}
	if c.SweepIntervalSeconds <= 0 {
		add("sweep_interval_seconds must be positive")
	}

	if c.IsProduction() {
		if c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret {
			add("jwt_secret must be changed in production")
		}
		if !c.EnableAuth {
			add("enable_auth must be true in production")
		}
		if c.EnableAuth && c.AdminPasswordHash == "" {
			add("admin_password_hash is required when auth is enabled")
		}
		if c.CameraKind != "webcam" && c.CameraSource == "" {
			add("camera_source is required for %s", c.CameraKind)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
