package repository

import (
	"context"
	"fmt"

	"github.com/okian/facesense/internal/domain/ledger"
	"github.com/okian/facesense/pkg/logger"
)

// Settings selects and tunes a backend.
type Settings struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	Logger       logger.Logger
}

// Open returns the ledger backend named by s.Driver.
func Open(ctx context.Context, s Settings) (ledger.Repository, error) {
	switch s.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "mysql":
		return OpenGorm(ctx, s.Driver, s.DSN, GormOptions{
			MaxOpenConns: s.MaxOpenConns,
			MaxIdleConns: s.MaxIdleConns,
			Logger:       s.Logger,
		})
	case "postgres":
		return OpenPostgres(ctx, s.DSN, PostgresOptions{MaxOpenConns: s.MaxOpenConns, MaxIdleConns: s.MaxIdleConns})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, s.Driver)
	}
}
