package repository

import "errors"

// Sentinel kinds for repository errors. Record-level errors are the
// ledger's ErrNotFound and ErrConflict.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrOpen              = errors.New("open attendance database failed")
	ErrInvalidRange      = errors.New("invalid date range")
)
