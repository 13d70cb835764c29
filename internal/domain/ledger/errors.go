package ledger

import "errors"

// Sentinel errors shared by the ledger and its stores.
var (
	// ErrNotFound is returned by Tx.Get when no record exists for the key.
	ErrNotFound = errors.New("attendance record not found")
	// ErrConflict is returned by Tx.Insert when the key already exists.
	ErrConflict = errors.New("attendance record already exists")
	// ErrInvalidDetection rejects a detection with malformed fields.
	ErrInvalidDetection = errors.New("invalid detection")
	// ErrPersistence wraps any store failure surfaced by RecordDetection.
	ErrPersistence = errors.New("attendance persistence failed")
)
