package api

import "errors"

// ErrBadRequest marks malformed query parameters or bodies (400).
var ErrBadRequest = errors.New("bad request")

// ErrBackpressure is returned when the probe queue is full (429).
var ErrBackpressure = errors.New("probe queue is full, retry later")

// ErrUnauthorized marks missing, invalid or expired credentials (401).
var ErrUnauthorized = errors.New("unauthorized")
