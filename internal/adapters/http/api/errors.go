package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrNoReport = errors.New("no run finished yet")
	ErrServe    = errors.New("http serve failed")
)
