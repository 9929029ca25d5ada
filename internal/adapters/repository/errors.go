package repository

import "errors"

// Sentinel kinds for result sink errors.
var (
	ErrNotFound          = errors.New("run not found")
	ErrUnsupportedDriver = errors.New("unsupported sink driver")
)
