package service

import "errors"

// Sentinel kinds for run errors.
var (
	ErrLoadInput  = errors.New("load input")
	ErrJobsFailed = errors.New("jobs failed")
	ErrSink       = errors.New("save run")
	ErrNoConfig   = errors.New("service has no configuration")
)
