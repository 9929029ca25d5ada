package status

import "errors"

// Sentinel kinds for status classification errors.
var (
	ErrUnknownCohort   = errors.New("unknown cohort")
	ErrUnknownCategory = errors.New("unknown status category")
	ErrUnknownMapping  = errors.New("unknown status mapping")
)
