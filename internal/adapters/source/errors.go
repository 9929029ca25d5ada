package source

import "errors"

// Sentinel kinds for source errors.
var (
	ErrMissingColumn     = errors.New("missing column")
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrEmptyTable        = errors.New("table has no header")
)
