package aggregate

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrUnknownStatusSource = errors.New("unknown status source")
	ErrUnknownMeanMode     = errors.New("unknown mean mode")
)
