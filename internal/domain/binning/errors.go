package binning

import "errors"

// Sentinel kinds for binning errors.
var (
	ErrInvalidScheme = errors.New("invalid bin scheme")
)
