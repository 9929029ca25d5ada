package render

import "errors"

// ErrNoData is returned when a chart would have nothing to draw.
var ErrNoData = errors.New("no data to render")
