package period

import "errors"

// ErrInvalidJob marks a job definition that cannot run.
var ErrInvalidJob = errors.New("invalid period job")
