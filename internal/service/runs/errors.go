package runs

import "errors"

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")
