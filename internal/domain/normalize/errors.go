package normalize

import "errors"

// Sentinel kinds for normalization errors. Callers match with errors.Is.
var (
	ErrUnknownTask   = errors.New("unknown task")
	ErrUnknownMetric = errors.New("unknown metric")
	ErrOutOfRange    = errors.New("value out of range")
	ErrMissingField  = errors.New("missing field")
	ErrBadValue      = errors.New("malformed value")
)
