package metrics

import "errors"

var (
	ErrInvalidPort             = errors.New("invalid metrics port")
	ErrServerAlreadyRunning    = errors.New("metrics server is already running")
	ErrServerNotRunning        = errors.New("metrics server is not running")
	ErrMetricAlreadyRegistered = errors.New("metric is already registered")
)
