package pipeline

import "errors"

var (
	// ErrRunNotRunnable is returned when the run is already running or completed.
	ErrRunNotRunnable = errors.New("run is not in a runnable state")
	// ErrMissingHost is returned when the run's domain has no host to audit.
	ErrMissingHost = errors.New("domain has no host")
)
