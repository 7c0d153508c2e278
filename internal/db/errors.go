package db

import "errors"

// Domain-level database error sentinels.
var (
	// Domain errors
	ErrDomainNotFound  = errors.New("domain not found")
	ErrDuplicateDomain = errors.New("domain already exists")

	// Run errors
	ErrRunNotFound      = errors.New("run not found")
	ErrActiveRunExists  = errors.New("domain already has a pending or running run")
	ErrRunStateConflict = errors.New("run is not in the expected state")

	// Backlink errors
	ErrBacklinkNotFound = errors.New("backlink not found")

	// Delta errors
	ErrDeltaNotFound = errors.New("delta not found")
)
