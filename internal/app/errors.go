package app

import "errors"

// Sentinel kinds for vote processing errors.
var (
	// ErrConflictRetry reports that all bounded conflict retries were
	// exhausted. The caller may resubmit the same vote event; processing
	// is idempotent by event id.
	ErrConflictRetry = errors.New("statistics update contention, retry")

	// ErrNotStarted reports use of a service before Start.
	ErrNotStarted = errors.New("service not started")
)
