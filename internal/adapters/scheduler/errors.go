package scheduler

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidSpec = errors.New("invalid cron spec")
	ErrNoSubmitter = errors.New("scheduler: submitter is required")
)
