package scheduler

import "errors"

var (
	// ErrCooldown is returned by ReportThrottled when the signal tripped the cooldown
	// or arrived while the scheduler was already cooling down.
	ErrCooldown = errors.New("scheduler: too many consecutive rate limits, cooling down")

	// ErrRetriesExhausted is returned by ReportThrottled when the retry budget is used up.
	ErrRetriesExhausted = errors.New("scheduler: retries exhausted")
)
