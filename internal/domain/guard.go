package domain

import "time"

// GuardResult is the outcome of an admission check (rate limit, throttle,
// circuit breaker).
type GuardResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Reason    string
	Guard     string
}
