package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/liftoff/platform/internal/domain"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker protects calls to the payment gateway. It opens after
// failThreshold consecutive failures, rejects while open, and after
// resetTimeout lets one probe through; a probe success closes it again.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         CircuitState
	failures      int
	probing       bool
	lastFailure   time.Time
	failThreshold int
	resetTimeout  time.Duration
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
	}
}

// Check reports whether a call may proceed.
func (cb *CircuitBreaker) Check() domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.probing = true
			return domain.GuardResult{Allowed: true}
		}
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("gateway circuit open, resets in %s", cb.resetTimeout-time.Since(cb.lastFailure)),
			Guard:   "circuit_breaker",
		}
	case CircuitHalfOpen:
		if cb.probing {
			return domain.GuardResult{
				Allowed: false,
				Reason:  "gateway circuit half-open, probe in flight",
				Guard:   "circuit_breaker",
			}
		}
		cb.probing = true
		return domain.GuardResult{Allowed: true}
	default:
		return domain.GuardResult{Allowed: true}
	}
}

// RecordSuccess marks a successful gateway call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	cb.state = CircuitClosed
}

// RecordFailure marks a failed gateway call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()
	cb.probing = false
	if cb.state == CircuitHalfOpen || cb.failures >= cb.failThreshold {
		cb.state = CircuitOpen
	}
}
