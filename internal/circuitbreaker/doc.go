// Package circuitbreaker guards the upstream from traffic while it is failing.
//
// A breaker has three states:
//
//   - CLOSED: normal operation, requests pass through
//   - OPEN: upstream failing, requests are refused until the reset timeout elapses
//   - HALF-OPEN: one probe request is let through to test recovery
//
// Usage:
//
//	cb := circuitbreaker.New(5, 30*time.Second)
//	if !cb.Allow() {
//	    // refuse with 503
//	}
//	if err != nil || status >= 500 {
//	    cb.RecordFailure()
//	} else {
//	    cb.RecordSuccess()
//	}
package circuitbreaker
