// File: internal/resilience/errors.go
package resilience

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// CircuitOpenError is returned when a category's circuit rejects a call
// without invoking the wrapped operation.
type CircuitOpenError struct {
	Category string
	// Remaining is the cooldown left before a half-open trial is admitted.
	// Zero while another half-open trial is already in flight.
	Remaining time.Duration
	Failures  int
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q is open (%d consecutive failures); retry in %s",
		e.Category, e.Failures, e.Remaining.Round(time.Millisecond))
}

// TimedOutError is returned by WithTimeout when the deadline fires first.
type TimedOutError struct {
	Budget  time.Duration
	Elapsed time.Duration
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("operation timed out after %s (budget %s)",
		e.Elapsed.Round(time.Millisecond), e.Budget)
}

// UnrecoverableError marks a failure that signals systemic instability.
// The retry loop never retries it and the breaker trips on its first occurrence.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable: %v", e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// Unrecoverable wraps err so that IsUnrecoverable reports true for it.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &UnrecoverableError{Err: err}
}

// unrecoverableSignatures match runaway recursion / stack exhaustion messages
// from Go, V8, SpiderMonkey and the CDP bridge.
var unrecoverableSignatures = regexp.MustCompile(`(?i)(maximum call stack size exceeded|stack overflow|too much recursion|goroutine stack exceeds|stack exhausted)`)

// IsUnrecoverable reports whether err belongs to the unrecoverable class,
// either by type or by message signature.
func IsUnrecoverable(err error) bool {
	if err == nil {
		return false
	}
	var ue *UnrecoverableError
	if errors.As(err, &ue) {
		return true
	}
	return unrecoverableSignatures.MatchString(err.Error())
}

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var ce *CircuitOpenError
	return errors.As(err, &ce)
}

// IsTimedOut reports whether err is (or wraps) a TimedOutError.
func IsTimedOut(err error) bool {
	var te *TimedOutError
	return errors.As(err, &te)
}
