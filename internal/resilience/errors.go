// Package resilience centralizes retry and circuit-breaking for every
// network call the engine makes. No caller implements ad hoc sleep/retry
// loops; anything that reaches the network goes through an Executor.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// StatusError carries an HTTP status code through the retry classifier.
type StatusError struct {
	Code int
	URL  string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Transient reports whether the status is worth retrying: rate limiting and
// server-side failures only.
func (e *StatusError) Transient() bool {
	return e.Code == 429 || e.Code >= 500
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as never retryable (malformed input, not-found,
// auth failures).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether the error was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// IsTransient classifies an error as retryable. Timeouts, connection resets
// and retryable HTTP statuses qualify; permanent marks and non-retryable
// statuses do not. Errors of unknown shape default to transient: the
// network produces far more flaky failures than malformed requests.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return true
}
