// Package resilience provides the caller-side retry policy for idempotent
// detection backend calls (history fetch, camera stop). The backend client
// itself never retries.
package resilience

import (
	"errors"
	"net"
	"syscall"
)

// transienter is implemented by errors that know whether a retry could
// succeed, such as *finder.RequestError.
type transienter interface {
	Transient() bool
}

// IsTransient returns true if the error (or any error in its chain) reports
// itself as transient, or is a network timeout, reset or refusal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED)
}
