package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTwoFactorRequired is returned by Start when the account must verify a
	// one-time PIN before devices can be listed.
	ErrTwoFactorRequired = errors.New("upstream: two-factor verification required")

	// ErrUnauthorized is returned when the service rejects credentials, the
	// auth token or a PIN.
	ErrUnauthorized = errors.New("upstream: unauthorized")

	// ErrUnavailable is returned for network failures, 5xx responses,
	// throttling and unreadable response bodies.
	ErrUnavailable = errors.New("upstream: service unavailable")

	// ErrRejected is returned for 4xx responses no other sentinel covers.
	ErrRejected = errors.New("upstream: request rejected")

	// ErrCapabilityUnsupported is returned when a device does not support the
	// requested operation.
	ErrCapabilityUnsupported = errors.New("upstream: capability not supported")

	// ErrCameraNotFound is returned when a camera name is not in the device list.
	ErrCameraNotFound = errors.New("upstream: camera not found")

	// ErrNoMedia is returned when a camera has no thumbnail to fetch.
	ErrNoMedia = errors.New("upstream: no media available")

	// ErrNotLoggedIn is returned when an operation needs a completed login.
	ErrNotLoggedIn = errors.New("upstream: not logged in")

	// ErrNoTransport is returned when an operation runs before Rebind.
	ErrNoTransport = errors.New("upstream: no transport bound")
)

// ChallengeError carries the pending second-factor challenge.
// It matches ErrTwoFactorRequired with errors.Is.
type ChallengeError struct {
	Challenge string
}

func (e *ChallengeError) Error() string {
	return ErrTwoFactorRequired.Error()
}

func (e *ChallengeError) Is(target error) bool {
	return target == ErrTwoFactorRequired
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream: %s: %d %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream: %s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap maps the status code onto a sentinel.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusNotImplemented, e.StatusCode == http.StatusMethodNotAllowed:
		return ErrCapabilityUnsupported
	case e.StatusCode >= 500,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests:
		return ErrUnavailable
	case e.StatusCode >= 400:
		return ErrRejected
	default:
		return nil
	}
}

// Message returns the most useful human-readable text for an upstream error.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
