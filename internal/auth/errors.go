package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when an operation needs an
	// authenticated session and none exists.
	ErrNotAuthenticated = errors.New("auth: not logged in")

	// ErrSessionExpired is returned by Verify when no login is waiting for a
	// second factor.
	ErrSessionExpired = errors.New("auth: session expired, please login again")

	// ErrUpstreamAuthFailed is returned when the camera service rejects the
	// login or PIN, or the account yields no devices.
	ErrUpstreamAuthFailed = errors.New("auth: upstream authentication failed")

	// ErrUpstreamUnavailable is returned when the camera service cannot be
	// reached or fails with a server error.
	ErrUpstreamUnavailable = errors.New("auth: upstream unavailable")

	// ErrMissingCode is returned when Verify is called without a PIN.
	ErrMissingCode = errors.New("auth: verification code required")

	// ErrTicketInvalid is returned for malformed, forged or expired tickets.
	ErrTicketInvalid = errors.New("auth: invalid ticket")
)

// ErrNoDevices is returned when authentication succeeds but the account
// reports no devices. It matches ErrUpstreamAuthFailed.
var ErrNoDevices = fmt.Errorf("%w: no devices returned", ErrUpstreamAuthFailed)
