package session

import "errors"

var (
	// ErrInvalidTransition is returned when a state change is not allowed
	// from the entry's current state.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrEntryClosed is returned when an operation runs on an invalidated entry.
	ErrEntryClosed = errors.New("session: entry closed")

	// ErrCreationFailed is returned when a creator leaves a new entry in a
	// state that must not be stored and reports no error of its own.
	ErrCreationFailed = errors.New("session: creation did not complete")
)
