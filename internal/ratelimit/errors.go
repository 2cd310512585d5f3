package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrLocked is returned when an attempt arrives while the limiter is locked.
var ErrLocked = errors.New("ratelimit: too many attempts")

// LockedError carries how long the caller must wait before retrying.
// It matches ErrLocked with errors.Is.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrLocked.Error(), FormatWait(e.RetryAfter))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}
