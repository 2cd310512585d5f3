package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Default limiter settings.
const (
	DefaultWindow      = 300 * time.Second
	DefaultMaxAttempts = 10
	DefaultLockout     = 300 * time.Second
)

// Config holds the limiter thresholds.
type Config struct {
	Window      time.Duration
	MaxAttempts int
	Lockout     time.Duration
}

// DefaultConfig returns the default limiter thresholds.
func DefaultConfig() Config {
	return Config{
		Window:      DefaultWindow,
		MaxAttempts: DefaultMaxAttempts,
		Lockout:     DefaultLockout,
	}
}

// Decision is the result of recording an attempt.
type Decision struct {
	Allowed bool
	// RetryAfter is set when Allowed is false.
	RetryAfter time.Duration
}

// Err returns a *LockedError for refused decisions and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LockedError{RetryAfter: d.RetryAfter}
}

// Limiter is a sliding-window attempt counter with lockout.
//
// The attempt list and lockout deadline are guarded by a single mutex so an
// attempt's check, prune, append and lock transition are atomic.
type Limiter struct {
	cfg Config

	mu          sync.Mutex
	attempts    []time.Time
	lockedUntil time.Time
}

// New creates a Limiter. Zero fields in cfg take their defaults.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = DefaultLockout
	}
	return &Limiter{cfg: cfg}
}

// Config returns the effective limiter thresholds.
func (l *Limiter) Config() Config {
	return l.cfg
}

// RecordAttempt records a login attempt at now and reports whether it may
// proceed.
//
// While locked the attempt is refused with the remaining lockout and is not
// recorded. Otherwise attempts older than the window are dropped, the new
// attempt is appended, and if the count has reached the maximum the limiter
// locks for the full lockout duration and refuses this attempt too.
func (l *Limiter) RecordAttempt(now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Before(l.lockedUntil) {
		return Decision{RetryAfter: l.lockedUntil.Sub(now)}
	}

	kept := l.attempts[:0]
	for _, t := range l.attempts {
		if now.Sub(t) < l.cfg.Window {
			kept = append(kept, t)
		}
	}
	l.attempts = append(kept, now)

	if len(l.attempts) >= l.cfg.MaxAttempts {
		l.lockedUntil = now.Add(l.cfg.Lockout)
		return Decision{RetryAfter: l.cfg.Lockout}
	}

	return Decision{Allowed: true}
}

// Locked reports whether the limiter is locked at now and for how long.
func (l *Limiter) Locked(now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Before(l.lockedUntil) {
		return true, l.lockedUntil.Sub(now)
	}
	return false, 0
}

// Attempts returns the number of attempts currently inside the window.
func (l *Limiter) Attempts(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, t := range l.attempts {
		if now.Sub(t) < l.cfg.Window {
			n++
		}
	}
	return n
}

// Reset clears recorded attempts and any active lockout.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.attempts = nil
	l.lockedUntil = time.Time{}
	l.mu.Unlock()
}

// FormatWait renders a wait as whole minutes, or seconds below one minute,
// rounding up so the caller never retries too early.
func FormatWait(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	if d < time.Minute {
		secs := int(math.Ceil(d.Seconds()))
		return plural(secs, "second")
	}
	mins := int(math.Ceil(d.Minutes()))
	return plural(mins, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
