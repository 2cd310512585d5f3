package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/camgate/internal/upstream"
)

// State is the authentication state of an entry.
type State int

const (
	Anonymous State = iota
	LoggingIn
	PendingTwoFactor
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case LoggingIn:
		return "logging_in"
	case PendingTwoFactor:
		return "pending_two_factor"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the allowed state changes.
var transitions = map[State][]State{
	Anonymous:        {LoggingIn},
	LoggingIn:        {Authenticated, PendingTwoFactor, Failed},
	PendingTwoFactor: {Authenticated, Failed},
	Authenticated:    {Anonymous},
}

// CanTransition reports whether from ──▶ to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Entry is one cached upstream session.
//
// The state fields are guarded by mu. The upstream handle is only touched
// through Cache.Do, which holds opMu for the whole operation.
type Entry struct {
	key       Key
	createdAt time.Time

	mu              sync.RWMutex
	state           State
	challenge       string
	lastRefreshedAt time.Time

	opMu   sync.Mutex
	handle upstream.Client
	closed bool
}

func newEntry(key Key, handle upstream.Client, now time.Time) *Entry {
	return &Entry{
		key:       key,
		createdAt: now,
		state:     Anonymous,
		handle:    handle,
	}
}

// Key returns the entry's cache key.
func (e *Entry) Key() Key {
	return e.key
}

// CreatedAt returns when the entry was created.
func (e *Entry) CreatedAt() time.Time {
	return e.createdAt
}

// State returns the current state.
func (e *Entry) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Transition moves the entry to a new state. Leaving PendingTwoFactor clears
// the pending challenge.
func (e *Entry) Transition(to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !CanTransition(e.state, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.state, to)
	}
	e.state = to
	if to != PendingTwoFactor {
		e.challenge = ""
	}
	return nil
}

// SetChallenge records the pending second-factor challenge.
func (e *Entry) SetChallenge(challenge string) {
	e.mu.Lock()
	e.challenge = challenge
	e.mu.Unlock()
}

// Challenge returns the pending challenge, empty unless PendingTwoFactor.
func (e *Entry) Challenge() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.challenge
}

// MarkRefreshed records a successful device refresh.
func (e *Entry) MarkRefreshed(t time.Time) {
	e.mu.Lock()
	e.lastRefreshedAt = t
	e.mu.Unlock()
}

// LastRefreshedAt returns the time of the last successful refresh.
func (e *Entry) LastRefreshedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRefreshedAt
}

// forceState sets the state without transition checks. Used when an entry is
// discarded.
func (e *Entry) forceState(s State) {
	e.mu.Lock()
	e.state = s
	e.challenge = ""
	e.mu.Unlock()
}

// close waits for any in-flight operation and closes the handle once.
func (e *Entry) close() error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.handle.Close()
}
