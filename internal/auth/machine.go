package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/camgate/internal/camera"
	"github.com/nerrad567/camgate/internal/eventlog"
	"github.com/nerrad567/camgate/internal/infrastructure/metrics"
	"github.com/nerrad567/camgate/internal/ratelimit"
	"github.com/nerrad567/camgate/internal/session"
	"github.com/nerrad567/camgate/internal/upstream"
)

// Status is the outcome of a login or verification.
type Status string

const (
	StatusAuthenticated     Status = "authenticated"
	StatusTwoFactorRequired Status = "2fa_required"
	StatusFailed            Status = "failed"
)

// Outcome reports the result of Login or Verify.
type Outcome struct {
	Status  Status
	Devices []camera.Record
	// Reason is a human-readable failure description, safe to show operators.
	Reason string
}

// Audit actions passed to a Recorder.
const (
	ActionLogin  = "login"
	ActionVerify = "verify"
	ActionLogout = "logout"
)

// Event is one authentication event. It never carries a secret or PIN.
type Event struct {
	Action    string
	Principal string
	Result    string
	Detail    string
}

// Recorder persists authentication events.
type Recorder interface {
	RecordAuth(ctx context.Context, ev Event)
}

// Logger defines the logging interface used by the Machine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) RecordAuth(context.Context, Event) {}

// Machine runs login, verification and logout against the session cache.
type Machine struct {
	cache    *session.Cache
	factory  upstream.Factory
	limiter  *ratelimit.Limiter
	events   *eventlog.Log
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

// NewMachine creates a Machine. limiter and events may be nil.
func NewMachine(cache *session.Cache, factory upstream.Factory, limiter *ratelimit.Limiter, events *eventlog.Log) *Machine {
	if events == nil {
		events = eventlog.New(eventlog.DefaultCapacity)
	}
	return &Machine{
		cache:    cache,
		factory:  factory,
		limiter:  limiter,
		events:   events,
		recorder: noopRecorder{},
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// SetRecorder sets where authentication events are persisted.
func (m *Machine) SetRecorder(r Recorder) {
	if r == nil {
		r = noopRecorder{}
	}
	m.recorder = r
}

// Login authenticates principal/secret against the camera service.
//
// The attempt is refused with a ratelimit.LockedError while the limiter is
// locked. An existing entry is answered from its state without contacting the
// service. Otherwise a new entry is created single-flight; if creation fails
// nothing is stored.
func (m *Machine) Login(ctx context.Context, principal, secret string) (Outcome, error) {
	if out, err := m.guard(ctx, ActionLogin, principal); err != nil {
		metrics.IncLogin(metrics.ResultRateLimited)
		return out, err
	}

	m.events.Append("Login attempt started")
	key := session.DeriveKey(principal, secret)

	e, err := m.cache.GetOrCreate(ctx, key, func() upstream.Client {
		return m.factory(principal, secret)
	}, m.create)
	if err != nil {
		reason := failureReason(err)
		m.events.Appendf("Login failed: %s", reason)
		m.logger.Warn("login failed", "key", key.String(), "error", err)
		metrics.IncLogin(metrics.ResultFailed)
		m.record(ctx, ActionLogin, principal, metrics.ResultFailed, reason)
		return Outcome{Status: StatusFailed, Reason: reason}, err
	}

	out, err := m.outcomeFor(ctx, e)
	if err != nil {
		return out, err
	}

	switch out.Status {
	case StatusAuthenticated:
		m.events.Appendf("Login successful! %d cameras found", len(out.Devices))
		metrics.IncLogin(metrics.ResultAuthenticated)
	case StatusTwoFactorRequired:
		m.events.Append("2FA required - waiting for PIN")
		metrics.IncLogin(metrics.ResultTwoFactorRequired)
	}
	m.record(ctx, ActionLogin, principal, string(out.Status), "")
	return out, nil
}

// create drives a fresh entry through password login. It runs once per key
// under the cache's single-flight.
func (m *Machine) create(ctx context.Context, e *session.Entry) error {
	if err := e.Transition(session.LoggingIn); err != nil {
		return err
	}

	var devices int
	err := m.cache.Do(ctx, e, func(ctx context.Context, c upstream.Client) error {
		if err := c.Start(ctx); err != nil {
			return err
		}
		devices = len(c.Cameras())
		return nil
	})
	metrics.ObserveUpstream("login", err)

	var challenge *upstream.ChallengeError
	switch {
	case errors.As(err, &challenge):
		if err := e.Transition(session.PendingTwoFactor); err != nil {
			return err
		}
		e.SetChallenge(challenge.Challenge)
		return nil
	case err != nil:
		_ = e.Transition(session.Failed)
		return classify(err)
	case devices == 0:
		_ = e.Transition(session.Failed)
		return ErrNoDevices
	}

	e.MarkRefreshed(m.now())
	return e.Transition(session.Authenticated)
}

// outcomeFor reports the outcome represented by a stored entry.
func (m *Machine) outcomeFor(ctx context.Context, e *session.Entry) (Outcome, error) {
	switch e.State() {
	case session.Authenticated:
		devices, err := m.devices(ctx, e)
		if err != nil {
			return Outcome{Status: StatusFailed, Reason: failureReason(err)}, err
		}
		return Outcome{Status: StatusAuthenticated, Devices: devices}, nil
	case session.PendingTwoFactor:
		return Outcome{Status: StatusTwoFactorRequired}, nil
	default:
		return Outcome{Status: StatusFailed, Reason: "session is " + e.State().String()}, ErrSessionExpired
	}
}

// devices reads the cached device list without contacting the service.
func (m *Machine) devices(ctx context.Context, e *session.Entry) ([]camera.Record, error) {
	var devices []camera.Record
	err := m.cache.Do(ctx, e, func(_ context.Context, c upstream.Client) error {
		devices = c.Cameras()
		return nil
	})
	if errors.Is(err, session.ErrEntryClosed) {
		return nil, ErrSessionExpired
	}
	return devices, err
}

// Verify submits the second-factor PIN for a pending login.
//
// PIN submissions count against the same rate limit as logins. A rejected
// PIN or an unreachable service leaves the entry pending. If the
// PIN is accepted but the account reports no devices the entry is discarded.
func (m *Machine) Verify(ctx context.Context, principal, secret, code string) (Outcome, error) {
	if code == "" {
		return Outcome{Status: StatusFailed, Reason: "PIN required"}, ErrMissingCode
	}

	key := session.DeriveKey(principal, secret)
	e, ok := m.cache.Get(key)
	if !ok || e.State() != session.PendingTwoFactor {
		m.events.Append("2FA verification failed: session expired, please login again")
		metrics.IncVerify(metrics.ResultSessionExpired)
		m.record(ctx, ActionVerify, principal, metrics.ResultSessionExpired, "")
		return Outcome{Status: StatusFailed, Reason: "session expired, please login again"}, ErrSessionExpired
	}

	if out, err := m.guard(ctx, ActionVerify, principal); err != nil {
		metrics.IncVerify(metrics.ResultRateLimited)
		return out, err
	}

	m.events.Append("Verifying 2FA PIN...")

	var devices []camera.Record
	err := m.cache.Do(ctx, e, func(ctx context.Context, c upstream.Client) error {
		// A call queued behind a verification that has since succeeded still
		// submits its own code.
		if err := c.SendTwoFactorCode(ctx, code); err != nil {
			return err
		}
		if err := c.SetupPostVerify(ctx); err != nil {
			return err
		}
		if err := c.Refresh(ctx); err != nil {
			return err
		}
		devices = c.Cameras()
		if len(devices) > 0 && e.State() == session.PendingTwoFactor {
			if err := e.Transition(session.Authenticated); err != nil {
				return err
			}
			e.MarkRefreshed(m.now())
		}
		return nil
	})
	metrics.ObserveUpstream("verify", err)

	if err != nil {
		if errors.Is(err, session.ErrEntryClosed) {
			err = ErrSessionExpired
		} else {
			err = classify(err)
		}
		reason := failureReason(err)
		m.events.Appendf("2FA verification failed: %s", reason)
		metrics.IncVerify(metrics.ResultFailed)
		m.record(ctx, ActionVerify, principal, metrics.ResultFailed, reason)
		return Outcome{Status: StatusFailed, Reason: reason}, err
	}

	if len(devices) == 0 {
		_ = e.Transition(session.Failed)
		m.cache.Invalidate(key)
		m.events.Append("2FA verification failed: no devices returned")
		metrics.IncVerify(metrics.ResultFailed)
		m.record(ctx, ActionVerify, principal, metrics.ResultFailed, "no devices returned")
		return Outcome{Status: StatusFailed, Reason: "no devices returned"}, ErrNoDevices
	}

	m.events.Appendf("2FA verification successful! %d cameras found", len(devices))
	metrics.IncVerify(metrics.ResultAuthenticated)
	m.record(ctx, ActionVerify, principal, string(StatusAuthenticated), "")
	return Outcome{Status: StatusAuthenticated, Devices: devices}, nil
}

// guard records an attempt with the limiter. Logins and PIN submissions
// share one window. A refused attempt is reported with a
// ratelimit.LockedError.
func (m *Machine) guard(ctx context.Context, action, principal string) (Outcome, error) {
	if m.limiter == nil {
		return Outcome{}, nil
	}
	d := m.limiter.RecordAttempt(m.now())
	if d.Allowed {
		return Outcome{}, nil
	}
	if d.RetryAfter == m.limiter.Config().Lockout {
		metrics.IncLockout()
	}
	wait := ratelimit.FormatWait(d.RetryAfter)
	m.events.Appendf("Too many login attempts. Try again in %s", wait)
	m.record(ctx, action, principal, metrics.ResultRateLimited, "")
	return Outcome{Status: StatusFailed, Reason: "too many login attempts, try again in " + wait}, d.Err()
}

// Logout discards the session for principal/secret. It is a no-op when no
// session exists.
func (m *Machine) Logout(ctx context.Context, principal, secret string) {
	key := session.DeriveKey(principal, secret)
	if _, ok := m.cache.Get(key); !ok {
		return
	}
	m.cache.Invalidate(key)
	m.events.Append("Logged out")
	m.record(ctx, ActionLogout, principal, "ok", "")
}

// Authenticated returns the authenticated entry for principal/secret.
func (m *Machine) Authenticated(principal, secret string) (*session.Entry, error) {
	e, ok := m.cache.Get(session.DeriveKey(principal, secret))
	if !ok || e.State() != session.Authenticated {
		return nil, ErrNotAuthenticated
	}
	return e, nil
}

func (m *Machine) record(ctx context.Context, action, principal, result, detail string) {
	m.recorder.RecordAuth(context.WithoutCancel(ctx), Event{
		Action:    action,
		Principal: principal,
		Result:    result,
		Detail:    detail,
	})
}

// classify maps an upstream failure onto the auth error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrUpstreamAuthFailed), errors.Is(err, ErrUpstreamUnavailable):
		return err
	case errors.Is(err, upstream.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrUpstreamAuthFailed, err)
	}
}

// failureReason renders an error for operators without internal prefixes.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoDevices):
		return "no devices returned"
	case errors.Is(err, ErrSessionExpired):
		return "session expired, please login again"
	default:
		return upstream.Message(err)
	}
}
