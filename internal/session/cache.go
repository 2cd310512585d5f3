package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/camgate/internal/eventlog"
	"github.com/nerrad567/camgate/internal/infrastructure/metrics"
	"github.com/nerrad567/camgate/internal/upstream"
)

// Logger defines the logging interface used by the Cache.
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

// TransportFunc builds a fresh transport for one upstream operation.
type TransportFunc func() *http.Client

// HandleFunc builds the upstream handle for a new entry.
type HandleFunc func() upstream.Client

// Creator drives a new entry through login. The entry is stored only if
// Creator returns nil and leaves it Authenticated or PendingTwoFactor.
type Creator func(ctx context.Context, e *Entry) error

// OpFunc is an upstream operation run by Do.
type OpFunc func(ctx context.Context, client upstream.Client) error

// Cache maps credential keys to session entries.
//
// The map is guarded by mu; creation for a key is collapsed through group so
// concurrent callers share one login.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*Entry
	group   singleflight.Group

	transport TransportFunc
	events    *eventlog.Log
	logger    Logger
	now       func() time.Time
}

// NewCache creates an empty cache. transport is called once per upstream
// operation. events may be nil.
func NewCache(transport TransportFunc, events *eventlog.Log) *Cache {
	return &Cache{
		entries:   make(map[Key]*Entry),
		transport: transport,
		events:    events,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// Get returns the stored entry for key.
func (c *Cache) Get(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrCreate returns the entry for key, creating it if absent.
//
// Creation runs at most once per key at a time: concurrent callers wait for
// the same creation and receive the same entry or the same error. The
// creation is detached from the first caller's cancellation so one client
// disconnecting does not fail the others.
//
// A failed creation is never stored and its handle is closed.
func (c *Cache) GetOrCreate(ctx context.Context, key Key, handle HandleFunc, create Creator) (*Entry, error) {
	if e, ok := c.Get(key); ok {
		return e, nil
	}

	v, err, _ := c.group.Do(key.full(), func() (any, error) {
		if e, ok := c.Get(key); ok {
			return e, nil
		}

		e := newEntry(key, handle(), c.now())
		createErr := create(context.WithoutCancel(ctx), e)

		state := e.State()
		if createErr == nil && state != Authenticated && state != PendingTwoFactor {
			createErr = ErrCreationFailed
		}
		if createErr != nil {
			e.forceState(Failed)
			if err := e.close(); err != nil {
				c.logger.Warn("closing failed session handle", "key", key.String(), "error", err)
			}
			c.logger.Info("session creation failed", "key", key.String(), "error", createErr)
			c.appendEvent("Session discarded")
			return nil, createErr
		}

		c.mu.Lock()
		c.entries[key] = e
		n := len(c.entries)
		c.mu.Unlock()

		metrics.SetActiveSessions(n)
		c.logger.Info("session created", "key", key.String(), "state", state.String())
		c.appendEvent("Session created (%s)", state)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Invalidate removes the entry for key and closes its handle. It is a no-op
// when no entry exists.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	n := len(c.entries)
	c.mu.Unlock()

	if !ok {
		return
	}
	metrics.SetActiveSessions(n)

	if e.State() == Authenticated {
		_ = e.Transition(Anonymous)
	} else {
		e.forceState(Anonymous)
	}
	if err := e.close(); err != nil {
		c.logger.Warn("closing session handle", "key", key.String(), "error", err)
	}
	c.logger.Info("session invalidated", "key", key.String())
	c.appendEvent("Session cleared")
}

// Do runs op against the entry's handle with a freshly built transport.
//
// Operations on one entry are serialised. The transport is attached before
// op runs and released when it returns, so no transport outlives a single
// operation.
func (c *Cache) Do(ctx context.Context, e *Entry, op OpFunc) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed {
		return ErrEntryClosed
	}

	hc := c.transport()
	e.handle.Rebind(hc)
	defer func() {
		e.handle.Rebind(nil)
		upstream.ReleaseTransport(hc)
	}()

	return op(ctx, e.handle)
}

// Close closes every stored entry. Used at process shutdown.
func (c *Cache) Close() error {
	c.mu.Lock()
	entries := make([]*Entry, 0, len(c.entries))
	for k, e := range c.entries {
		entries = append(entries, e)
		delete(c.entries, k)
	}
	c.mu.Unlock()

	metrics.SetActiveSessions(0)

	var errs []error
	for _, e := range entries {
		if err := e.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) appendEvent(format string, args ...any) {
	if c.events != nil {
		c.events.Appendf(format, args...)
	}
}
