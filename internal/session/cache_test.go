package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/camgate/internal/eventlog"
	"github.com/nerrad567/camgate/internal/upstream"
)

func newTestCache() (*Cache, *eventlog.Log) {
	events := eventlog.New(eventlog.DefaultCapacity)
	return NewCache(func() *http.Client { return &http.Client{} }, events), events
}

func authenticate(_ context.Context, e *Entry) error {
	if err := e.Transition(LoggingIn); err != nil {
		return err
	}
	return e.Transition(Authenticated)
}

func TestGetOrCreate_SingleFlight(t *testing.T) {
	c, _ := newTestCache()
	key := DeriveKey("user", "pass")

	var (
		creates atomic.Int32
		handles atomic.Int32
		release = make(chan struct{})
	)
	create := func(ctx context.Context, e *Entry) error {
		creates.Add(1)
		<-release
		return authenticate(ctx, e)
	}
	handle := func() upstream.Client {
		handles.Add(1)
		return &fakeClient{}
	}

	const callers = 20
	var wg sync.WaitGroup
	results := make([]*Entry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := c.GetOrCreate(context.Background(), key, handle, create)
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			results[i] = e
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := creates.Load(); got != 1 {
		t.Errorf("create called %d times, want 1", got)
	}
	if got := handles.Load(); got != 1 {
		t.Errorf("handle built %d times, want 1", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	for i, e := range results {
		if e != results[0] {
			t.Errorf("caller %d got a different entry", i)
		}
	}
}

func TestGetOrCreate_ReturnsExisting(t *testing.T) {
	c, _ := newTestCache()
	key := DeriveKey("user", "pass")

	first, err := c.GetOrCreate(context.Background(), key, func() upstream.Client { return &fakeClient{} }, authenticate)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	second, err := c.GetOrCreate(context.Background(), key, func() upstream.Client {
		t.Fatal("handle must not be built for an existing entry")
		return nil
	}, func(context.Context, *Entry) error {
		t.Fatal("create must not run for an existing entry")
		return nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if first != second {
		t.Error("expected the stored entry")
	}
}

func TestGetOrCreate_FailureNotStored(t *testing.T) {
	tests := []struct {
		name   string
		create Creator
		want   error
	}{
		{
			name: "creator error",
			create: func(_ context.Context, e *Entry) error {
				_ = e.Transition(LoggingIn)
				_ = e.Transition(Failed)
				return errors.New("bad password")
			},
		},
		{
			name: "left in LoggingIn",
			create: func(_ context.Context, e *Entry) error {
				return e.Transition(LoggingIn)
			},
			want: ErrCreationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, events := newTestCache()
			key := DeriveKey("user", "pass")
			fc := &fakeClient{}

			_, err := c.GetOrCreate(context.Background(), key, func() upstream.Client { return fc }, tt.create)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if _, ok := c.Get(key); ok {
				t.Error("failed entry was stored")
			}
			if fc.closeCount() != 1 {
				t.Errorf("handle closed %d times, want 1", fc.closeCount())
			}
			if events.Len() == 0 {
				t.Error("expected an event log line")
			}
		})
	}
}

func TestGetOrCreate_DetachedFromCallerCancel(t *testing.T) {
	c, _ := newTestCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetOrCreate(ctx, DeriveKey("u", "p"), func() upstream.Client { return &fakeClient{} },
		func(ctx context.Context, e *Entry) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return authenticate(ctx, e)
		})
	if err != nil {
		t.Errorf("GetOrCreate() error = %v, want creation to ignore caller cancel", err)
	}
}

func TestInvalidate(t *testing.T) {
	c, events := newTestCache()
	key := DeriveKey("user", "pass")

	c.Invalidate(key)
	if c.Len() != 0 || events.Len() != 0 {
		t.Fatal("Invalidate on an absent key must be a no-op")
	}

	fc := &fakeClient{}
	e, err := c.GetOrCreate(context.Background(), key, func() upstream.Client { return fc }, authenticate)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	c.Invalidate(key)
	if _, ok := c.Get(key); ok {
		t.Error("entry still present after Invalidate")
	}
	if e.State() != Anonymous {
		t.Errorf("State() = %s, want anonymous", e.State())
	}
	if fc.closeCount() != 1 {
		t.Errorf("handle closed %d times, want 1", fc.closeCount())
	}
	if err := c.Do(context.Background(), e, func(context.Context, upstream.Client) error { return nil }); !errors.Is(err, ErrEntryClosed) {
		t.Errorf("Do() after Invalidate error = %v, want ErrEntryClosed", err)
	}

	c.Invalidate(key)
	if fc.closeCount() != 1 {
		t.Error("second Invalidate closed the handle again")
	}
}

func TestDo_FreshTransportPerOperation(t *testing.T) {
	c, _ := newTestCache()
	fc := &fakeClient{}
	e, err := c.GetOrCreate(context.Background(), DeriveKey("u", "p"), func() upstream.Client { return fc }, authenticate)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		err := c.Do(context.Background(), e, func(_ context.Context, client upstream.Client) error {
			if fc.transport() == nil {
				t.Error("no transport bound during operation")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if fc.transport() != nil {
			t.Error("transport still bound after operation")
		}
	}

	if len(fc.bound) != 3 {
		t.Fatalf("bound %d transports, want 3", len(fc.bound))
	}
	if fc.bound[0] == fc.bound[1] || fc.bound[1] == fc.bound[2] {
		t.Error("transport reused across operations")
	}
}

func TestDo_Serialised(t *testing.T) {
	c, _ := newTestCache()
	e, err := c.GetOrCreate(context.Background(), DeriveKey("u", "p"), func() upstream.Client { return &fakeClient{} }, authenticate)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Do(context.Background(), e, func(context.Context, upstream.Client) error {
				n := inFlight.Add(1)
				if n > maxInFlight.Load() {
					maxInFlight.Store(n)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent operations = %d, want 1", maxInFlight.Load())
	}
}

func TestClose_ClosesAll(t *testing.T) {
	c, _ := newTestCache()
	clients := []*fakeClient{{}, {}}
	for i, fc := range clients {
		fc := fc
		key := DeriveKey("user", string(rune('a'+i)))
		if _, err := c.GetOrCreate(context.Background(), key, func() upstream.Client { return fc }, authenticate); err != nil {
			t.Fatalf("GetOrCreate() error = %v", err)
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Close", c.Len())
	}
	for i, fc := range clients {
		if fc.closeCount() != 1 {
			t.Errorf("client %d closed %d times", i, fc.closeCount())
		}
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Anonymous, LoggingIn, true},
		{LoggingIn, Authenticated, true},
		{LoggingIn, PendingTwoFactor, true},
		{LoggingIn, Failed, true},
		{PendingTwoFactor, Authenticated, true},
		{PendingTwoFactor, Failed, true},
		{Authenticated, Anonymous, true},
		{Anonymous, Authenticated, false},
		{Failed, Authenticated, false},
		{Authenticated, PendingTwoFactor, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEntry_ChallengeClearedOnLeavingPending(t *testing.T) {
	e := newEntry(DeriveKey("u", "p"), &fakeClient{}, time.Now())
	_ = e.Transition(LoggingIn)
	_ = e.Transition(PendingTwoFactor)
	e.SetChallenge("ch-1")

	if e.Challenge() != "ch-1" {
		t.Fatalf("Challenge() = %q", e.Challenge())
	}
	if err := e.Transition(Authenticated); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if e.Challenge() != "" {
		t.Error("challenge kept after leaving PendingTwoFactor")
	}
	if err := e.Transition(PendingTwoFactor); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Transition() error = %v, want ErrInvalidTransition", err)
	}
}
