package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/camgate/internal/camera"
	"github.com/nerrad567/camgate/internal/eventlog"
	"github.com/nerrad567/camgate/internal/session"
	"github.com/nerrad567/camgate/internal/upstream"
)

func ptr[T any](v T) *T { return &v }

// stubClient is an in-memory upstream.Client.
type stubClient struct {
	mu        sync.Mutex
	records   []camera.Record
	loaded    bool
	clips     []camera.Clip
	thumb     []byte
	snoozeErr error
	refreshes int
	calls     []string
	bound     bool
}

func (c *stubClient) record(call string) {
	c.calls = append(c.calls, call)
	if !c.bound {
		panic("upstream call without a bound transport: " + call)
	}
}

func (c *stubClient) Rebind(hc *http.Client)                          { c.bound = hc != nil }
func (c *stubClient) Start(context.Context) error                     { return nil }
func (c *stubClient) SendTwoFactorCode(context.Context, string) error { return nil }
func (c *stubClient) SetupPostVerify(context.Context) error           { return nil }
func (c *stubClient) Close() error                                    { return nil }
func (c *stubClient) Cameras() []camera.Record {
	if !c.loaded {
		return nil
	}
	return c.records
}

func (c *stubClient) Refresh(context.Context) error {
	c.record("refresh")
	c.refreshes++
	c.loaded = true
	return nil
}

func (c *stubClient) Arm(_ context.Context, name string, armed bool) error {
	c.record("arm")
	for i := range c.records {
		if c.records[i].Name == name {
			c.records[i].Armed = ptr(armed)
		}
	}
	return nil
}

func (c *stubClient) SnapPicture(_ context.Context, name string) error {
	c.record("snap")
	for i := range c.records {
		if c.records[i].Name == name {
			c.records[i].Thumbnail = ptr("/media/" + name + "-new")
		}
	}
	return nil
}

func (c *stubClient) SetMotionDetect(context.Context, string, bool) error {
	c.record("motion")
	return nil
}

func (c *stubClient) SetNotificationSnooze(_ context.Context, _ string, snoozed bool) error {
	c.record("snooze")
	return c.snoozeErr
}

func (c *stubClient) Thumbnail(context.Context, string) ([]byte, error) {
	c.record("thumbnail")
	return c.thumb, nil
}

func (c *stubClient) Videos(_ context.Context, pages int) ([]camera.Clip, error) {
	c.record("videos")
	return c.clips, nil
}

type recordingPublisher struct {
	states []camera.View
	events []camera.MotionEvent
}

func (p *recordingPublisher) PublishCameraState(_ context.Context, v camera.View) error {
	p.states = append(p.states, v)
	return nil
}

func (p *recordingPublisher) PublishMotionEvent(_ context.Context, ev camera.MotionEvent) error {
	p.events = append(p.events, ev)
	return nil
}

type recordingTelemetry struct{ views []camera.View }

func (r *recordingTelemetry) WriteCameraTelemetry(v camera.View, _ time.Time) {
	r.views = append(r.views, v)
}

func setup(t *testing.T, client *stubClient) (*Service, *session.Entry, *eventlog.Log) {
	t.Helper()
	events := eventlog.New(eventlog.DefaultCapacity)
	cache := session.NewCache(func() *http.Client { return &http.Client{} }, events)
	t.Cleanup(func() { cache.Close() })

	entry, err := cache.GetOrCreate(context.Background(), session.DeriveKey("user", "pass"),
		func() upstream.Client { return client },
		func(_ context.Context, e *session.Entry) error {
			if err := e.Transition(session.LoggingIn); err != nil {
				return err
			}
			return e.Transition(session.Authenticated)
		})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	return NewService(cache, events, 0), entry, events
}

func containsLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestCameras(t *testing.T) {
	client := &stubClient{records: []camera.Record{
		{Name: "Front Door", Battery: ptr("ok"), TemperatureC: ptr(20.0), Armed: ptr(true)},
		{Name: "Garage", Type: "mini", NotificationsSnoozed: ptr(true)},
	}}
	svc, entry, events := setup(t, client)
	pub := &recordingPublisher{}
	tel := &recordingTelemetry{}
	svc.AddPublisher(pub)
	svc.SetTelemetry(tel)

	views, err := svc.Cameras(context.Background(), entry)
	if err != nil {
		t.Fatalf("Cameras() error = %v", err)
	}

	if len(views) != 2 || views[0].Name != "Front Door" || views[1].Name != "Garage" {
		t.Fatalf("views = %+v, want upstream order", views)
	}
	if views[0].Temperature != camera.Fahrenheit(68) || views[0].Battery != "ok" || !views[0].Armed {
		t.Errorf("Front Door = %+v", views[0])
	}
	if views[1].Battery != camera.WiredBattery || views[1].NotificationsEnabled {
		t.Errorf("Garage = %+v", views[1])
	}
	if client.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", client.refreshes)
	}
	if entry.LastRefreshedAt().IsZero() {
		t.Error("entry not marked refreshed")
	}
	if len(pub.states) != 2 || len(tel.views) != 2 {
		t.Errorf("published %d states, %d telemetry; want 2 and 2", len(pub.states), len(tel.views))
	}

	lines := events.Lines()
	if !containsLine(lines, "Camera Front Door: battery=ok, temp=68") {
		t.Errorf("trace line missing: %v", lines)
	}
	if !containsLine(lines, "Camera Garage motion_enabled from default, notifications_snoozed from notifications_snoozed") {
		t.Errorf("provenance line missing: %v", lines)
	}
}

func TestArm(t *testing.T) {
	client := &stubClient{records: []camera.Record{{Name: "Front Door"}}}
	svc, entry, events := setup(t, client)

	if err := svc.Arm(context.Background(), entry, "Front Door", true); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	if !*client.records[0].Armed {
		t.Error("camera not armed")
	}
	// Empty device list triggers one refresh before the command.
	if strings.Join(client.calls, ",") != "refresh,arm" {
		t.Errorf("calls = %v, want refresh,arm", client.calls)
	}
	if !containsLine(events.Lines(), "Camera Front Door armed") {
		t.Errorf("log = %v", events.Lines())
	}

	err := svc.Arm(context.Background(), entry, "Backyard", false)
	if !errors.Is(err, camera.ErrDeviceNotFound) {
		t.Errorf("Arm(unknown) error = %v, want ErrDeviceNotFound", err)
	}
	if !containsLine(events.Lines(), "Arm error for Backyard") {
		t.Errorf("error not logged: %v", events.Lines())
	}
}

func TestSnapshot(t *testing.T) {
	client := &stubClient{records: []camera.Record{{Name: "Porch", Thumbnail: ptr("/media/porch-old")}}, loaded: true}
	svc, entry, _ := setup(t, client)

	thumb, err := svc.Snapshot(context.Background(), entry, "Porch")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if thumb == nil || *thumb != "/media/Porch-new" {
		t.Errorf("thumbnail = %v, want /media/Porch-new", thumb)
	}
	if strings.Join(client.calls, ",") != "snap,refresh" {
		t.Errorf("calls = %v, want snap,refresh", client.calls)
	}
}

func TestSetMotion(t *testing.T) {
	client := &stubClient{records: []camera.Record{{Name: "Porch"}}, loaded: true}
	svc, entry, events := setup(t, client)

	if err := svc.SetMotion(context.Background(), entry, "Porch", false); err != nil {
		t.Fatalf("SetMotion() error = %v", err)
	}
	if !containsLine(events.Lines(), "Motion detection disabled for Porch") {
		t.Errorf("log = %v", events.Lines())
	}
}

func TestSetNotifications(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		err      error
		wantErr  error
		wantLine string
	}{
		{"enable", true, nil, nil, "Notifications enabled for Porch"},
		{"snooze", false, nil, nil, "Notifications snoozed for Porch"},
		{"unsupported", true, upstream.ErrCapabilityUnsupported, upstream.ErrCapabilityUnsupported,
			"Warning: Notification snooze not supported for Porch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{records: []camera.Record{{Name: "Porch"}}, loaded: true, snoozeErr: tt.err}
			svc, entry, events := setup(t, client)

			err := svc.SetNotifications(context.Background(), entry, "Porch", tt.enabled)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetNotifications() error = %v, want %v", err, tt.wantErr)
			}
			if !containsLine(events.Lines(), tt.wantLine) {
				t.Errorf("log = %v, want %q", events.Lines(), tt.wantLine)
			}
		})
	}
}

func TestThumbnail(t *testing.T) {
	client := &stubClient{records: []camera.Record{{Name: "Porch"}}, loaded: true, thumb: []byte{0xff, 0xd8}}
	svc, entry, _ := setup(t, client)

	img, err := svc.Thumbnail(context.Background(), entry, "Porch")
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	if len(img) != 2 {
		t.Errorf("len = %d, want 2", len(img))
	}

	client.thumb = nil
	if _, err := svc.Thumbnail(context.Background(), entry, "Porch"); !errors.Is(err, upstream.ErrNoMedia) {
		t.Errorf("Thumbnail() without media error = %v, want ErrNoMedia", err)
	}
}

func TestEvents(t *testing.T) {
	client := &stubClient{clips: []camera.Clip{
		{ID: float64(2), DeviceName: ptr("Porch"), CreatedAt: ptr("2026-03-01T10:00:00Z")},
		{ID: float64(1)},
	}}
	svc, entry, _ := setup(t, client)
	pub := &recordingPublisher{}
	svc.AddPublisher(pub)

	evs, err := svc.Events(context.Background(), entry)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("len = %d, want 2", len(evs))
	}
	if evs[0].Camera != "Porch" || evs[1].Camera != "Unknown" || evs[1].Timestamp != "unknown" {
		t.Errorf("events = %+v", evs)
	}
	if strings.Join(client.calls, ",") != "refresh,videos" {
		t.Errorf("calls = %v, want refresh,videos", client.calls)
	}
	if len(pub.events) != 2 {
		t.Errorf("published events = %d, want 2", len(pub.events))
	}
}

func TestClosedEntry(t *testing.T) {
	events := eventlog.New(eventlog.DefaultCapacity)
	cache := session.NewCache(func() *http.Client { return &http.Client{} }, events)
	key := session.DeriveKey("user", "pass")
	entry, err := cache.GetOrCreate(context.Background(), key,
		func() upstream.Client { return &stubClient{} },
		func(_ context.Context, e *session.Entry) error {
			_ = e.Transition(session.LoggingIn)
			return e.Transition(session.Authenticated)
		})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	cache.Invalidate(key)

	svc := NewService(cache, events, 0)
	if _, err := svc.Cameras(context.Background(), entry); !errors.Is(err, session.ErrEntryClosed) {
		t.Errorf("Cameras() on closed entry error = %v, want ErrEntryClosed", err)
	}
}
