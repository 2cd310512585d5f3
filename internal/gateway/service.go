package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/camgate/internal/camera"
	"github.com/nerrad567/camgate/internal/eventlog"
	"github.com/nerrad567/camgate/internal/infrastructure/metrics"
	"github.com/nerrad567/camgate/internal/session"
	"github.com/nerrad567/camgate/internal/upstream"
)

// StatePublisher receives camera state and motion events as they are fetched.
type StatePublisher interface {
	PublishCameraState(ctx context.Context, view camera.View) error
	PublishMotionEvent(ctx context.Context, ev camera.MotionEvent) error
}

// TelemetryWriter records camera state over time.
type TelemetryWriter interface {
	WriteCameraTelemetry(view camera.View, at time.Time)
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Service performs camera operations for authenticated sessions.
type Service struct {
	cache      *session.Cache
	events     *eventlog.Log
	videoPages int

	publishers []StatePublisher
	telemetry  TelemetryWriter
	logger     Logger
	now        func() time.Time
}

// NewService returns a Service. videoPages <= 0 uses upstream.DefaultVideoPages.
func NewService(cache *session.Cache, events *eventlog.Log, videoPages int) *Service {
	if videoPages <= 0 {
		videoPages = upstream.DefaultVideoPages
	}
	return &Service{
		cache:      cache,
		events:     events,
		videoPages: videoPages,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for publish and telemetry failures.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// AddPublisher registers a state publisher. Not safe to call once requests
// are being served.
func (s *Service) AddPublisher(p StatePublisher) {
	if p != nil {
		s.publishers = append(s.publishers, p)
	}
}

// SetTelemetry sets the telemetry writer.
func (s *Service) SetTelemetry(w TelemetryWriter) {
	s.telemetry = w
}

// Cameras refreshes the device list and returns the normalized views in
// upstream order.
func (s *Service) Cameras(ctx context.Context, e *session.Entry) ([]camera.View, error) {
	var views []camera.View
	err := s.cache.Do(ctx, e, func(ctx context.Context, c upstream.Client) error {
		if err := s.refresh(ctx, c); err != nil {
			return err
		}
		records := c.Cameras()
		views = make([]camera.View, 0, len(records))
		for _, r := range records {
			views = append(views, s.normalize(r))
		}
		return nil
	})
	if err != nil {
		s.events.Appendf("Camera list error: %s", upstream.Message(err))
		return nil, err
	}

	at := s.now()
	e.MarkRefreshed(at)
	for _, v := range views {
		s.publishState(ctx, v, at)
	}
	return views, nil
}

// normalize resolves one record and traces how each field was resolved.
func (s *Service) normalize(r camera.Record) camera.View {
	view, prov := camera.NormalizeWithProvenance(r)
	s.events.Appendf("Camera %s: battery=%s, temp=%s", view.Name, view.Battery, view.Temperature)
	s.events.Appendf("Camera %s motion_enabled from %s, notifications_snoozed from %s",
		view.Name, prov.MotionEnabled, prov.Snoozed)
	s.events.Appendf("Camera %s: FINAL motion_enabled=%t, notifications_enabled=%t",
		view.Name, view.MotionEnabled, view.NotificationsEnabled)
	s.logger.Debug("camera normalized",
		"camera", view.Name,
		"battery_source", prov.Battery,
		"temperature_source", prov.Temperature,
	)
	return view
}

// Arm arms or disarms the named camera.
func (s *Service) Arm(ctx context.Context, e *session.Entry, name string, armed bool) error {
	err := s.withCamera(ctx, e, name, func(ctx context.Context, c upstream.Client) error {
		err := c.Arm(ctx, name, armed)
		metrics.ObserveUpstream("arm", err)
		return err
	})
	if err != nil {
		s.events.Appendf("Arm error for %s: %s", name, upstream.Message(err))
		return err
	}
	s.events.Appendf("Camera %s %s", name, armedWord(armed))
	return nil
}

// Snapshot requests a new picture, refreshes, and returns the new thumbnail
// reference (nil when the camera reports none).
func (s *Service) Snapshot(ctx context.Context, e *session.Entry, name string) (*string, error) {
	var thumb *string
	err := s.withCamera(ctx, e, name, func(ctx context.Context, c upstream.Client) error {
		err := c.SnapPicture(ctx, name)
		metrics.ObserveUpstream("snapshot", err)
		if err != nil {
			return err
		}
		if err := s.refresh(ctx, c); err != nil {
			return err
		}
		r, err := camera.Find(c.Cameras(), name)
		if err != nil {
			return err
		}
		thumb = r.Thumbnail
		return nil
	})
	if err != nil {
		s.events.Appendf("Snapshot error: %s", upstream.Message(err))
		return nil, err
	}
	s.events.Appendf("Snapshot requested for %s", name)
	return thumb, nil
}

// SetMotion enables or disables motion detection.
func (s *Service) SetMotion(ctx context.Context, e *session.Entry, name string, enabled bool) error {
	err := s.withCamera(ctx, e, name, func(ctx context.Context, c upstream.Client) error {
		err := c.SetMotionDetect(ctx, name, enabled)
		metrics.ObserveUpstream("motion", err)
		return err
	})
	if err != nil {
		s.events.Appendf("Motion toggle error: %s", upstream.Message(err))
		return err
	}
	s.events.Appendf("Motion detection %s for %s", enabledWord(enabled), name)
	return nil
}

// SetNotifications enables notifications (enabled=true clears the snooze) or
// snoozes them. Cameras without snooze support return
// upstream.ErrCapabilityUnsupported.
func (s *Service) SetNotifications(ctx context.Context, e *session.Entry, name string, enabled bool) error {
	err := s.withCamera(ctx, e, name, func(ctx context.Context, c upstream.Client) error {
		err := c.SetNotificationSnooze(ctx, name, !enabled)
		metrics.ObserveUpstream("snooze", err)
		return err
	})
	switch {
	case errors.Is(err, upstream.ErrCapabilityUnsupported):
		s.events.Appendf("Warning: Notification snooze not supported for %s", name)
		return err
	case err != nil:
		s.events.Appendf("Notification toggle error: %s", upstream.Message(err))
		return err
	}

	word := "snoozed"
	if enabled {
		word = "enabled"
	}
	s.events.Appendf("Notifications %s for %s", word, name)
	return nil
}

// Thumbnail returns the camera's latest thumbnail image.
func (s *Service) Thumbnail(ctx context.Context, e *session.Entry, name string) ([]byte, error) {
	var img []byte
	err := s.withCamera(ctx, e, name, func(ctx context.Context, c upstream.Client) error {
		data, err := c.Thumbnail(ctx, name)
		metrics.ObserveUpstream("thumbnail", err)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return upstream.ErrNoMedia
		}
		img = data
		return nil
	})
	if err != nil {
		s.events.Appendf("Thumbnail error: %s", upstream.Message(err))
		return nil, err
	}
	return img, nil
}

// Events refreshes and returns recent motion events, newest first.
func (s *Service) Events(ctx context.Context, e *session.Entry) ([]camera.MotionEvent, error) {
	var events []camera.MotionEvent
	err := s.cache.Do(ctx, e, func(ctx context.Context, c upstream.Client) error {
		if err := s.refresh(ctx, c); err != nil {
			return err
		}
		clips, err := c.Videos(ctx, s.videoPages)
		metrics.ObserveUpstream("videos", err)
		if err != nil {
			return err
		}
		events = camera.Events(clips)
		return nil
	})
	if err != nil {
		s.events.Appendf("Events error: %s", upstream.Message(err))
		return nil, err
	}

	for _, ev := range events {
		for _, p := range s.publishers {
			if err := p.PublishMotionEvent(ctx, ev); err != nil {
				s.logger.Warn("publishing motion event failed", "camera", ev.Camera, "error", err)
			}
		}
	}
	return events, nil
}

// withCamera refreshes the device list when it is empty, confirms name
// exists and runs op on the same upstream handle.
func (s *Service) withCamera(ctx context.Context, e *session.Entry, name string, op session.OpFunc) error {
	return s.cache.Do(ctx, e, func(ctx context.Context, c upstream.Client) error {
		if len(c.Cameras()) == 0 {
			if err := s.refresh(ctx, c); err != nil {
				return err
			}
		}
		if _, err := camera.Find(c.Cameras(), name); err != nil {
			return fmt.Errorf("%w: %s", err, name)
		}
		return op(ctx, c)
	})
}

func (s *Service) refresh(ctx context.Context, c upstream.Client) error {
	err := c.Refresh(ctx)
	metrics.ObserveUpstream("refresh", err)
	return err
}

func (s *Service) publishState(ctx context.Context, v camera.View, at time.Time) {
	for _, p := range s.publishers {
		if err := p.PublishCameraState(ctx, v); err != nil {
			s.logger.Warn("publishing camera state failed", "camera", v.Name, "error", err)
		}
	}
	if s.telemetry != nil {
		s.telemetry.WriteCameraTelemetry(v, at)
	}
}

func armedWord(armed bool) string {
	if armed {
		return "armed"
	}
	return "disarmed"
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
