package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/nerrad567/camgate/internal/camera"
)

// fakeClient records transport bindings and close calls.
type fakeClient struct {
	mu      sync.Mutex
	bound   []*http.Client
	current *http.Client
	closed  int
}

func (f *fakeClient) Rebind(hc *http.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = hc
	if hc != nil {
		f.bound = append(f.bound, hc)
	}
}

func (f *fakeClient) transport() *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) Start(context.Context) error                         { return nil }
func (f *fakeClient) SendTwoFactorCode(context.Context, string) error     { return nil }
func (f *fakeClient) SetupPostVerify(context.Context) error               { return nil }
func (f *fakeClient) Refresh(context.Context) error                       { return nil }
func (f *fakeClient) Cameras() []camera.Record                            { return nil }
func (f *fakeClient) Arm(context.Context, string, bool) error             { return nil }
func (f *fakeClient) SnapPicture(context.Context, string) error           { return nil }
func (f *fakeClient) SetMotionDetect(context.Context, string, bool) error { return nil }
func (f *fakeClient) SetNotificationSnooze(context.Context, string, bool) error {
	return nil
}
func (f *fakeClient) Thumbnail(context.Context, string) ([]byte, error)  { return nil, nil }
func (f *fakeClient) Videos(context.Context, int) ([]camera.Clip, error) { return nil, nil }

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}
