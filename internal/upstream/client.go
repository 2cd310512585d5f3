package upstream

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/camgate/internal/camera"
)

// DefaultClientName identifies the gateway to the service.
const DefaultClientName = "camgate"

// DefaultVideoPages is how many pages of the media list are fetched for
// the motion event feed.
const DefaultVideoPages = 3

// Client is an authenticated (or authenticating) handle on the camera service.
//
// A Client is owned by exactly one session entry. Methods are not safe for
// concurrent use; the owning entry serialises them.
type Client interface {
	// Rebind attaches the transport used by subsequent calls.
	Rebind(hc *http.Client)

	// Start performs password login and an initial device refresh.
	// It returns a *ChallengeError when a second factor is required.
	Start(ctx context.Context) error

	// SendTwoFactorCode submits the one-time PIN for the pending challenge.
	SendTwoFactorCode(ctx context.Context, code string) error

	// SetupPostVerify completes account setup after a successful PIN.
	SetupPostVerify(ctx context.Context) error

	// Refresh reloads the device list.
	Refresh(ctx context.Context) error

	// Cameras returns the device list from the last refresh.
	Cameras() []camera.Record

	Arm(ctx context.Context, name string, armed bool) error
	SnapPicture(ctx context.Context, name string) error
	SetMotionDetect(ctx context.Context, name string, enabled bool) error
	SetNotificationSnooze(ctx context.Context, name string, snoozed bool) error

	// Thumbnail fetches the latest thumbnail image for a camera.
	Thumbnail(ctx context.Context, name string) ([]byte, error)

	// Videos lists motion clip metadata, newest first, up to pages pages.
	Videos(ctx context.Context, pages int) ([]camera.Clip, error)

	// Close releases the handle. The Client must not be used afterwards.
	Close() error
}

// Factory builds a Client for one credential pair.
type Factory func(principal, secret string) Client

// Config holds the service endpoint settings.
type Config struct {
	BaseURL    string
	ClientName string
}

// NewFactory returns a Factory producing HTTPClients for cfg.
func NewFactory(cfg Config) Factory {
	return func(principal, secret string) Client {
		return NewHTTPClient(cfg, principal, secret)
	}
}

// NewTransport builds a fresh, unshared HTTP client. Each upstream operation
// gets its own so no connection state outlives the operation.
func NewTransport(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          4,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}

// ReleaseTransport closes any idle connections held by hc.
func ReleaseTransport(hc *http.Client) {
	if hc != nil {
		hc.CloseIdleConnections()
	}
}
