package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/camgate/internal/camera"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4096

// maxMediaSize bounds thumbnail downloads.
const maxMediaSize = 10 << 20

// HTTPClient implements Client over the service's REST API.
type HTTPClient struct {
	cfg       Config
	principal string
	secret    string
	uniqueID  string

	hc *http.Client

	token     string
	accountID int64
	clientID  int64
	challenge string
	networks  []int64

	mu      sync.RWMutex
	cameras []camera.Record
	closed  bool
}

// NewHTTPClient creates an unauthenticated client for one credential pair.
// Each client identifies itself with a fresh unique device ID.
func NewHTTPClient(cfg Config, principal, secret string) *HTTPClient {
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPClient{
		cfg:       cfg,
		principal: principal,
		secret:    secret,
		uniqueID:  uuid.NewString(),
	}
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	UniqueID   string `json:"unique_id"`
	ClientName string `json:"client_name"`
}

type loginResponse struct {
	Account struct {
		AccountID            int64 `json:"account_id"`
		ClientID             int64 `json:"client_id"`
		VerificationRequired bool  `json:"client_verification_required"`
	} `json:"account"`
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
	Challenge string `json:"challenge"`
}

type verifyResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type networksResponse struct {
	Networks []struct {
		ID int64 `json:"id"`
	} `json:"networks"`
}

type homescreenResponse struct {
	Cameras []camera.Record `json:"cameras"`
}

type mediaResponse struct {
	Media []camera.Clip `json:"media"`
}

// Rebind attaches the transport used by subsequent calls.
func (c *HTTPClient) Rebind(hc *http.Client) {
	c.hc = hc
}

// Start logs in with the password. When the service asks for a second
// factor the challenge is kept and a *ChallengeError is returned; otherwise
// account setup and an initial refresh follow.
func (c *HTTPClient) Start(ctx context.Context) error {
	var resp loginResponse
	err := c.do(ctx, "login", http.MethodPost, "/api/v5/account/login", loginRequest{
		Email:      c.principal,
		Password:   c.secret,
		UniqueID:   c.uniqueID,
		ClientName: c.cfg.ClientName,
	}, &resp)
	if err != nil {
		return err
	}

	c.token = resp.Auth.Token
	c.accountID = resp.Account.AccountID
	c.clientID = resp.Account.ClientID

	if resp.Account.VerificationRequired {
		c.challenge = resp.Challenge
		return &ChallengeError{Challenge: resp.Challenge}
	}

	if err := c.SetupPostVerify(ctx); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// SendTwoFactorCode submits the PIN for the pending challenge.
func (c *HTTPClient) SendTwoFactorCode(ctx context.Context, code string) error {
	if c.token == "" {
		return ErrNotLoggedIn
	}

	var resp verifyResponse
	path := fmt.Sprintf("/api/v4/account/%d/client/%d/pin/verify", c.accountID, c.clientID)
	if err := c.do(ctx, "verify pin", http.MethodPost, path, map[string]string{"pin": code}, &resp); err != nil {
		return err
	}
	if !resp.Valid {
		msg := resp.Message
		if msg == "" {
			msg = "invalid PIN"
		}
		return &StatusError{Op: "verify pin", StatusCode: http.StatusUnauthorized, Message: msg}
	}
	return nil
}

// SetupPostVerify loads the account's networks, which camera commands are
// addressed through.
func (c *HTTPClient) SetupPostVerify(ctx context.Context) error {
	if c.token == "" {
		return ErrNotLoggedIn
	}

	var resp networksResponse
	path := fmt.Sprintf("/api/v1/accounts/%d/networks", c.accountID)
	if err := c.do(ctx, "networks", http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	c.networks = c.networks[:0]
	for _, n := range resp.Networks {
		c.networks = append(c.networks, n.ID)
	}
	c.challenge = ""
	return nil
}

// Refresh reloads the device list.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	if c.token == "" {
		return ErrNotLoggedIn
	}

	var resp homescreenResponse
	path := fmt.Sprintf("/api/v3/accounts/%d/homescreen", c.accountID)
	if err := c.do(ctx, "homescreen", http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.cameras = resp.Cameras
	c.mu.Unlock()
	return nil
}

// Cameras returns a copy of the device list from the last refresh.
func (c *HTTPClient) Cameras() []camera.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]camera.Record, len(c.cameras))
	copy(out, c.cameras)
	return out
}

// Arm enables or disables a camera.
func (c *HTTPClient) Arm(ctx context.Context, name string, armed bool) error {
	action := "disarm"
	if armed {
		action = "arm"
	}
	return c.cameraCommand(ctx, action, name, action, nil)
}

// SnapPicture asks the camera to capture a new thumbnail.
func (c *HTTPClient) SnapPicture(ctx context.Context, name string) error {
	return c.cameraCommand(ctx, "snapshot", name, "thumbnail", nil)
}

// SetMotionDetect toggles motion detection on a camera.
func (c *HTTPClient) SetMotionDetect(ctx context.Context, name string, enabled bool) error {
	return c.cameraCommand(ctx, "motion detection", name, "config", map[string]bool{"motion_detection": enabled})
}

// SetNotificationSnooze snoozes or resumes notifications for a camera.
// Devices without snooze support answer 404 and map to ErrCapabilityUnsupported.
func (c *HTTPClient) SetNotificationSnooze(ctx context.Context, name string, snoozed bool) error {
	err := c.cameraCommand(ctx, "notification snooze", name, "snooze", map[string]bool{"snooze": snoozed})
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: notification snooze on %s", ErrCapabilityUnsupported, name)
	}
	return err
}

// Thumbnail downloads the camera's latest thumbnail image.
func (c *HTTPClient) Thumbnail(ctx context.Context, name string) ([]byte, error) {
	rec, err := c.find(name)
	if err != nil {
		return nil, err
	}
	if rec.Thumbnail == nil || *rec.Thumbnail == "" {
		return nil, ErrNoMedia
	}

	target := *rec.Thumbnail
	if !strings.HasSuffix(target, ".jpg") {
		target += ".jpg"
	}

	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req, "thumbnail")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoMedia
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError("thumbnail", resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize))
	if err != nil {
		return nil, fmt.Errorf("upstream: thumbnail: %w: %w", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return nil, ErrNoMedia
	}
	return data, nil
}

// Videos pages through the media list until pages pages are read or a page
// comes back empty.
func (c *HTTPClient) Videos(ctx context.Context, pages int) ([]camera.Clip, error) {
	if c.token == "" {
		return nil, ErrNotLoggedIn
	}
	if pages < 1 {
		pages = DefaultVideoPages
	}

	var clips []camera.Clip
	for page := 1; page <= pages; page++ {
		var resp mediaResponse
		q := url.Values{"page": {strconv.Itoa(page)}}
		path := fmt.Sprintf("/api/v1/accounts/%d/media/changed?%s", c.accountID, q.Encode())
		if err := c.do(ctx, "media", http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		if len(resp.Media) == 0 {
			break
		}
		clips = append(clips, resp.Media...)
	}
	return clips, nil
}

// Close drops the auth token and releases the bound transport.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.cameras = nil
	c.mu.Unlock()

	c.token = ""
	ReleaseTransport(c.hc)
	c.hc = nil
	return nil
}

func (c *HTTPClient) find(name string) (camera.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, err := camera.Find(c.cameras, name)
	if err != nil {
		return camera.Record{}, fmt.Errorf("%w: %s", ErrCameraNotFound, name)
	}
	return rec, nil
}

func (c *HTTPClient) cameraCommand(ctx context.Context, op, name, action string, body any) error {
	if c.token == "" {
		return ErrNotLoggedIn
	}
	rec, err := c.find(name)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/api/v1/accounts/%d/networks/%s/cameras/%s/%s",
		c.accountID, url.PathEscape(rec.NetworkID), url.PathEscape(rec.ID), action)
	err = c.do(ctx, op, http.MethodPost, path, body, nil)

	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %w", ErrCameraNotFound, name, err)
	}
	return err
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream: %s: encoding request: %w", op, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: %s: decoding response: %w: %w", op, ErrUnavailable, err)
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.cfg.BaseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("upstream: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.ClientName)
	// Absolute media URLs may point at other hosts; the token stays with the
	// service's own origin.
	if c.token != "" && c.sameOrigin(req.URL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// sameOrigin reports whether u has the scheme and host of the base URL.
func (c *HTTPClient) sameOrigin(u *url.URL) bool {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

func (c *HTTPClient) send(req *http.Request, op string) (*http.Response, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrNotLoggedIn
	}
	if c.hc == nil {
		return nil, ErrNoTransport
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: %s: %w: %w", op, ErrUnavailable, err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	se := &StatusError{Op: op, StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		se.Message = body.Message
	}
	return se
}
