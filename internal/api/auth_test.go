package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/camgate/internal/audit"
	"github.com/nerrad567/camgate/internal/auth"
	"github.com/nerrad567/camgate/internal/infrastructure/config"
	"github.com/nerrad567/camgate/internal/upstream"
)

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/login", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := decode[loginResponse](t, w)
	if resp.Status != "success" || resp.Cameras != 2 {
		t.Errorf("response = %+v, want success with 2 cameras", resp)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("len(cookies) = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != "camgate_session" {
		t.Errorf("cookie name = %q, want camgate_session", c.Name)
	}
	if !c.HttpOnly {
		t.Error("session cookie is not HttpOnly")
	}
	if strings.Contains(c.Value, testUser) {
		t.Error("session cookie carries the principal in clear text")
	}

	if !hasLine(env.events.Lines(), "Login successful! 2 cameras found") {
		t.Errorf("event log missing success line: %v", env.events.Lines())
	}
}

func TestLogin_ReusesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	env.login(t)

	if env.svc.starts != 1 {
		t.Errorf("upstream logins = %d, want 1", env.svc.starts)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	env := newTestEnv(t, nil, withAccount(config.AccountConfig{}))

	w := env.do(t, http.MethodPost, "/api/login", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	resp := decode[Error](t, w)
	if resp.Message != "Server misconfiguration: missing credentials" {
		t.Errorf("error = %q", resp.Message)
	}
	if env.svc.starts != 0 {
		t.Error("upstream contacted without credentials")
	}
	if !hasLine(env.events.Lines(), "ERROR: Missing camera service credentials") {
		t.Errorf("event log missing configuration error: %v", env.events.Lines())
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name       string
		svc        *fakeService
		wantStatus int
		wantPrefix string
	}{
		{
			name: "rejected credentials",
			svc: &fakeService{startErr: &upstream.StatusError{
				Op: "login", StatusCode: http.StatusUnauthorized, Message: "invalid credentials",
			}},
			wantStatus: http.StatusUnauthorized,
			wantPrefix: "Login failed: invalid credentials",
		},
		{
			name:       "service unreachable",
			svc:        &fakeService{startErr: upstream.ErrUnavailable},
			wantStatus: http.StatusBadGateway,
			wantPrefix: "Login failed: ",
		},
		{
			name:       "no devices",
			svc:        &fakeService{},
			wantStatus: http.StatusUnauthorized,
			wantPrefix: "Login failed: no devices returned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.svc)

			w := env.do(t, http.MethodPost, "/api/login", "", nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode[Error](t, w)
			if !strings.HasPrefix(resp.Message, tt.wantPrefix) {
				t.Errorf("error = %q, want prefix %q", resp.Message, tt.wantPrefix)
			}
			if len(w.Result().Cookies()) != 0 {
				t.Error("failed login set a cookie")
			}

			// Nothing is stored, so the next attempt contacts the service again.
			env.do(t, http.MethodPost, "/api/login", "", nil)
			if env.svc.starts != 2 {
				t.Errorf("upstream logins = %d, want 2", env.svc.starts)
			}
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t, &fakeService{startErr: upstream.ErrUnauthorized}, withLimit(2))

	w := env.do(t, http.MethodPost, "/api/login", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("first attempt status = %d, want 401", w.Code)
	}

	for i := 0; i < 2; i++ {
		w = env.do(t, http.MethodPost, "/api/login", "", nil)
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt %d status = %d, want 429", i+2, w.Code)
		}
		if got := w.Header().Get("Retry-After"); got != "300" {
			t.Errorf("Retry-After = %q, want 300", got)
		}
	}

	resp := decode[Error](t, w)
	if resp.Message != "Too many login attempts. Try again in 5 minutes" {
		t.Errorf("error = %q", resp.Message)
	}
	if env.svc.starts != 1 {
		t.Errorf("upstream logins = %d, want 1", env.svc.starts)
	}
}

func TestVerify_RateLimited(t *testing.T) {
	svc := &fakeService{
		startErr: &upstream.ChallengeError{Challenge: "sms"},
		records:  twoCameras(),
	}
	env := newTestEnv(t, svc, withLimit(2))

	if w := env.do(t, http.MethodPost, "/api/login", "", nil); w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/verify-pin", `{"pin":"123456"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("verify status = %d, want 429 (body %s)", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Retry-After"); got != "300" {
		t.Errorf("Retry-After = %q, want 300", got)
	}

	svc.mu.Lock()
	verifies := svc.verifies
	svc.mu.Unlock()
	if verifies != 0 {
		t.Errorf("upstream PIN submissions = %d, want 0", verifies)
	}
}

func TestTwoFactorFlow(t *testing.T) {
	svc := &fakeService{
		startErr: &upstream.ChallengeError{Challenge: "sms"},
		records:  twoCameras(),
	}
	env := newTestEnv(t, svc)

	w := env.do(t, http.MethodPost, "/api/login", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decode[statusResponse](t, w); resp.Status != "2fa_required" {
		t.Fatalf("status = %q, want 2fa_required", resp.Status)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("pending login set a cookie")
	}

	// A repeated login while pending does not contact the service.
	w = env.do(t, http.MethodPost, "/api/login", "", nil)
	if resp := decode[statusResponse](t, w); resp.Status != "2fa_required" {
		t.Errorf("repeat login status = %q, want 2fa_required", resp.Status)
	}
	if svc.starts != 1 {
		t.Errorf("upstream logins = %d, want 1", svc.starts)
	}

	// Protected routes stay closed until verified.
	if w := env.do(t, http.MethodGet, "/api/cameras", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("cameras before verify status = %d, want 401", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/verify-pin", `{"pin":"123456"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[loginResponse](t, w)
	if resp.Status != "success" || resp.Cameras != 2 {
		t.Errorf("verify response = %+v", resp)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("verify did not set a session cookie")
	}

	if w := env.do(t, http.MethodGet, "/api/cameras", "", cookies); w.Code != http.StatusOK {
		t.Errorf("cameras after verify status = %d, want 200", w.Code)
	}
	if !hasLine(env.events.Lines(), "2FA verification successful! 2 cameras found") {
		t.Errorf("event log missing verify line: %v", env.events.Lines())
	}
}

func TestVerify_Errors(t *testing.T) {
	t.Run("missing pin", func(t *testing.T) {
		env := newTestEnv(t, nil)
		w := env.do(t, http.MethodPost, "/api/verify-pin", `{}`, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if resp := decode[Error](t, w); resp.Message != "Missing PIN" {
			t.Errorf("error = %q, want Missing PIN", resp.Message)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		env := newTestEnv(t, nil)
		w := env.do(t, http.MethodPost, "/api/verify-pin", `{not json`, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("no pending login", func(t *testing.T) {
		env := newTestEnv(t, nil)
		w := env.do(t, http.MethodPost, "/api/verify-pin", `{"pin":"123456"}`, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
		if resp := decode[Error](t, w); resp.Message != "Session expired, please login again" {
			t.Errorf("error = %q", resp.Message)
		}
	})

	t.Run("wrong pin keeps login pending", func(t *testing.T) {
		svc := &fakeService{
			startErr: &upstream.ChallengeError{Challenge: "sms"},
			verifyErr: &upstream.StatusError{
				Op: "verify", StatusCode: http.StatusUnauthorized, Message: "invalid PIN",
			},
			records: twoCameras(),
		}
		env := newTestEnv(t, svc)
		env.do(t, http.MethodPost, "/api/login", "", nil)

		w := env.do(t, http.MethodPost, "/api/verify-pin", `{"pin":"000000"}`, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
		if resp := decode[Error](t, w); resp.Message != "PIN verification failed: invalid PIN" {
			t.Errorf("error = %q", resp.Message)
		}

		svc.mu.Lock()
		svc.verifyErr = nil
		svc.mu.Unlock()

		w = env.do(t, http.MethodPost, "/api/verify-pin", `{"pin":"123456"}`, nil)
		if w.Code != http.StatusOK {
			t.Errorf("retry status = %d, want 200 (body %s)", w.Code, w.Body.String())
		}
	})

	t.Run("no devices after verify", func(t *testing.T) {
		svc := &fakeService{startErr: &upstream.ChallengeError{Challenge: "email"}}
		env := newTestEnv(t, svc)
		env.do(t, http.MethodPost, "/api/login", "", nil)

		w := env.do(t, http.MethodPost, "/api/verify-pin", `{"pin":"123456"}`, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
		if resp := decode[Error](t, w); resp.Message != "Verification succeeded but no cameras found" {
			t.Errorf("error = %q", resp.Message)
		}

		// The session was discarded, so a second PIN has nothing to verify.
		w = env.do(t, http.MethodPost, "/api/verify-pin", `{"pin":"123456"}`, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("second verify status = %d, want 401", w.Code)
		}
		if resp := decode[Error](t, w); resp.Message != "Session expired, please login again" {
			t.Errorf("second verify error = %q", resp.Message)
		}
	})
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t)

	w := env.do(t, http.MethodPost, "/api/logout", "", cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}
	if resp := decode[statusResponse](t, w); resp.Status != "logged out" {
		t.Errorf("status = %q, want logged out", resp.Status)
	}

	cleared := w.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Errorf("logout cookies = %+v, want one expired cookie", cleared)
	}

	// The old cookie no longer reaches an upstream session.
	if w := env.do(t, http.MethodGet, "/api/cameras", "", cookies); w.Code != http.StatusUnauthorized {
		t.Errorf("cameras after logout status = %d, want 401", w.Code)
	}
	if !hasLine(env.events.Lines(), "Logged out") {
		t.Errorf("event log missing logout line: %v", env.events.Lines())
	}
}

func TestLogout_WithoutSession(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/logout", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("logout status = %d, want 200", w.Code)
	}
}

func TestLogout_ClearsPendingTwoFactor(t *testing.T) {
	svc := &fakeService{
		startErr: &upstream.ChallengeError{Challenge: "sms"},
		records:  twoCameras(),
	}
	env := newTestEnv(t, svc)

	w := env.do(t, http.MethodPost, "/api/login", "", nil)
	if resp := decode[statusResponse](t, w); resp.Status != "2fa_required" {
		t.Fatalf("login status = %q, want 2fa_required", resp.Status)
	}

	// The pending login never set a cookie.
	if w := env.do(t, http.MethodPost, "/api/logout", "", nil); w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/verify-pin", `{"pin":"123456"}`, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("verify after logout status = %d, want 401", w.Code)
	}

	svc.mu.Lock()
	svc.startErr = nil
	svc.mu.Unlock()

	w = env.do(t, http.MethodPost, "/api/login", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decode[loginResponse](t, w); resp.Status != "success" || resp.Cameras != 2 {
		t.Errorf("login after logout = %+v, want success with 2 cameras", resp)
	}

	svc.mu.Lock()
	starts := svc.starts
	svc.mu.Unlock()
	if starts != 2 {
		t.Errorf("upstream logins = %d, want 2", starts)
	}
}

func TestSessionMiddleware_RejectsForeignCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	// A validly signed cookie for a principal other than the account.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cameras", nil)
	if err := env.srv.setPrincipal(w, req, "intruder@example.com"); err != nil {
		t.Fatalf("setPrincipal() error: %v", err)
	}

	resp := env.do(t, http.MethodGet, "/api/cameras", "", w.Result().Cookies())
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.Code)
	}
	if !hasLine(env.events.Lines(), "ERROR: Not logged in - GET /api/cameras") {
		t.Errorf("event log missing not-logged-in line: %v", env.events.Lines())
	}
}

func TestSessionMiddleware_TamperedCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	forged := &http.Cookie{Name: "camgate_session", Value: "forged-value"}
	if w := env.do(t, http.MethodGet, "/api/cameras", "", []*http.Cookie{forged}); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ─── WebSocket tickets ─────────────────────────────────────────────

func TestWSTicket(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(t, http.MethodPost, "/api/ws-ticket", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("ticket without session status = %d, want 401", w.Code)
	}

	cookies := env.login(t)
	w := env.do(t, http.MethodPost, "/api/ws-ticket", "", cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("ticket status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[ticketResponse](t, w)
	if resp.Ticket == "" {
		t.Fatal("empty ticket")
	}
	if resp.ExpiresIn != 60 {
		t.Errorf("expires_in = %d, want 60", resp.ExpiresIn)
	}

	principal, ok := env.srv.validateTicket(resp.Ticket)
	if !ok || principal != testUser {
		t.Fatalf("validateTicket() = %q, %v; want %q, true", principal, ok, testUser)
	}
	if _, ok := env.srv.validateTicket(resp.Ticket); ok {
		t.Error("ticket redeemed twice")
	}
}

func TestValidateTicket_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	otherKey, err := auth.IssueTicket(testUser, "another-secret-key-at-least-32-chars!!", time.Minute)
	if err != nil {
		t.Fatalf("IssueTicket() error: %v", err)
	}
	stranger, err := auth.IssueTicket("stranger@example.com", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueTicket() error: %v", err)
	}

	tests := []struct {
		name   string
		ticket string
	}{
		{"garbage", "not-a-ticket"},
		{"empty", ""},
		{"wrong key", otherKey},
		{"unknown principal", stranger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := env.srv.validateTicket(tt.ticket); ok {
				t.Error("validateTicket() ok = true, want false")
			}
		})
	}
}

func TestTicketStore_CleanExpired(t *testing.T) {
	ts := newTicketStore()
	now := time.Now()

	ts.consume("old", now.Add(-time.Second))
	ts.consume("new", now.Add(time.Minute))
	ts.cleanExpired(now)

	if ts.len() != 1 {
		t.Errorf("len() = %d, want 1", ts.len())
	}
	if ts.consume("new", now.Add(time.Minute)) {
		t.Error("unexpired ticket redeemed twice")
	}
	if !ts.consume("old", now.Add(time.Minute)) {
		t.Error("forgotten ticket id could not be redeemed")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{300 * time.Second, "300"},
		{299*time.Second + time.Millisecond, "300"},
		{0, "1"},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.d); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

// ─── Audit ─────────────────────────────────────────────────────────

type fakeAuditRepo struct {
	logs    []audit.AuditLog
	filters []audit.Filter
	err     error
}

func (r *fakeAuditRepo) Create(_ context.Context, log *audit.AuditLog) error {
	r.logs = append(r.logs, *log)
	return nil
}

func (r *fakeAuditRepo) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	r.filters = append(r.filters, f)
	if r.err != nil {
		return nil, r.err
	}
	return &audit.ListResult{Logs: r.logs, Total: len(r.logs), Limit: f.Limit, Offset: f.Offset}, nil
}

func TestAuditLogs(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t)

	t.Run("no repository", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/audit", "", cookies)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if resp := decode[audit.ListResult](t, w); len(resp.Logs) != 0 {
			t.Errorf("logs = %v, want empty", resp.Logs)
		}
	})

	repo := &fakeAuditRepo{logs: []audit.AuditLog{{ID: "a1", Action: "login", Result: "authenticated"}}}
	env.srv.auditRepo = repo

	t.Run("filters", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/audit?action=login&result=failed&limit=10&offset=5", "", cookies)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		got := repo.filters[len(repo.filters)-1]
		want := audit.Filter{Action: "login", Result: "failed", Limit: 10, Offset: 5}
		if got != want {
			t.Errorf("filter = %+v, want %+v", got, want)
		}
		if resp := decode[audit.ListResult](t, w); len(resp.Logs) != 1 || resp.Logs[0].ID != "a1" {
			t.Errorf("logs = %+v", resp.Logs)
		}
	})

	t.Run("bad paging", func(t *testing.T) {
		for _, q := range []string{"limit=abc", "limit=-1", "offset=x"} {
			if w := env.do(t, http.MethodGet, "/api/audit?"+q, "", cookies); w.Code != http.StatusBadRequest {
				t.Errorf("%s status = %d, want 400", q, w.Code)
			}
		}
	})

	t.Run("repository error", func(t *testing.T) {
		repo.err = errors.New("disk full")
		defer func() { repo.err = nil }()
		if w := env.do(t, http.MethodGet, "/api/audit", "", cookies); w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})

	t.Run("requires session", func(t *testing.T) {
		if w := env.do(t, http.MethodGet, "/api/audit", "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}
