package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	IncLogin(ResultAuthenticated)
	IncVerify(ResultFailed)
	IncLockout()
	SetActiveSessions(2)
	ObserveUpstream("refresh", nil)
	ObserveUpstream("refresh", errors.New("boom"))
	ObserveHTTPRequest("GET", "/api/cameras", 200, 15*time.Millisecond)
	IncEventLogLines()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`camgate_login_attempts_total{result="authenticated"}`,
		`camgate_verify_attempts_total{result="failed"}`,
		`camgate_login_lockouts_total`,
		`camgate_active_sessions 2`,
		`camgate_upstream_calls_total{operation="refresh",result="error"}`,
		`camgate_http_requests_total{method="GET",route="/api/cameras",status="200"}`,
		`camgate_event_log_lines_total`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
