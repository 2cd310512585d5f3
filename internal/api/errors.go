package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/camgate/internal/auth"
	"github.com/nerrad567/camgate/internal/camera"
	"github.com/nerrad567/camgate/internal/ratelimit"
	"github.com/nerrad567/camgate/internal/session"
	"github.com/nerrad567/camgate/internal/upstream"
)

// ErrConfigurationMissing is returned when the account credentials are not
// configured on the server.
var ErrConfigurationMissing = errors.New("api: account credentials not configured")

// Error represents a structured error response. The message is carried in
// the "error" field, which is what browser clients read.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// Common error codes.
const (
	ErrCodeBadRequest          = "bad_request"
	ErrCodeNotFound            = "not_found"
	ErrCodeUnauthorized        = "unauthorised"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeUnsupported         = "capability_unsupported"
	ErrCodeUpstreamAuth        = "upstream_auth_failed"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeUpstreamRejected    = "upstream_rejected"
	ErrCodeConfiguration       = "configuration_missing"
	ErrCodeInternal            = "internal_error"
	ErrCodeMethodNotAllow      = "method_not_allowed"
)

// errorMapping maps an error onto a response. A non-empty message replaces
// whatever text the handler supplied.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first errors.Is match wins.
// Login and verification failures are classified by the auth package and
// match before the upstream sentinels they wrap.
var errorMappings = []errorMapping{
	{ratelimit.ErrLocked, http.StatusTooManyRequests, ErrCodeRateLimited, ""},
	{ErrConfigurationMissing, http.StatusInternalServerError, ErrCodeConfiguration, "Server misconfiguration: missing credentials"},
	{auth.ErrMissingCode, http.StatusBadRequest, ErrCodeBadRequest, "Missing PIN"},
	{auth.ErrNotAuthenticated, http.StatusUnauthorized, ErrCodeUnauthorized, "Not logged in"},
	{session.ErrEntryClosed, http.StatusUnauthorized, ErrCodeUnauthorized, "Not logged in"},
	{auth.ErrSessionExpired, http.StatusUnauthorized, ErrCodeUnauthorized, "Session expired, please login again"},
	{auth.ErrUpstreamUnavailable, http.StatusBadGateway, ErrCodeUpstreamUnavailable, ""},
	{auth.ErrUpstreamAuthFailed, http.StatusUnauthorized, ErrCodeUpstreamAuth, ""},
	{camera.ErrDeviceNotFound, http.StatusNotFound, ErrCodeNotFound, "Camera not found"},
	{upstream.ErrCameraNotFound, http.StatusNotFound, ErrCodeNotFound, "Camera not found"},
	{upstream.ErrNoMedia, http.StatusNotFound, ErrCodeNotFound, "No thumbnail available"},
	{upstream.ErrCapabilityUnsupported, http.StatusBadRequest, ErrCodeUnsupported, ""},
	{upstream.ErrUnavailable, http.StatusBadGateway, ErrCodeUpstreamUnavailable, ""},
	{context.DeadlineExceeded, http.StatusBadGateway, ErrCodeUpstreamUnavailable, ""},
	{upstream.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUpstreamAuth, ""},
	{upstream.ErrRejected, http.StatusBadGateway, ErrCodeUpstreamRejected, ""},
	{upstream.ErrNotLoggedIn, http.StatusUnauthorized, ErrCodeUnauthorized, "Not logged in"},
}

// classifyError returns the status, code and message for err. message is
// used unless the mapping fixes its own text; when both are empty the
// upstream message is used.
func classifyError(err error, message string) (int, string, string) {
	status, code := http.StatusInternalServerError, ErrCodeInternal
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status, code = m.status, m.code
			if m.message != "" {
				message = m.message
			}
			break
		}
	}
	if message == "" {
		message = upstream.Message(err)
	}
	return status, code, message
}

// writeServiceError writes the response for an error from the auth machine
// or gateway service.
func writeServiceError(w http.ResponseWriter, err error, message string) {
	status, code, msg := classifyError(err, message)
	writeError(w, status, code, msg)
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
