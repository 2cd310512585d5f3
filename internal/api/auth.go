package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/blake2b"

	"github.com/nerrad567/camgate/internal/auth"
	"github.com/nerrad567/camgate/internal/infrastructure/config"
	"github.com/nerrad567/camgate/internal/ratelimit"
	"github.com/nerrad567/camgate/internal/session"
)

const (
	// defaultCookieName is used when the session cookie name is not configured.
	defaultCookieName = "camgate_session"

	// principalKey is the session value holding the logged-in principal.
	principalKey = "principal"

	// blockKeyContext separates the cookie encryption key from the signing key.
	blockKeyContext = "camgate-cookie-block:"
)

// statusResponse is the body of simple success responses.
type statusResponse struct {
	Status string `json:"status"`
}

// loginResponse is the body of a successful login or verification.
type loginResponse struct {
	Status  string `json:"status"`
	Cameras int    `json:"cameras"`
}

// verifyRequest is the body of POST /api/verify-pin.
type verifyRequest struct {
	PIN string `json:"pin"`
}

// handleLogin logs in with the configured account.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.account.HasCredentials() {
		s.events.Append("ERROR: Missing camera service credentials in configuration")
		s.logger.Error("login refused: account credentials not configured")
		writeServiceError(w, ErrConfigurationMissing, "")
		return
	}

	out, err := s.machine.Login(r.Context(), s.account.Username, s.account.Password)
	if err != nil {
		if writeLocked(w, err) {
			return
		}
		writeServiceError(w, err, "Login failed: "+out.Reason)
		return
	}

	if out.Status == auth.StatusTwoFactorRequired {
		writeJSON(w, http.StatusOK, statusResponse{Status: string(auth.StatusTwoFactorRequired)})
		return
	}

	if err := s.setPrincipal(w, r, s.account.Username); err != nil {
		s.logger.Error("saving session cookie failed", "error", err)
		writeInternalError(w, "failed to save session")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Status: "success", Cameras: len(out.Devices)})
}

// handleVerifyPIN submits the second-factor PIN for the pending login.
func (s *Server) handleVerifyPIN(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.events.Append("2FA verification failed: invalid request body")
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !s.account.HasCredentials() {
		s.events.Append("ERROR: Missing camera service credentials in configuration")
		writeServiceError(w, ErrConfigurationMissing, "")
		return
	}
	if req.PIN == "" {
		s.events.Append("2FA verification failed: PIN required")
		writeServiceError(w, auth.ErrMissingCode, "")
		return
	}

	out, err := s.machine.Verify(r.Context(), s.account.Username, s.account.Password, req.PIN)
	if err != nil {
		if writeLocked(w, err) {
			return
		}
		msg := "PIN verification failed: " + out.Reason
		if errors.Is(err, auth.ErrNoDevices) {
			msg = "Verification succeeded but no cameras found"
		}
		writeServiceError(w, err, msg)
		return
	}

	if err := s.setPrincipal(w, r, s.account.Username); err != nil {
		s.logger.Error("saving session cookie failed", "error", err)
		writeInternalError(w, "failed to save session")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Status: "success", Cameras: len(out.Devices)})
}

// handleLogout discards the configured account's upstream session and clears
// the cookie. A pending two-factor login holds no cookie yet, so the entry is
// cleared whether or not the request carries one. It succeeds whether or not
// a session existed.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.account.HasCredentials() {
		s.machine.Logout(r.Context(), s.account.Username, s.account.Password)
	}

	if err := s.clearPrincipal(w, r); err != nil {
		s.logger.Warn("clearing session cookie failed", "error", err)
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "logged out"})
}

// writeLocked answers a rate-limited attempt with 429 and Retry-After. It
// reports false when err is not a lockout.
func writeLocked(w http.ResponseWriter, err error) bool {
	var locked *ratelimit.LockedError
	if !errors.As(err, &locked) {
		return false
	}
	w.Header().Set("Retry-After", retryAfterSeconds(locked.RetryAfter))
	writeServiceError(w, err, "Too many login attempts. Try again in "+ratelimit.FormatWait(locked.RetryAfter))
	return true
}

// authenticatedEntry returns the authenticated session entry for principal.
// Only the configured account can hold a session.
func (s *Server) authenticatedEntry(principal string) (*session.Entry, error) {
	if principal == "" || !s.account.HasCredentials() || principal != s.account.Username {
		return nil, auth.ErrNotAuthenticated
	}
	return s.machine.Authenticated(principal, s.account.Password)
}

// retryAfterSeconds renders d for the Retry-After header, rounding up.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ─── Session cookie ────────────────────────────────────────────────

// newCookieStore builds the cookie store. Cookies are signed with the
// configured secret and encrypted with a key derived from it.
func newCookieStore(cfg config.SessionConfig) *sessions.CookieStore {
	blockKey := blake2b.Sum256([]byte(blockKeyContext + cfg.Secret))
	store := sessions.NewCookieStore([]byte(cfg.Secret), blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(cfg.MaxAge)
	return store
}

func (s *Server) cookieName() string {
	if s.sessCfg.CookieName == "" {
		return defaultCookieName
	}
	return s.sessCfg.CookieName
}

// principal returns the principal stored in the session cookie, or "" when
// the cookie is absent, expired or fails verification.
func (s *Server) principal(r *http.Request) string {
	sess, err := s.cookies.Get(r, s.cookieName())
	if err != nil {
		return ""
	}
	p, _ := sess.Values[principalKey].(string) //nolint:errcheck // empty when absent
	return p
}

func (s *Server) setPrincipal(w http.ResponseWriter, r *http.Request, principal string) error {
	// A cookie that fails to decode yields a fresh session, which is overwritten.
	sess, _ := s.cookies.Get(r, s.cookieName()) //nolint:errcheck // see above
	sess.Values[principalKey] = principal
	return sess.Save(r, w)
}

func (s *Server) clearPrincipal(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.cookies.Get(r, s.cookieName()) //nolint:errcheck // a fresh session is deleted just the same
	delete(sess.Values, principalKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// ─── WebSocket tickets ─────────────────────────────────────────────

// ticketResponse is the body of POST /api/ws-ticket.
type ticketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// ticketStore remembers redeemed ticket IDs until the tickets expire, so
// each signed ticket opens at most one connection.
type ticketStore struct {
	mu   sync.Mutex
	used map[string]time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{used: make(map[string]time.Time)}
}

// consume marks id as redeemed. It reports false if id was already redeemed.
func (ts *ticketStore) consume(id string, expiresAt time.Time) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.used[id]; ok {
		return false
	}
	ts.used[id] = expiresAt
	return true
}

// cleanExpired forgets redeemed IDs whose tickets have expired.
func (ts *ticketStore) cleanExpired(now time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for id, exp := range ts.used {
		if now.After(exp) {
			delete(ts.used, id)
		}
	}
}

func (ts *ticketStore) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.used)
}

func (s *Server) ticketTTL() time.Duration {
	if s.wsCfg.TicketTTL <= 0 {
		return auth.DefaultTicketTTL
	}
	return time.Duration(s.wsCfg.TicketTTL) * time.Second
}

// handleWSTicket issues a short-lived, single-use ticket for the WebSocket
// stream. Browsers cannot set headers on WebSocket upgrades, so the ticket
// travels as a query parameter.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ttl := s.ticketTTL()
	ticket, err := auth.IssueTicket(principalFromContext(r.Context()), s.sessCfg.Secret, ttl)
	if err != nil {
		s.logger.Error("issuing websocket ticket failed", "error", err)
		writeInternalError(w, "failed to issue ticket")
		return
	}

	writeJSON(w, http.StatusOK, ticketResponse{
		Ticket:    ticket,
		ExpiresIn: int(ttl.Seconds()),
	})
}

// validateTicket verifies and redeems a ticket. It returns the ticket's
// principal, which must still hold an authenticated session.
func (s *Server) validateTicket(ticket string) (string, bool) {
	claims, err := auth.ParseTicket(ticket, s.sessCfg.Secret)
	if err != nil {
		s.logger.Debug("websocket ticket rejected", "error", err)
		return "", false
	}
	if !s.tickets.consume(claims.ID, claims.ExpiresAt.Time) {
		s.logger.Warn("websocket ticket replayed", "principal", claims.Subject)
		return "", false
	}
	if _, err := s.authenticatedEntry(claims.Subject); err != nil {
		return "", false
	}
	return claims.Subject, true
}

// cleanTicketsLoop runs cleanExpired periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.ticketTTL())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tickets.cleanExpired(now)
		}
	}
}
