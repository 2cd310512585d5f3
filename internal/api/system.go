package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/nerrad567/camgate/internal/audit"
)

// healthCheckTimeout bounds each component check on /api/health.
const healthCheckTimeout = 2 * time.Second

// Health statuses.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// healthResponse is the body of GET /api/health.
type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// logsResponse is the body of GET /api/logs.
type logsResponse struct {
	Logs []string `json:"logs"`
}

// handleHealth reports the server and optional component health. A failing
// component degrades the status but still answers 200 so the gateway itself
// is seen as up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  healthOK,
		Version: s.version,
	}

	if len(s.checks) > 0 {
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Components = make(map[string]string, len(names))
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = healthDegraded
				continue
			}
			resp.Components[name] = healthOK
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogs returns the recent activity log lines, oldest first.
func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	lines := s.events.Lines()
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: lines})
}

// handleListAuditLogs returns paginated authentication history.
//
// Query parameters:
//   - action: filter by action (login, verify, logout)
//   - result: filter by outcome
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeJSON(w, http.StatusOK, audit.ListResult{Logs: []audit.AuditLog{}, Limit: audit.DefaultLimit})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Result: q.Get("result"),
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs failed", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	if result.Logs == nil {
		result.Logs = []audit.AuditLog{}
	}
	writeJSON(w, http.StatusOK, result)
}
