package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Sessions      SessionMetrics `json:"sessions"`
	EventLog      EventLogStats  `json:"event_log"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
	RedeemedTickets  int `json:"redeemed_tickets"`
}

// SessionMetrics contains upstream session cache statistics.
type SessionMetrics struct {
	Active int `json:"active"`
}

// EventLogStats contains activity log statistics.
type EventLogStats struct {
	Lines    int `json:"lines"`
	Capacity int `json:"capacity"`
}

// handleMetrics returns a JSON snapshot of process and gateway statistics.
// Prometheus collectors are served separately on /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			RedeemedTickets:  s.tickets.len(),
		},
		EventLog: EventLogStats{
			Lines:    s.events.Len(),
			Capacity: s.events.Capacity(),
		},
	}

	if s.sessions != nil {
		metrics.Sessions.Active = s.sessions.Len()
	}

	writeJSON(w, http.StatusOK, metrics)
}
