package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"github.com/nerrad567/camgate/internal/audit"
	"github.com/nerrad567/camgate/internal/auth"
	"github.com/nerrad567/camgate/internal/eventlog"
	"github.com/nerrad567/camgate/internal/gateway"
	"github.com/nerrad567/camgate/internal/infrastructure/config"
	"github.com/nerrad567/camgate/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by optional components reported on /api/health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SessionCounter reports how many upstream sessions are cached.
type SessionCounter interface {
	Len() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Session config.SessionConfig
	WS      config.WebSocketConfig
	Account config.AccountConfig
	Logger  *logging.Logger
	Machine *auth.Machine
	Gateway *gateway.Service
	Events  *eventlog.Log

	// Optional.
	Sessions SessionCounter
	Audit    audit.Repository
	Checks   map[string]HealthChecker
	Version  string
}

// Server is the HTTP gateway.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	sessCfg   config.SessionConfig
	account   config.AccountConfig
	logger    *logging.Logger
	machine   *auth.Machine
	gateway   *gateway.Service
	events    *eventlog.Log
	sessions  SessionCounter
	auditRepo audit.Repository
	checks    map[string]HealthChecker
	version   string

	cookies   *sessions.CookieStore
	tickets   *ticketStore
	hub       *Hub
	server    *http.Server
	startTime time.Time
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The hub is created immediately and subscribed to the event log, so callers
// can also wire it as a camera state sink before Start.
//
// Parameters:
//   - deps: Required dependencies (logger, machine, gateway, event log)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Machine == nil {
		return nil, fmt.Errorf("auth machine is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway service is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event log is required")
	}
	if deps.Session.Secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		sessCfg:   deps.Session,
		account:   deps.Account,
		logger:    deps.Logger,
		machine:   deps.Machine,
		gateway:   deps.Gateway,
		events:    deps.Events,
		sessions:  deps.Sessions,
		auditRepo: deps.Audit,
		checks:    deps.Checks,
		version:   deps.Version,
		cookies:   newCookieStore(deps.Session),
		tickets:   newTicketStore(),
		startTime: time.Now(),
	}
	s.hub = NewHub(deps.WS, deps.Logger)
	s.events.Subscribe(s.hub.BroadcastLog)

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, then launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub and background goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
