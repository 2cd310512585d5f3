// camgate - camera service gateway
//
// This is the main entry point for camgate. It logs in to a Blink-style
// camera service with a single configured account and exposes the cameras
// through a small JSON API under /api:
//   - Login with optional second-factor PIN verification
//   - Camera listing, arm/disarm, snapshots, motion and notification toggles
//   - Motion event feed and a live activity log (HTTP and WebSocket)
//
// Optional sinks mirror camera state to MQTT and InfluxDB, and persist the
// authentication audit trail to SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/camgate/internal/api"
	"github.com/nerrad567/camgate/internal/audit"
	"github.com/nerrad567/camgate/internal/auth"
	"github.com/nerrad567/camgate/internal/eventlog"
	"github.com/nerrad567/camgate/internal/gateway"
	"github.com/nerrad567/camgate/internal/infrastructure/config"
	"github.com/nerrad567/camgate/internal/infrastructure/database"
	"github.com/nerrad567/camgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/camgate/internal/infrastructure/logging"
	"github.com/nerrad567/camgate/internal/infrastructure/metrics"
	"github.com/nerrad567/camgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/camgate/internal/ratelimit"
	"github.com/nerrad567/camgate/internal/session"
	"github.com/nerrad567/camgate/internal/upstream"
	"github.com/nerrad567/camgate/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// auditSource tags audit rows written by this process.
const auditSource = "api"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting camgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	if !cfg.Account.HasCredentials() {
		log.Warn("camera service credentials not configured; logins will fail")
	}

	events := eventlog.New(cfg.EventLog.Capacity)
	events.SetLogger(log)
	events.Subscribe(func(eventlog.Entry) { metrics.IncEventLogLines() })

	checks := make(map[string]api.HealthChecker)

	// Audit database (optional)
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, dbErr := openDatabase(ctx, cfg.Database)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("audit database ready", "path", cfg.Database.Path)
		auditRepo = audit.NewSQLiteRepository(db.DB)
		checks["database"] = db
	} else {
		log.Info("audit database disabled")
	}

	// Upstream sessions and authentication
	timeout := cfg.GetUpstreamTimeout()
	cache := session.NewCache(func() *http.Client {
		return upstream.NewTransport(timeout)
	}, events)
	cache.SetLogger(log)
	defer func() {
		log.Info("closing upstream sessions")
		if closeErr := cache.Close(); closeErr != nil {
			log.Error("error closing sessions", "error", closeErr)
		}
	}()

	limiter := ratelimit.New(ratelimit.Config{
		Window:      cfg.GetRateLimitWindow(),
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Lockout:     cfg.GetRateLimitLockout(),
	})

	factory := upstream.NewFactory(upstream.Config{
		BaseURL:    cfg.Upstream.BaseURL,
		ClientName: cfg.Upstream.ClientName,
	})

	machine := auth.NewMachine(cache, factory, limiter, events)
	machine.SetLogger(log)
	if auditRepo != nil {
		recorder := audit.NewRecorder(auditRepo, auditSource)
		recorder.SetLogger(log)
		machine.SetRecorder(recorder)
	}

	service := gateway.NewService(cache, events, cfg.Upstream.VideoPages)
	service.SetLogger(log)

	// MQTT (optional)
	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient

		bridge := mqtt.NewBridge(mqttClient, byte(cfg.MQTT.QoS)) // #nosec G115 -- QoS validated to 0-2
		service.AddPublisher(bridge)
		if cfg.MQTT.Commands {
			if err := bridge.EnableCommands(accountArmFunc(cfg.Account, machine, service)); err != nil {
				return fmt.Errorf("enabling MQTT commands: %w", err)
			}
			log.Info("MQTT camera commands enabled")
		}
	}

	// InfluxDB (optional)
	influxClient, err := connectInfluxDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient
		service.SetTelemetry(influxClient)
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Session:  cfg.Session,
		WS:       cfg.WebSocket,
		Account:  cfg.Account,
		Logger:   log,
		Machine:  machine,
		Gateway:  service,
		Events:   events,
		Sessions: cache,
		Audit:    auditRepo,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	service.AddPublisher(server.Hub())

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT, sessions, database.

	log.Info("camgate stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CAMGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CAMGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the audit database and applies migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// connectMQTT connects to the broker. It returns a nil client when MQTT is
// disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if errors.Is(err, mqtt.ErrDisabled) {
		log.Info("MQTT disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}

	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// connectInfluxDB connects to InfluxDB. It returns a nil client when
// InfluxDB is disabled.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// accountArmFunc arms cameras on behalf of MQTT commands using the
// configured account's authenticated session. Commands fail while no one
// has logged in.
func accountArmFunc(account config.AccountConfig, machine *auth.Machine, service *gateway.Service) mqtt.ArmFunc {
	return func(ctx context.Context, camera string, armed bool) error {
		if !account.HasCredentials() {
			return api.ErrConfigurationMissing
		}
		entry, err := machine.Authenticated(account.Username, account.Password)
		if err != nil {
			return err
		}
		return service.Arm(ctx, entry, camera, armed)
	}
}
