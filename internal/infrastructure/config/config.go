package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the camera gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account   AccountConfig   `yaml:"account"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	API       APIConfig       `yaml:"api"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	EventLog  EventLogConfig  `yaml:"event_log"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AccountConfig holds the single camera-service account the gateway logs in with.
// Credentials are normally supplied through BLINK_USERNAME / BLINK_PASSWORD.
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HasCredentials reports whether both username and password are set.
func (a AccountConfig) HasCredentials() bool {
	return a.Username != "" && a.Password != ""
}

// UpstreamConfig contains camera service endpoint settings.
type UpstreamConfig struct {
	BaseURL    string `yaml:"base_url"`
	ClientName string `yaml:"client_name"`
	Timeout    int    `yaml:"timeout"`
	VideoPages int    `yaml:"video_pages"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// SessionConfig contains browser session cookie settings.
type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	Secret     string `yaml:"secret"`
	MaxAge     int    `yaml:"max_age"`
	Secure     bool   `yaml:"secure"`
}

// RateLimitConfig contains login rate limiting settings. Durations are in seconds.
type RateLimitConfig struct {
	Window      int `yaml:"window"`
	MaxAttempts int `yaml:"max_attempts"`
	Lockout     int `yaml:"lockout"`
}

// EventLogConfig contains activity log settings.
type EventLogConfig struct {
	Capacity int `yaml:"capacity"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	TicketTTL      int    `yaml:"ticket_ttl"`
}

// DatabaseConfig contains SQLite settings for the auth audit trail.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	// Commands enables arm/disarm over the command topic.
	Commands bool `yaml:"commands"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for camera telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultEnvFile is the dotenv file read before environment overrides.
const DefaultEnvFile = ".env"

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file (fills environment variables that are not already set)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: CAMGATE_SECTION_KEY, plus
// BLINK_USERNAME and BLINK_PASSWORD for the account credentials.
//
// Missing account credentials are not a load error; the gateway reports them
// when a login is attempted.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If a file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	envFile := os.Getenv("CAMGATE_ENV_FILE")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile loads KEY=value pairs into the process environment without
// overriding variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:    "https://rest-prod.immedia-semi.com",
			ClientName: "camgate",
			Timeout:    30,
			VideoPages: 3,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			},
		},
		Session: SessionConfig{
			CookieName: "camgate_session",
			MaxAge:     86400,
		},
		RateLimit: RateLimitConfig{
			Window:      300,
			MaxAttempts: 10,
			Lockout:     300,
		},
		EventLog: EventLogConfig{
			Capacity: 50,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			TicketTTL:      60,
		},
		Database: DatabaseConfig{
			Path:        "./data/camgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "camgate",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Account - the upstream service's own variable names are honoured first.
	if v := os.Getenv("BLINK_USERNAME"); v != "" {
		cfg.Account.Username = v
	}
	if v := os.Getenv("BLINK_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}
	if v := os.Getenv("CAMGATE_ACCOUNT_USERNAME"); v != "" {
		cfg.Account.Username = v
	}
	if v := os.Getenv("CAMGATE_ACCOUNT_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}

	// Upstream
	if v := os.Getenv("CAMGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}

	// API
	if v := os.Getenv("CAMGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CAMGATE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Session secret (IMPORTANT: always set in production)
	if v := os.Getenv("CAMGATE_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}

	// Database
	if v := os.Getenv("CAMGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CAMGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CAMGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CAMGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("CAMGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("CAMGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// minSessionSecretLength is the minimum accepted cookie signing secret length.
const minSessionSecretLength = 32

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Upstream
	if c.Upstream.BaseURL == "" {
		errs = append(errs, "upstream.base_url is required")
	}
	if c.Upstream.Timeout < 1 {
		errs = append(errs, "upstream.timeout must be at least 1 second")
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}

	// Session cookie secret is REQUIRED: a forged cookie would hand out the
	// operator's camera session.
	if c.Session.Secret == "" {
		errs = append(errs, "session.secret is required (set CAMGATE_SESSION_SECRET environment variable)")
	} else if len(c.Session.Secret) < minSessionSecretLength {
		errs = append(errs, "session.secret must be at least 32 characters for adequate security")
	}
	if c.Session.CookieName == "" {
		errs = append(errs, "session.cookie_name is required")
	}

	// Rate limiting
	if c.RateLimit.Window < 1 {
		errs = append(errs, "rate_limit.window must be at least 1 second")
	}
	if c.RateLimit.MaxAttempts < 1 {
		errs = append(errs, "rate_limit.max_attempts must be at least 1")
	}
	if c.RateLimit.Lockout < 1 {
		errs = append(errs, "rate_limit.lockout must be at least 1 second")
	}

	// Event log
	if c.EventLog.Capacity < 1 {
		errs = append(errs, "event_log.capacity must be at least 1")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetUpstreamTimeout returns the per-request upstream timeout.
func (c *Config) GetUpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.Timeout) * time.Second
}

// GetRateLimitWindow returns the login attempt window.
func (c *Config) GetRateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.Window) * time.Second
}

// GetRateLimitLockout returns the login lockout duration.
func (c *Config) GetRateLimitLockout() time.Duration {
	return time.Duration(c.RateLimit.Lockout) * time.Second
}

// GetTicketTTL returns how long WebSocket tickets stay valid.
func (c *Config) GetTicketTTL() time.Duration {
	return time.Duration(c.WebSocket.TicketTTL) * time.Second
}
