package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the module manager.
// Values are loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // Seconds
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"` // Seconds
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// RetainUpdates publishes module configuration with the retained flag,
	// so a device that is offline at push time receives it on subscribe.
	RetainUpdates bool `yaml:"retain_updates"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig controls the TLS transport to the broker.
type MQTTTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CACerts  string `yaml:"ca_certs"` // PEM bundle; empty uses the system pool
	Insecure bool   `yaml:"insecure"` // Skip server certificate verification
}

// MQTTReconnectConfig contains reconnection behaviour settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"` // Seconds
	MaxDelay     int `yaml:"max_delay"`     // Seconds
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
}

// WebSocketConfig contains settings for the live module event stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"` // Seconds
	PongTimeout    int `yaml:"pong_timeout"`  // Seconds
}

// InfluxDBConfig contains module liveness telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // Seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"` // json or text
	Output string            `yaml:"output"` // stdout, stderr or file
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotated log file settings. With output "file"
// each log category is written to <dir>/<category>.log.
type FileLoggingConfig struct {
	Dir        string `yaml:"dir"`
	MaxSize    int    `yaml:"max_size"` // Megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // Days
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT          JWTConfig     `yaml:"jwt"`
	Session      SessionConfig `yaml:"session"`
	AllowedGroup string        `yaml:"allowed_group"`
	Users        []UserConfig  `yaml:"users"`
}

// JWTConfig contains session token signing settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// SessionConfig contains web session settings.
type SessionConfig struct {
	TTL           int    `yaml:"ttl"` // Minutes
	CookieName    string `yaml:"cookie_name"`
	CookieSecure  bool   `yaml:"cookie_secure"`
	PurgeInterval int    `yaml:"purge_interval"` // Minutes
}

// UserConfig is a directory entry for the static directory.
type UserConfig struct {
	Username     string   `yaml:"username"`
	DN           string   `yaml:"dn"`
	PasswordHash string   `yaml:"password_hash"` // argon2id, see the hash-password command
	Groups       []string `yaml:"groups"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading process:
//  1. Start with sensible defaults
//  2. Override with values from the YAML file
//  3. Override with environment variables
//  4. Validate the final configuration
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/modules.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "module-manager",
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Dir:        "./logs",
				MaxSize:    50,
				MaxBackups: 1,
				MaxAge:     7,
			},
		},
		Security: SecurityConfig{
			Session: SessionConfig{
				TTL:           480,
				CookieName:    "session",
				PurgeInterval: 15,
			},
		},
	}
}

// envOverrides lists the environment variables the deployment already uses.
// Empty strings and zero ints mean "not set".
type envOverrides struct {
	BrokerHost   string `env:"MQTT_BROKER_URL"`
	BrokerPort   int    `env:"MQTT_BROKER_PORT"`
	Username     string `env:"MQTT_USERNAME"`
	Password     string `env:"MQTT_PASSWORD"`
	KeepAlive    int    `env:"MQTT_KEEP_ALIVE"`
	TLSEnabled   string `env:"MQTT_TLS_ENABLED"`
	TLSInsecure  string `env:"MQTT_TLS_INSECURE"`
	TLSCACerts   string `env:"MQTT_TLS_CA_CERTS"`
	DatabasePath string `env:"DATABASE_PATH"`
	SecretKey    string `env:"SECRET_KEY"`
	LogLevel     string `env:"LOG_LEVEL"`
	InfluxToken  string `env:"INFLUXDB_TOKEN"`
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return err
	}

	if env.BrokerHost != "" {
		cfg.MQTT.Broker.Host = env.BrokerHost
	}
	if env.BrokerPort != 0 {
		cfg.MQTT.Broker.Port = env.BrokerPort
	}
	if env.Username != "" {
		cfg.MQTT.Auth.Username = env.Username
	}
	if env.Password != "" {
		cfg.MQTT.Auth.Password = env.Password
	}
	if env.KeepAlive != 0 {
		cfg.MQTT.KeepAlive = env.KeepAlive
	}
	if env.TLSEnabled != "" {
		cfg.MQTT.TLS.Enabled = isTruthy(env.TLSEnabled)
	}
	if env.TLSInsecure != "" {
		cfg.MQTT.TLS.Insecure = isTruthy(env.TLSInsecure)
	}
	if env.TLSCACerts != "" {
		cfg.MQTT.TLS.CACerts = env.TLSCACerts
	}
	if env.DatabasePath != "" {
		cfg.Database.Path = env.DatabasePath
	}
	if env.SecretKey != "" {
		cfg.Security.JWT.Secret = env.SecretKey
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.InfluxToken != "" {
		cfg.InfluxDB.Token = env.InfluxToken
	}

	return nil
}

// isTruthy accepts the same spellings as the existing deployment scripts.
func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "t":
		return true
	default:
		return false
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set MQTT_BROKER_URL)")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keep_alive must not be negative")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr":
	case "file":
		if c.Logging.File.Dir == "" {
			errs = append(errs, "logging.file.dir is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr, or file")
	}

	// Session tokens are HMAC signed with this secret.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set SECRET_KEY environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}
	if c.Security.Session.TTL <= 0 {
		errs = append(errs, "security.session.ttl must be positive")
	}
	for i, u := range c.Security.Users {
		if u.Username == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Sprintf("security.users[%d] needs username and password_hash", i))
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

// GetSessionTTL returns the web session lifetime as a Duration.
func (c *Config) GetSessionTTL() time.Duration {
	return time.Duration(c.Security.Session.TTL) * time.Minute
}
