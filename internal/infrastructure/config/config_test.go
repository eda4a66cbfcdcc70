package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/modules.db"
mqtt:
  broker:
    host: "broker.local"
    port: 8883
  tls:
    enabled: true
    ca_certs: "/etc/ssl/broker-ca.pem"
  retain_updates: true
security:
  jwt:
    secret: "`+testSecret+`"
  allowed_group: "CN=Docenti,OU=Groups,DC=school,DC=local"
  users:
    - username: "mrossi"
      dn: "CN=Mario Rossi,OU=Staff,DC=school,DC=local"
      password_hash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"
      groups: ["CN=Docenti,OU=Groups,DC=school,DC=local"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/modules.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/modules.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker = %+v, want broker.local:8883", cfg.MQTT.Broker)
	}
	if !cfg.MQTT.TLS.Enabled || cfg.MQTT.TLS.CACerts != "/etc/ssl/broker-ca.pem" {
		t.Errorf("MQTT.TLS = %+v", cfg.MQTT.TLS)
	}
	if !cfg.MQTT.RetainUpdates {
		t.Error("MQTT.RetainUpdates = false, want true")
	}
	if len(cfg.Security.Users) != 1 || cfg.Security.Users[0].Username != "mrossi" {
		t.Errorf("Security.Users = %+v", cfg.Security.Users)
	}
	// Defaults survive for keys the file does not set.
	if cfg.MQTT.KeepAlive != 60 {
		t.Errorf("MQTT.KeepAlive = %d, want 60", cfg.MQTT.KeepAlive)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/modules.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected validation error for missing jwt secret, got nil")
	}
}

func TestLoad_InvalidEnvPort(t *testing.T) {
	path := writeConfig(t, "security:\n  jwt:\n    secret: \""+testSecret+"\"\n")
	t.Setenv("MQTT_BROKER_PORT", "not-a-port")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for non-numeric MQTT_BROKER_PORT, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = testSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid api port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name:    "unknown log output",
			mutate:  func(c *Config) { c.Logging.Output = "syslog" },
			wantErr: true,
		},
		{
			name: "file log output without dir",
			mutate: func(c *Config) {
				c.Logging.Output = "file"
				c.Logging.File.Dir = ""
			},
			wantErr: true,
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
		{
			name:    "zero session ttl",
			mutate:  func(c *Config) { c.Security.Session.TTL = 0 },
			wantErr: true,
		},
		{
			name: "user without password hash",
			mutate: func(c *Config) {
				c.Security.Users = []UserConfig{{Username: "mrossi"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Security: SecurityConfig{Session: SessionConfig{TTL: 90}},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetSessionTTL().Minutes(); got != 90 {
		t.Errorf("GetSessionTTL() = %v, want 90", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MQTT_BROKER_URL", "mqtt.example.com")
	t.Setenv("MQTT_BROKER_PORT", "8883")
	t.Setenv("MQTT_USERNAME", "testuser")
	t.Setenv("MQTT_PASSWORD", "testpass")
	t.Setenv("MQTT_KEEP_ALIVE", "30")
	t.Setenv("MQTT_TLS_ENABLED", "True")
	t.Setenv("MQTT_TLS_INSECURE", "0")
	t.Setenv("MQTT_TLS_CA_CERTS", "/certs/ca.pem")
	t.Setenv("DATABASE_PATH", "/custom/path.db")
	t.Setenv("SECRET_KEY", "jwt-secret")
	t.Setenv("INFLUXDB_TOKEN", "secret-token")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.MQTT.KeepAlive != 30 {
		t.Errorf("MQTT.KeepAlive = %d, want 30", cfg.MQTT.KeepAlive)
	}
	if !cfg.MQTT.TLS.Enabled {
		t.Error("MQTT.TLS.Enabled = false, want true")
	}
	if cfg.MQTT.TLS.Insecure {
		t.Error("MQTT.TLS.Insecure = true, want false")
	}
	if cfg.MQTT.TLS.CACerts != "/certs/ca.pem" {
		t.Errorf("MQTT.TLS.CACerts = %q", cfg.MQTT.TLS.CACerts)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"true", "True", "1", "t", " T "} {
		if !isTruthy(v) {
			t.Errorf("isTruthy(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"false", "0", "yes", "on", ""} {
		if isTruthy(v) {
			t.Errorf("isTruthy(%q) = true, want false", v)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("defaultConfig MQTT.QoS = %d, want 1", cfg.MQTT.QoS)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Security.Session.CookieName != "session" {
		t.Errorf("defaultConfig Session.CookieName = %q, want session", cfg.Security.Session.CookieName)
	}
}
