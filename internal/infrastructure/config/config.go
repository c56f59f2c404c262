package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for AV Ops Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Devices   DevicesConfig   `yaml:"devices"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains venue-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
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
	MaxAttempts  int `yaml:"max_attempts"`
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

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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

// DevicesConfig contains the device control settings: the matrix switcher,
// the audio processor, and the behaviour knobs for command sequencing.
type DevicesConfig struct {
	Matrix     MatrixConfig     `yaml:"matrix"`
	Audio      AudioConfig      `yaml:"audio"`
	SwitchTest SwitchTestConfig `yaml:"switch_test"`
	KeepAwake  KeepAwakeConfig  `yaml:"keep_awake"`
}

// MatrixConfig contains video matrix switcher settings.
type MatrixConfig struct {
	Enabled bool `yaml:"enabled"`

	// IPAddress is the switcher's address on the control network.
	IPAddress string `yaml:"ip_address"`

	// TCPPort is the control port for stream transport. Default: 23.
	TCPPort int `yaml:"tcp_port"`

	// UDPPort is the control port for datagram transport. Default: 4000.
	UDPPort int `yaml:"udp_port"`

	// Protocol selects the transport: "tcp" or "udp". Default: "tcp".
	Protocol string `yaml:"protocol"`

	// Inputs and Outputs are the active 1-based channel lists.
	// Sweep order follows declaration order.
	Inputs  []int `yaml:"inputs"`
	Outputs []int `yaml:"outputs"`

	// CommandTimeout is the per-command response timeout. Default: 10s.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// EchoSlack is how many bytes beyond the echoed command a response must
	// grow before it counts as an implicit acknowledgement. Default: 2.
	EchoSlack int `yaml:"echo_slack"`

	// ImplicitSuccess enables the echo-length heuristic for firmware that
	// acknowledges without an OK token. Default: true for this family.
	ImplicitSuccess bool `yaml:"implicit_success"`
}

// AudioConfig contains AtlasIED zone processor settings.
type AudioConfig struct {
	Enabled bool `yaml:"enabled"`

	// IPAddress is the processor's address on the control network.
	IPAddress string `yaml:"ip_address"`

	// TCPPort is the third-party control port. Default: 5321.
	TCPPort int `yaml:"tcp_port"`

	// Protocol selects the transport: "tcp" or "udp". Default: "tcp".
	Protocol string `yaml:"protocol"`

	// Model identifies the processor family: "AZM4", "AZM8" or "Atmosphere".
	// Determines the zone count when zones are seeded from scratch.
	Model string `yaml:"model"`

	// CommandTimeout is the per-command response timeout. Default: 10s.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// SwitchTestConfig contains full-sweep verification settings.
type SwitchTestConfig struct {
	// Pacing is the fixed delay between consecutive switch commands.
	// The hardware drops back-to-back commands, so this is never zero.
	// Default: 100ms.
	Pacing time.Duration `yaml:"pacing"`
}

// KeepAwakeConfig contains the periodic state re-assertion loop settings.
type KeepAwakeConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between re-assertion rounds. Default: 5m.
	Interval time.Duration `yaml:"interval"`

	// Routes lists input→output assignments to re-assert each round,
	// formatted "input:output" (1-based channels).
	Routes []string `yaml:"routes"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT      JWTConfig      `yaml:"jwt"`
	Operator OperatorConfig `yaml:"operator"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// OperatorConfig contains the single operator credential for the console API.
type OperatorConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AVOPS_SECTION_KEY
// For example: AVOPS_DATABASE_PATH, AVOPS_MATRIX_IP
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

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "venue-001",
			Name:     "AV Ops",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/avops.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "avops-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
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
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Devices: DevicesConfig{
			Matrix: MatrixConfig{
				TCPPort:         23,
				UDPPort:         4000,
				Protocol:        "tcp",
				CommandTimeout:  10 * time.Second,
				EchoSlack:       2,
				ImplicitSuccess: true,
			},
			Audio: AudioConfig{
				TCPPort:        5321,
				Protocol:       "tcp",
				Model:          "AZM8",
				CommandTimeout: 10 * time.Second,
			},
			SwitchTest: SwitchTestConfig{
				Pacing: 100 * time.Millisecond,
			},
			KeepAwake: KeepAwakeConfig{
				Interval: 5 * time.Minute,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			Operator: OperatorConfig{
				Username: "operator",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AVOPS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AVOPS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("AVOPS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AVOPS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AVOPS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("AVOPS_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("AVOPS_MATRIX_IP"); v != "" {
		cfg.Devices.Matrix.IPAddress = v
	}
	if v := os.Getenv("AVOPS_AUDIO_IP"); v != "" {
		cfg.Devices.Audio.IPAddress = v
	}

	if v := os.Getenv("AVOPS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("AVOPS_OPERATOR_PASSWORD"); v != "" {
		cfg.Security.Operator.Password = v
	}

	// Always override the JWT secret in production.
	if v := os.Getenv("AVOPS_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Devices.Matrix.Enabled {
		if c.Devices.Matrix.IPAddress == "" {
			errs = append(errs, "devices.matrix.ip_address is required when the matrix is enabled")
		}
		if p := c.Devices.Matrix.Protocol; p != "tcp" && p != "udp" {
			errs = append(errs, "devices.matrix.protocol must be tcp or udp")
		}
	}

	if c.Devices.Audio.Enabled {
		if c.Devices.Audio.IPAddress == "" {
			errs = append(errs, "devices.audio.ip_address is required when the audio processor is enabled")
		}
		switch c.Devices.Audio.Model {
		case "AZM4", "AZM8", "Atmosphere":
		default:
			errs = append(errs, "devices.audio.model must be AZM4, AZM8, or Atmosphere")
		}
	}

	if c.Devices.SwitchTest.Pacing <= 0 {
		errs = append(errs, "devices.switch_test.pacing must be positive")
	}

	// The console API controls physical hardware; an empty or weak secret
	// would let anyone on the network forge a token and drive the venue.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set AVOPS_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ZoneCount returns the number of audio zones for the configured model.
func (a AudioConfig) ZoneCount() int {
	switch a.Model {
	case "AZM4":
		return 4
	case "Atmosphere":
		return 12
	default: // AZM8
		return 8
	}
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
