package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Thing           ThingConfig     `yaml:"thing"`
	MQTT            MQTTConfig      `yaml:"mqtt"`
	GPIO            GPIOConfig      `yaml:"gpio"`
	Shadow          ShadowConfig    `yaml:"shadow"`
	Heartbeat       HeartbeatConfig `yaml:"heartbeat"`
	HTTP            HTTPConfig      `yaml:"http"`
	Database        DatabaseConfig  `yaml:"database"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	Log             LogConfig       `yaml:"log"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// ThingConfig identifies this device to the shadow service
type ThingConfig struct {
	ID string `yaml:"id"`
}

// MQTTConfig contains broker connection settings
type MQTTConfig struct {
	Endpoint string `yaml:"endpoint"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"` // defaults to "<thing id>-shadow"

	// mTLS material; all empty means plain TCP (development only)
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	KeepAlive      Duration `yaml:"keep_alive"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	AckTimeout     Duration `yaml:"ack_timeout"` // deadline for subscribe/publish acknowledgments
}

// UseTLS reports whether certificate material is configured.
func (c *MQTTConfig) UseTLS() bool {
	return c.CAFile != "" || c.CertFile != "" || c.KeyFile != ""
}

// BrokerURL builds the broker connection URL from endpoint, port and scheme.
func (c *MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.UseTLS() {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Endpoint, c.Port)
}

// GPIOConfig contains output line settings
type GPIOConfig struct {
	Driver    string         `yaml:"driver"` // "gpiod" or "memory"
	Chip      string         `yaml:"chip"`
	ActiveLow *bool          `yaml:"active_low"` // relay boards are active-low unless told otherwise
	Pins      map[string]int `yaml:"pins"`
}

// IsActiveLow returns the active-low flag with its default.
func (c *GPIOConfig) IsActiveLow() bool {
	if c.ActiveLow == nil {
		return true
	}
	return *c.ActiveLow
}

// ShadowConfig contains reconciliation engine settings
type ShadowConfig struct {
	PublishRateRPS float64 `yaml:"publish_rate_rps"` // reported-state publish rate limit
}

// HeartbeatConfig contains heartbeat telemetry settings
type HeartbeatConfig struct {
	Enabled  *bool    `yaml:"enabled"`
	Topic    string   `yaml:"topic"`
	Interval Duration `yaml:"interval"`
}

// IsEnabled returns the enabled flag with its default (on).
func (c *HeartbeatConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// HTTPConfig contains control API server settings
type HTTPConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// IsEnabled returns the enabled flag with its default (on).
func (c *HTTPConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains reconciliation ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// IsEnabled returns the enabled flag with its default (on).
func (c *LedgerConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if cfg.Thing.ID == "" {
		return nil, fmt.Errorf("thing.id is required")
	}
	if cfg.MQTT.Endpoint == "" {
		return nil, fmt.Errorf("mqtt.endpoint is required")
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./shadowd.sqlite"
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = cfg.Thing.ID + "-shadow"
	}
	if cfg.MQTT.Port == 0 {
		if cfg.MQTT.UseTLS() {
			cfg.MQTT.Port = 8883
		} else {
			cfg.MQTT.Port = 1883
		}
	}
	if cfg.MQTT.KeepAlive == 0 {
		cfg.MQTT.KeepAlive = Duration(30 * time.Second)
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(30 * time.Second)
	}
	if cfg.MQTT.AckTimeout == 0 {
		cfg.MQTT.AckTimeout = Duration(10 * time.Second)
	}

	// GPIO defaults
	if cfg.GPIO.Driver == "" {
		cfg.GPIO.Driver = "gpiod"
	}
	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = "gpiochip0"
	}
	if len(cfg.GPIO.Pins) == 0 {
		cfg.GPIO.Pins = map[string]int{
			"blower":      17,
			"vibrofeeder": 27,
		}
	}

	// Shadow defaults
	if cfg.Shadow.PublishRateRPS == 0 {
		cfg.Shadow.PublishRateRPS = 5.0
	}

	// Heartbeat defaults
	if cfg.Heartbeat.Topic == "" {
		cfg.Heartbeat.Topic = "devices/heartbeat"
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = Duration(60 * time.Second)
	}

	// HTTP defaults
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 5000
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
