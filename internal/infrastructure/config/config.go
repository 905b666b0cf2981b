package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Aura Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Device    DeviceConfig    `yaml:"device"`
	Controls  ControlsConfig  `yaml:"controls"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig contains bridge identity and operational settings.
type BridgeConfig struct {
	// ID identifies this bridge instance in MQTT topics and health messages.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`

	// RestoreTimeout bounds how long a control waits for its retained
	// state message at startup.
	// Default: 1s
	RestoreTimeout time.Duration `yaml:"restore_timeout"`
}

// DeviceConfig describes the speaker endpoint and wire format.
type DeviceConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Name is the display name used as a prefix for control names.
	Name string `yaml:"name"`

	// Zone is the device zone addressed by every request.
	// Default: "Main Zone"
	Zone string `yaml:"zone"`

	// Framing selects how the rendered payload is put on the wire: "http" or "raw".
	// Default: "http"
	Framing string `yaml:"framing"`

	// TemplateFile overrides the embedded request template. Optional.
	TemplateFile string `yaml:"template_file,omitempty"`

	// ConnectTimeout bounds dial and write.
	// Default: 2s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReplyTimeout bounds the optional reply read. Must be shorter than ConnectTimeout.
	// Default: 500ms
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

// ControlsConfig contains settings shared by the number controls.
type ControlsConfig struct {
	// Debounce is the quiet period for slider-style controls.
	// Default: 500ms
	Debounce time.Duration `yaml:"debounce"`

	// InitialVolume and InitialBass seed the controls when the host has
	// nothing to restore.
	InitialVolume int `yaml:"initial_volume"`
	InitialBass   int `yaml:"initial_bass"`
}

// MirrorConfig configures passive volume tracking of an external entity.
type MirrorConfig struct {
	// EntityID is the external entity to mirror (e.g. "media_player.living_room").
	// Empty disables mirroring.
	EntityID string `yaml:"entity_id"`

	// Topic overrides the external state topic. Optional.
	Topic string `yaml:"topic,omitempty"`
}

// Enabled reports whether mirroring is configured.
func (m MirrorConfig) Enabled() bool {
	return m.EntityID != ""
}

// HeartbeatConfig controls the periodic heart-alive command.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AURABRIDGE_SECTION_KEY
// For example: AURABRIDGE_DEVICE_HOST, AURABRIDGE_MQTT_PASSWORD
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
		Bridge: BridgeConfig{
			ID:             "aura-01",
			HealthInterval: 30,
			RestoreTimeout: time.Second,
		},
		Device: DeviceConfig{
			Port:           10025,
			Name:           "HK Aura",
			Zone:           "Main Zone",
			Framing:        "http",
			ConnectTimeout: 2 * time.Second,
			ReplyTimeout:   500 * time.Millisecond,
		},
		Controls: ControlsConfig{
			Debounce:      500 * time.Millisecond,
			InitialVolume: 20,
			InitialBass:   20,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: 60 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "aurabridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AURABRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("AURABRIDGE_DEVICE_HOST"); v != "" {
		cfg.Device.Host = v
	}
	if v := os.Getenv("AURABRIDGE_DEVICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Device.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("AURABRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AURABRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AURABRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("AURABRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if strings.ContainsAny(c.Bridge.ID, "/+#") {
		errs = append(errs, "bridge.id must not contain MQTT topic characters (/ + #)")
	}

	// Device validation
	if c.Device.Host == "" {
		errs = append(errs, "device.host is required (set AURABRIDGE_DEVICE_HOST environment variable)")
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		errs = append(errs, "device.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Device.Framing) {
	case "http", "raw":
	default:
		errs = append(errs, "device.framing must be \"http\" or \"raw\"")
	}
	if c.Device.ConnectTimeout <= 0 {
		errs = append(errs, "device.connect_timeout must be > 0")
	}
	if c.Device.ReplyTimeout <= 0 || c.Device.ReplyTimeout >= c.Device.ConnectTimeout {
		errs = append(errs, "device.reply_timeout must be > 0 and shorter than device.connect_timeout")
	}

	// Controls validation
	if c.Controls.Debounce <= 0 {
		errs = append(errs, "controls.debounce must be > 0")
	}
	if c.Controls.InitialVolume < 0 || c.Controls.InitialVolume > 100 {
		errs = append(errs, "controls.initial_volume must be between 0 and 100")
	}
	if c.Controls.InitialBass < 0 || c.Controls.InitialBass > 100 {
		errs = append(errs, "controls.initial_bass must be between 0 and 100")
	}

	if c.Heartbeat.Enabled && c.Heartbeat.Interval <= 0 {
		errs = append(errs, "heartbeat.interval must be > 0 when heartbeat is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHealthInterval returns the health publishing interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}
