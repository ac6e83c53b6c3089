package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lightlink/internal/payload"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig   `yaml:"device"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	Remote          RemoteConfig   `yaml:"remote"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig describes the single managed light device. The
// capability flags fix the state shape for the whole instance lifetime.
type DeviceConfig struct {
	ID   string `yaml:"id"`   // Generated when empty
	Name string `yaml:"name"` // Display name shown by the remote service
	Room string `yaml:"room"` // Optional room hint

	BrightnessControl bool `yaml:"brightness_control"`
	ColorControl      bool `yaml:"color_control"`

	// StructuredPayload switches brightness-enabled devices from bare
	// numeric payloads to {on, brightness, color} objects.
	StructuredPayload bool `yaml:"structured_payload"`

	// BrightnessOverride is the brightness restored when a numeric 0
	// powers the device off. 0 = leave brightness unchanged.
	BrightnessOverride int `yaml:"brightness_override"`

	// OnValue/OffValue are the payload literals for simple on/off mode
	// and for outbound messages when brightness control is disabled.
	OnValue  payload.Spec `yaml:"on_value"`
	OffValue payload.Spec `yaml:"off_value"`

	// Passthrough re-emits raw inbound messages on the output topic.
	Passthrough bool `yaml:"passthrough"`
}

// MQTTConfig contains the host-side broker settings: where commands
// arrive and where outbound messages, status and warnings go.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`

	CommandTopic string `yaml:"command_topic"`
	OutputTopic  string `yaml:"output_topic"`
	StatusTopic  string `yaml:"status_topic"`
	WarningTopic string `yaml:"warning_topic"`
}

// RemoteConfig contains the remote-service link settings.
type RemoteConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Token       string `yaml:"token"`        // Service credential, forwarded at registration
	TopicPrefix string `yaml:"topic_prefix"` // Device topics live under <prefix>/<device-id>/
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
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

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse unmarshals configuration bytes, expands environment variables
// and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Device.Name == "" {
		cfg.Device.Name = "Light"
	}
	if cfg.Device.OnValue == (payload.Spec{}) {
		cfg.Device.OnValue = payload.Spec{Type: "bool", Value: "true"}
	}
	if cfg.Device.OffValue == (payload.Spec{}) {
		cfg.Device.OffValue = payload.Spec{Type: "bool", Value: "false"}
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "lightlink"
	}
	if cfg.MQTT.CommandTopic == "" {
		cfg.MQTT.CommandTopic = "lightlink/command"
	}
	if cfg.MQTT.OutputTopic == "" {
		cfg.MQTT.OutputTopic = "lightlink/state"
	}
	if cfg.MQTT.StatusTopic == "" {
		cfg.MQTT.StatusTopic = "lightlink/status"
	}
	if cfg.MQTT.WarningTopic == "" {
		cfg.MQTT.WarningTopic = "lightlink/warning"
	}

	if cfg.Remote.TopicPrefix == "" {
		cfg.Remote.TopicPrefix = "devices"
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lightlink.sqlite"
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Remote.Broker == "" {
		return fmt.Errorf("remote.broker is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Device.BrightnessOverride < 0 || c.Device.BrightnessOverride > 100 {
		return fmt.Errorf("device.brightness_override must be in 0-100, got %d", c.Device.BrightnessOverride)
	}
	if c.Device.StructuredPayload && !c.Device.BrightnessControl {
		return fmt.Errorf("device.structured_payload requires device.brightness_control")
	}
	return nil
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

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
