package config

import (
	"os"
	"testing"
	"time"
)

const minimalYAML = `
mqtt:
  broker: tcp://localhost:1883
remote:
  broker: tcp://remote.example:1883
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Device.Name != "Light" {
		t.Errorf("device name default = %q", cfg.Device.Name)
	}
	if cfg.Device.OnValue.Type != "bool" || cfg.Device.OnValue.Value != "true" {
		t.Errorf("on_value default = %+v", cfg.Device.OnValue)
	}
	if cfg.MQTT.CommandTopic != "lightlink/command" {
		t.Errorf("command topic default = %q", cfg.MQTT.CommandTopic)
	}
	if cfg.Ledger.RetentionDays != 30 {
		t.Errorf("ledger retention default = %d", cfg.Ledger.RetentionDays)
	}
	if cfg.ShutdownTimeout.Duration() != 5*time.Second {
		t.Errorf("shutdown timeout default = %v", cfg.ShutdownTimeout.Duration())
	}
}

func TestParse_FullDevice(t *testing.T) {
	cfg, err := Parse([]byte(`
device:
  id: kitchen-light
  name: Kitchen
  room: Kitchen
  brightness_control: true
  color_control: true
  structured_payload: true
  brightness_override: 30
  on_value: {type: str, value: "ON"}
  off_value: {type: str, value: "OFF"}
mqtt:
  broker: tcp://localhost:1883
remote:
  broker: tcp://remote.example:1883
ledger:
  cleanup_interval: 1h
  retention_days: 7
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !cfg.Device.BrightnessControl || !cfg.Device.ColorControl || !cfg.Device.StructuredPayload {
		t.Errorf("capability flags not parsed: %+v", cfg.Device)
	}
	if cfg.Device.BrightnessOverride != 30 {
		t.Errorf("brightness_override = %d", cfg.Device.BrightnessOverride)
	}
	if cfg.Device.OnValue.Value != "ON" {
		t.Errorf("on_value = %+v", cfg.Device.OnValue)
	}
	if cfg.Ledger.CleanupInterval.Duration() != time.Hour {
		t.Errorf("cleanup_interval = %v", cfg.Ledger.CleanupInterval.Duration())
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing_mqtt_broker", "remote:\n  broker: tcp://r:1883\n"},
		{"missing_remote_broker", "mqtt:\n  broker: tcp://l:1883\n"},
		{"bad_qos", "mqtt:\n  broker: tcp://l:1883\n  qos: 3\nremote:\n  broker: tcp://r:1883\n"},
		{"structured_without_brightness", minimalYAML + "device:\n  structured_payload: true\n"},
		{"override_out_of_range", minimalYAML + "device:\n  brightness_control: true\n  brightness_override: 150\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	os.Setenv("LIGHTLINK_TEST_BROKER", "tcp://fromenv:1883")
	defer os.Unsetenv("LIGHTLINK_TEST_BROKER")

	cfg, err := Parse([]byte(`
mqtt:
  broker: ${LIGHTLINK_TEST_BROKER}
remote:
  broker: ${LIGHTLINK_TEST_MISSING:tcp://fallback:1883}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://fromenv:1883" {
		t.Errorf("env var not expanded: %q", cfg.MQTT.Broker)
	}
	if cfg.Remote.Broker != "tcp://fallback:1883" {
		t.Errorf("default not applied: %q", cfg.Remote.Broker)
	}
}
