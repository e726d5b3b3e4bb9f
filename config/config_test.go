// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/sensor"
)

// clearEnv blanks every variable Load consults so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"BATTERY_LOG_PATH", "BATTERY_LOG_INTERVAL", "BATTERY_SENSOR", "BATTERY_API_LISTEN",
		"LOG_LEVEL", "LOG_FORMAT",
		"INFLUXDB_URL", "INFLUXDB_TOKEN", "INFLUXDB_ORG", "INFLUXDB_BUCKET",
		"MQTT_BROKER", "SLACK_WEBHOOK_URL",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Sampler.IntervalSeconds != 300 {
		t.Errorf("IntervalSeconds = %d, want 300", cfg.Sampler.IntervalSeconds)
	}
	if cfg.Interval() != 5*time.Minute {
		t.Errorf("Interval() = %v, want 5m", cfg.Interval())
	}
	if !cfg.Sampler.AutoStart {
		t.Error("AutoStart should default to true")
	}
	if cfg.Log.Path != DefaultLogPath {
		t.Errorf("Log.Path = %q, want %q", cfg.Log.Path, DefaultLogPath)
	}
	if !cfg.Server.Enabled || cfg.Server.Listen != DefaultListen {
		t.Errorf("Server = %+v, want enabled on %s", cfg.Server, DefaultListen)
	}
	if cfg.Alerts.LowBatteryPercent != 15 {
		t.Errorf("LowBatteryPercent = %d, want 15", cfg.Alerts.LowBatteryPercent)
	}
	if cfg.Sampler.Sensor != sensor.DefaultKind() {
		t.Errorf("Sensor = %q, want %q", cfg.Sampler.Sensor, sensor.DefaultKind())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		field   string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "influxdb enabled and complete",
			mutate: func(c *Config) {
				c.InfluxDB = InfluxDBConfig{
					Enabled:      true,
					URL:          "http://localhost:8086",
					Token:        "test-token",
					Organization: "test-org",
					Bucket:       "battery",
				}
			},
		},
		{
			name: "influxdb disabled still checks url format",
			mutate: func(c *Config) {
				c.InfluxDB = InfluxDBConfig{URL: "not a url"}
			},
			wantErr: true,
			field:   "influxdb.url",
		},
		{
			name: "influxdb enabled without token",
			mutate: func(c *Config) {
				c.InfluxDB = InfluxDBConfig{Enabled: true, URL: "http://localhost:8086", Organization: "o", Bucket: "b"}
			},
			wantErr: true,
			field:   "influxdb.token",
		},
		{
			name: "influxdb short token",
			mutate: func(c *Config) {
				c.InfluxDB = InfluxDBConfig{Enabled: true, URL: "http://localhost:8086", Token: "short", Organization: "o", Bucket: "b"}
			},
			wantErr: true,
			field:   "influxdb.token",
		},
		{
			name: "influxdb plain http to remote host",
			mutate: func(c *Config) {
				c.InfluxDB = InfluxDBConfig{Enabled: true, URL: "http://influx.example.com:8086", Token: "test-token", Organization: "o", Bucket: "b"}
			},
			wantErr: true,
			field:   "influxdb.url",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Sampler.IntervalSeconds = 0 },
			wantErr: true,
			field:   "sampler.interval_seconds",
		},
		{
			name:    "negative interval",
			mutate:  func(c *Config) { c.Sampler.IntervalSeconds = -5 },
			wantErr: true,
			field:   "sampler.interval_seconds",
		},
		{
			name:    "unknown sensor",
			mutate:  func(c *Config) { c.Sampler.Sensor = "acpi" },
			wantErr: true,
			field:   "sampler.sensor",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
			field:   "logging.level",
		},
		{
			name:    "threshold above 100",
			mutate:  func(c *Config) { c.Alerts.LowBatteryPercent = 101 },
			wantErr: true,
			field:   "alerts.low_battery_percent",
		},
		{
			name:    "mqtt enabled without broker",
			mutate:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" },
			wantErr: true,
			field:   "mqtt.broker",
		},
		{
			name:    "mqtt qos out of range",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
			field:   "mqtt.qos",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *Config) { c.Server.Listen = "no-port" },
			wantErr: true,
			field:   "server.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if !errors.IsConfigError(err) {
				t.Fatalf("Validate() error = %T, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() error %q does not name field %q", err, tt.field)
			}
		})
	}
}

func TestValidate_DoesNotLeakSecrets(t *testing.T) {
	cfg := Default()
	cfg.Alerts.SlackWebhookURL = "not-a-url-secret"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks webhook value: %v", err)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Sampler.IntervalSeconds != DefaultIntervalSeconds {
		t.Errorf("IntervalSeconds = %d", cfg.Sampler.IntervalSeconds)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "config.yaml", `
sampler:
  interval_seconds: 60
  sensor: sysfs
  auto_start: false
log:
  path: /tmp/battery.csv
logging:
  level: debug
alerts:
  low_battery_percent: 20
server:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sampler.IntervalSeconds != 60 || cfg.Sampler.Sensor != "sysfs" || cfg.Sampler.AutoStart {
		t.Errorf("Sampler = %+v", cfg.Sampler)
	}
	if cfg.Log.Path != "/tmp/battery.csv" {
		t.Errorf("Log.Path = %q", cfg.Log.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Alerts.LowBatteryPercent != 20 {
		t.Errorf("LowBatteryPercent = %d", cfg.Alerts.LowBatteryPercent)
	}
	if cfg.Server.Enabled {
		t.Error("Server.Enabled should be false")
	}
	// Unset values still get defaults
	if cfg.Server.Listen != DefaultListen {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "config.toml", `
[sampler]
interval_seconds = 120
sensor = "upower"

[log]
path = "/var/log/battery.csv"

[mqtt]
enabled = true
broker = "tcp://localhost:1883"
qos = 1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sampler.IntervalSeconds != 120 || cfg.Sampler.Sensor != "upower" {
		t.Errorf("Sampler = %+v", cfg.Sampler)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://localhost:1883" || cfg.MQTT.QoS != 1 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.MQTT.TopicPrefix != "battery" {
		t.Errorf("TopicPrefix = %q, want default", cfg.MQTT.TopicPrefix)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "bad.yaml", "sampler: [unclosed")
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeConfig(t, "bad.yaml", "sampler:\n  interval_seconds: -1\n")
		_, err := Load(path)
		if !errors.IsConfigError(err) {
			t.Errorf("Load() error = %v, want ConfigError", err)
		}
	})
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATTERY_LOG_PATH", "/tmp/env.csv")
	t.Setenv("BATTERY_LOG_INTERVAL", "10m")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("INFLUXDB_URL", "https://influx.example.com")
	t.Setenv("INFLUXDB_TOKEN", "env-token-123")
	t.Setenv("INFLUXDB_ORG", "env-org")
	t.Setenv("INFLUXDB_BUCKET", "env-bucket")

	path := writeConfig(t, "config.yaml", "sampler:\n  interval_seconds: 60\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Path != "/tmp/env.csv" {
		t.Errorf("Log.Path = %q", cfg.Log.Path)
	}
	if cfg.Sampler.IntervalSeconds != 600 {
		t.Errorf("IntervalSeconds = %d, want 600", cfg.Sampler.IntervalSeconds)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if !cfg.InfluxDB.Enabled || cfg.InfluxDB.Bucket != "env-bucket" {
		t.Errorf("InfluxDB = %+v", cfg.Redacted().InfluxDB)
	}
}

func TestLoad_BadIntervalEnvIsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATTERY_LOG_INTERVAL", "soon")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sampler.IntervalSeconds != DefaultIntervalSeconds {
		t.Errorf("IntervalSeconds = %d, want default", cfg.Sampler.IntervalSeconds)
	}
}

func TestParseIntervalSeconds(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"300", 300, false},
		{"5m", 300, false},
		{"1h30m", 5400, false},
		{"1500ms", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseIntervalSeconds(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseIntervalSeconds(%q) = %d, %v; want %d, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.InfluxDB.Token = "secret-token"
	cfg.MQTT.Password = "hunter2"

	r := cfg.Redacted()
	if r.InfluxDB.Token != "***" || r.MQTT.Password != "***" {
		t.Errorf("Redacted() = %+v", r)
	}
	if r.Alerts.SlackWebhookURL != "" {
		t.Errorf("empty webhook should stay empty, got %q", r.Alerts.SlackWebhookURL)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Error("Redacted() must not modify the original")
	}
}

func TestLogPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := Default()
	if got := cfg.LogPath(); got != filepath.Join(home, "battery_log.csv") {
		t.Errorf("LogPath() = %q", got)
	}
}
