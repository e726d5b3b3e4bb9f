// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the battery data logger.
//
// Configuration is read from a YAML or TOML file (chosen by extension), then
// environment variables override individual settings, defaults fill any gaps
// and the result is validated. An empty path yields the defaults plus
// environment overrides, so the logger runs without a config file.
package config

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/util"
	"github.com/soothill/battery-data-logger/sensor"
)

const (
	// DefaultIntervalSeconds is the sampling interval when none is configured
	DefaultIntervalSeconds = 300

	// DefaultLogPath is where the CSV log is kept when none is configured
	DefaultLogPath = "~/battery_log.csv"

	// DefaultListen is the API listen address
	DefaultListen = "localhost:9090"

	maxIntervalSeconds = 24 * 60 * 60
)

// Config represents the application configuration
type Config struct {
	Sampler   SamplerConfig   `yaml:"sampler" toml:"sampler"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Alerts    AlertsConfig    `yaml:"alerts" toml:"alerts"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb" toml:"influxdb"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt"`
	Advertise AdvertiseConfig `yaml:"advertise" toml:"advertise"`
}

// SamplerConfig holds background sampling settings
type SamplerConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds" toml:"interval_seconds" validate:"gte=1,lte=86400"`
	Sensor          string `yaml:"sensor" toml:"sensor" validate:"omitempty,oneof=battery sysfs upower"`
	SysfsRoot       string `yaml:"sysfs_root" toml:"sysfs_root"`
	AutoStart       bool   `yaml:"auto_start" toml:"auto_start"`
}

// LogConfig holds the CSV log location
type LogConfig struct {
	Path string `yaml:"path" toml:"path" validate:"required"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn warning error fatal panic"`
	Format string `yaml:"format" toml:"format" validate:"oneof=console json"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Enabled   bool    `yaml:"enabled" toml:"enabled"`
	Listen    string  `yaml:"listen" toml:"listen" validate:"required_if=Enabled true,omitempty,hostname_port"`
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" toml:"burst" validate:"gte=0"`
}

// AlertsConfig holds Slack alert settings
type AlertsConfig struct {
	LowBatteryPercent int    `yaml:"low_battery_percent" toml:"low_battery_percent" validate:"gte=0,lte=100"`
	SlackWebhookURL   string `yaml:"slack_webhook_url" toml:"slack_webhook_url" validate:"omitempty,url"`
}

// InfluxDBConfig holds InfluxDB mirror settings
type InfluxDBConfig struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled"`
	URL          string `yaml:"url" toml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Token        string `yaml:"token" toml:"token" validate:"required_if=Enabled true"`
	Organization string `yaml:"organization" toml:"organization" validate:"required_if=Enabled true"`
	Bucket       string `yaml:"bucket" toml:"bucket" validate:"required_if=Enabled true"`
}

// MQTTConfig holds MQTT mirror settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Broker      string `yaml:"broker" toml:"broker" validate:"required_if=Enabled true"`
	ClientID    string `yaml:"client_id" toml:"client_id"`
	Username    string `yaml:"username" toml:"username"`
	Password    string `yaml:"password" toml:"password"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix"`
	QoS         int    `yaml:"qos" toml:"qos" validate:"gte=0,lte=2"`
	Retain      bool   `yaml:"retain" toml:"retain"`
}

// AdvertiseConfig holds mDNS advertisement settings for the API
type AdvertiseConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Instance string `yaml:"instance" toml:"instance"`
	Service  string `yaml:"service" toml:"service"`
	Domain   string `yaml:"domain" toml:"domain"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{
		Sampler: SamplerConfig{AutoStart: true},
		Server:  ServerConfig{Enabled: true},
		Alerts:  AlertsConfig{LowBatteryPercent: 15},
	}
	cfg.setDefaults()
	return cfg
}

// Load reads configuration from a YAML or TOML file and applies environment
// variable overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := util.ReadFileSafely(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides and defaults
	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// isTOML reports whether path should be parsed as TOML
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() {
	if path := os.Getenv("BATTERY_LOG_PATH"); path != "" {
		c.Log.Path = path
	}
	if interval := os.Getenv("BATTERY_LOG_INTERVAL"); interval != "" {
		seconds, parseErr := parseIntervalSeconds(interval)
		if parseErr == nil {
			c.Sampler.IntervalSeconds = seconds
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse BATTERY_LOG_INTERVAL '%s': %v\n", interval, parseErr)
		}
	}
	if s := os.Getenv("BATTERY_SENSOR"); s != "" {
		c.Sampler.Sensor = s
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if listen := os.Getenv("BATTERY_API_LISTEN"); listen != "" {
		c.Server.Listen = listen
	}
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		c.InfluxDB.URL = url
		c.InfluxDB.Enabled = true
	}
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		c.InfluxDB.Token = token
	}
	if org := os.Getenv("INFLUXDB_ORG"); org != "" {
		c.InfluxDB.Organization = org
	}
	if bucket := os.Getenv("INFLUXDB_BUCKET"); bucket != "" {
		c.InfluxDB.Bucket = bucket
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		c.Alerts.SlackWebhookURL = webhook
	}
}

// parseIntervalSeconds accepts whole seconds ("300") or a Go duration ("5m")
func parseIntervalSeconds(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("want seconds or a duration: %w", err)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("must be a whole number of seconds")
	}
	return int(d / time.Second), nil
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Sampler.IntervalSeconds == 0 {
		c.Sampler.IntervalSeconds = DefaultIntervalSeconds
	}
	if c.Sampler.Sensor == "" {
		c.Sampler.Sensor = sensor.DefaultKind()
	}
	if c.Sampler.SysfsRoot == "" {
		c.Sampler.SysfsRoot = "/sys/class/power_supply"
	}
	if c.Log.Path == "" {
		c.Log.Path = DefaultLogPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 10
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 20
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "battery"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "battery-data-logger"
	}
	if c.Advertise.Service == "" {
		c.Advertise.Service = "_battery-logger._tcp"
	}
	if c.Advertise.Domain == "" {
		c.Advertise.Domain = "local."
	}
}

// Interval returns the sampling interval as a duration
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sampler.IntervalSeconds) * time.Second
}

// LogPath returns the log path with a leading "~" expanded
func (c *Config) LogPath() string {
	return util.ExpandHome(c.Log.Path)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config file names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			return errors.NewConfigError(field, redact(field, fe.Value()), fmt.Errorf("failed %q validation", fe.Tag()))
		}
		return errors.NewConfigError("config", "", err)
	}

	if validateErr := c.validateInfluxDB(); validateErr != nil {
		return validateErr
	}

	return nil
}

// validateInfluxDB applies the checks struct tags cannot express
func (c *Config) validateInfluxDB() error {
	if !c.InfluxDB.Enabled {
		return nil
	}

	// Validate URL format and security
	parsedURL, parseErr := url.Parse(c.InfluxDB.URL)
	if parseErr != nil {
		return errors.NewConfigError("influxdb.url", c.InfluxDB.URL, parseErr)
	}
	if securityErr := validateURLSecurity(parsedURL); securityErr != nil {
		return securityErr
	}

	// Validate token format (basic check for minimum length)
	if len(c.InfluxDB.Token) < 8 {
		return errors.NewConfigError("influxdb.token", "", fmt.Errorf("must be at least 8 characters long"))
	}

	return nil
}

// validateURLSecurity checks if the URL uses HTTPS for non-local connections
func validateURLSecurity(parsedURL *url.URL) error {
	if parsedURL.Scheme != "http" {
		return nil
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return errors.NewConfigError("influxdb.url", parsedURL.String(),
			fmt.Errorf("must use HTTPS for non-local connections; HTTP transmits the token in plaintext"))
	}

	return nil
}

// redact hides secret values in error messages
func redact(field string, value any) string {
	lower := strings.ToLower(field)
	if strings.Contains(lower, "token") || strings.Contains(lower, "password") || strings.Contains(lower, "webhook") {
		return ""
	}
	return fmt.Sprint(value)
}

// Redacted returns a copy safe for logging and debug dumps
func (c *Config) Redacted() Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	out.InfluxDB.Token = mask(out.InfluxDB.Token)
	out.MQTT.Password = mask(out.MQTT.Password)
	out.Alerts.SlackWebhookURL = mask(out.Alerts.SlackWebhookURL)
	return out
}
