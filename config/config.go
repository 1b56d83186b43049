// Package config provides configuration loading for the MiFi monitor.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mifi-dashboard/monitor/gateway"
)

// Notification backends.
const (
	NotifyNone    = "none"
	NotifyLog     = "log"
	NotifyDesktop = "desktop"
)

// Config holds the application configuration.
type Config struct {
	// Device configuration
	Device DeviceConfig `yaml:"device"`

	// HTTP server configuration
	Server ServerConfig `yaml:"server"`

	// Notifications configuration
	Notifications NotificationsConfig `yaml:"notifications"`

	// NATS forwarding configuration
	NATS NATSConfig `yaml:"nats"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// DeviceConfig holds device connection settings.
type DeviceConfig struct {
	// URL is the base URL of the device
	URL string `yaml:"url"`

	// Username for digest authentication
	Username string `yaml:"username"`

	// Password for digest authentication
	Password string `yaml:"password"`

	// PollInterval is the delay between poll cycles
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout for device requests
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig holds the serve command's HTTP settings.
type ServerConfig struct {
	// Listen is the address to listen on
	Listen string `yaml:"listen"`

	// MetricsPath for the Prometheus endpoint
	MetricsPath string `yaml:"metrics_path"`
}

// NotificationsConfig selects where background status summaries go.
type NotificationsConfig struct {
	// Backend is none, log or desktop
	Backend string `yaml:"backend"`
}

// NATSConfig holds the optional metrics forwarder settings.
type NATSConfig struct {
	// URL of the NATS server; empty disables forwarding
	URL string `yaml:"url"`

	// Subject to publish snapshots on
	Subject string `yaml:"subject"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Format is the log format (json, text)
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	client := gateway.DefaultConfig()
	return Config{
		Device: DeviceConfig{
			URL:          client.URL,
			Username:     client.Username,
			Password:     client.Password,
			PollInterval: time.Second,
			Timeout:      client.Timeout,
		},
		Server: ServerConfig{
			Listen:      ":9110",
			MetricsPath: "/metrics",
		},
		Notifications: NotificationsConfig{
			Backend: NotifyNone,
		},
		NATS: NATSConfig{
			Subject: "mifi.metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables.
// Environment variables override values from the config file.
func LoadConfigFromEnv(cfg *Config) {
	if url := os.Getenv("MIFI_DEVICE_URL"); url != "" {
		cfg.Device.URL = url
	}

	if username := os.Getenv("MIFI_USERNAME"); username != "" {
		cfg.Device.Username = username
	}

	if password := os.Getenv("MIFI_PASSWORD"); password != "" {
		cfg.Device.Password = password
	}

	if interval := os.Getenv("MIFI_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Device.PollInterval = d
		}
	}

	if timeout := os.Getenv("MIFI_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Device.Timeout = d
		}
	}

	if listen := os.Getenv("MIFI_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}

	if backend := os.Getenv("MIFI_NOTIFY"); backend != "" {
		cfg.Notifications.Backend = backend
	}

	if natsURL := os.Getenv("MIFI_NATS_URL"); natsURL != "" {
		cfg.NATS.URL = natsURL
	}

	if level := os.Getenv("MIFI_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Device.URL == "" {
		errs = append(errs, errors.New("device.url is required"))
	}
	if c.Device.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("device.poll_interval must be positive, got %s", c.Device.PollInterval))
	}
	if c.Device.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("device.timeout must be positive, got %s", c.Device.Timeout))
	}

	switch strings.ToLower(c.Notifications.Backend) {
	case "", NotifyNone, NotifyLog, NotifyDesktop:
	default:
		errs = append(errs, fmt.Errorf("notifications.backend %q is not one of none, log, desktop", c.Notifications.Backend))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, errors.New("nats.subject is required when nats.url is set"))
	}

	return errors.Join(errs...)
}

// ToClientConfig converts the config to a gateway.ClientConfig.
func (c *Config) ToClientConfig() gateway.ClientConfig {
	return gateway.ClientConfig{
		URL:      c.Device.URL,
		Username: c.Device.Username,
		Password: c.Device.Password,
		Timeout:  c.Device.Timeout,
	}
}
