// Package cmd implements the mifi-monitor command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mifi-dashboard/monitor/config"
	"github.com/mifi-dashboard/monitor/gateway"
	"github.com/mifi-dashboard/monitor/notifications"
	"github.com/mifi-dashboard/monitor/poller"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "mifi-monitor",
	Short:         "Monitor a MiFi hotspot over its local HTTP API",
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to config file")
	flags.String("device", "", "Device URL (default: http://192.168.50.1)")
	flags.String("username", "", "Device username")
	flags.String("password", "", "Device password")
	flags.Duration("interval", 0, "Poll interval (default: 1s)")
	flags.Duration("timeout", 0, "Per-request timeout (default: 10s)")
	flags.String("notify", "", "Notification backend: none, log, desktop")
	flags.String("log.level", "", "Log level: debug, info, warn, error")
	flags.String("log.format", "", "Log format: text, json")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("device.url", flags.Lookup("device"))
	_ = viper.BindPFlag("device.username", flags.Lookup("username"))
	_ = viper.BindPFlag("device.password", flags.Lookup("password"))
	_ = viper.BindPFlag("device.poll_interval", flags.Lookup("interval"))
	_ = viper.BindPFlag("device.timeout", flags.Lookup("timeout"))
	_ = viper.BindPFlag("notifications.backend", flags.Lookup("notify"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log.level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log.format"))

	_ = viper.BindEnv("config", "MIFI_CONFIG")
}

// loadConfig layers file, environment and explicitly set flags, in that order.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	config.LoadConfigFromEnv(cfg)

	if viper.IsSet("device.url") {
		cfg.Device.URL = viper.GetString("device.url")
	}
	if viper.IsSet("device.username") {
		cfg.Device.Username = viper.GetString("device.username")
	}
	if viper.IsSet("device.password") {
		cfg.Device.Password = viper.GetString("device.password")
	}
	if viper.IsSet("device.poll_interval") {
		cfg.Device.PollInterval = viper.GetDuration("device.poll_interval")
	}
	if viper.IsSet("device.timeout") {
		cfg.Device.Timeout = viper.GetDuration("device.timeout")
	}
	if viper.IsSet("notifications.backend") {
		cfg.Notifications.Backend = viper.GetString("notifications.backend")
	}
	if viper.IsSet("logging.level") {
		cfg.Logging.Level = viper.GetString("logging.level")
	}
	if viper.IsSet("logging.format") {
		cfg.Logging.Format = viper.GetString("logging.format")
	}
	if viper.IsSet("server.listen") {
		cfg.Server.Listen = viper.GetString("server.listen")
	}
	if viper.IsSet("nats.url") {
		cfg.NATS.URL = viper.GetString("nats.url")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildLogger creates the process logger. Logs go to stderr so that command
// output on stdout stays machine readable.
func buildLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text|json)", format)
	}
	return slog.New(h), nil
}

func newSender(backend string, logger *slog.Logger) notifications.Sender {
	switch backend {
	case config.NotifyDesktop:
		return notifications.NewDesktopSender(logger)
	case config.NotifyLog:
		return notifications.NewLogSender(logger)
	default:
		return notifications.Nop{}
	}
}

// clientFactory returns a poller fetcher factory that builds a new device
// client, and so a new digest session, on every call.
func clientFactory(cfg gateway.ClientConfig, logger *slog.Logger) func() (poller.Fetcher, error) {
	return func() (poller.Fetcher, error) {
		c, err := gateway.NewClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
