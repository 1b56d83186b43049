package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mifi-dashboard/monitor/config"
	"github.com/mifi-dashboard/monitor/metrics"
	"github.com/mifi-dashboard/monitor/poller"
	"github.com/mifi-dashboard/monitor/store"
)

const shutdownTimeout = 5 * time.Second

// app wires the store and the poller for a command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	poller *poller.Poller
}

func newApp(cfg *config.Config, reg prometheus.Registerer) (*app, error) {
	logger, err := buildLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, err
	}

	s := store.New(store.DefaultCapacity, logger.With("component", "store"))

	var recorder poller.Recorder
	if reg != nil {
		recorder = metrics.NewRecorder(reg)
	}

	p, err := poller.New(poller.Options{
		NewFetcher: clientFactory(cfg.ToClientConfig(), logger.With("component", "gateway")),
		Sink:       s,
		Interval:   cfg.Device.PollInterval,
		Notifier:   newSender(cfg.Notifications.Backend, logger.With("component", "notifications")),
		Recorder:   recorder,
		Logger:     logger.With("component", "poller"),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create poller: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: s, poller: p}, nil
}

// close stops polling, then ends every subscription.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.poller.Shutdown(ctx); err != nil {
		a.logger.Warn("poller shutdown", "error", err)
	}
	a.store.Close()
}
