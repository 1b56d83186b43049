// Package sink forwards store updates to a NATS subject as JSON.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mifi-dashboard/monitor/gateway"
)

// DefaultSubject is the subject snapshots are published on.
const DefaultSubject = "mifi.metrics"

// Publisher is the slice of *nats.Conn the forwarder needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials NATS with reconnect-forever settings.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.PingInterval(5*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// Forwarder publishes every snapshot it receives, typically from a
// store.Subscription.
type Forwarder struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

// NewForwarder creates a Forwarder. An empty subject means DefaultSubject.
func NewForwarder(pub Publisher, subject string, logger *slog.Logger) *Forwarder {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Forwarder{pub: pub, subject: subject, logger: logger}
}

// Run forwards updates until ctx is done or updates is closed. The
// placeholder snapshot held before the first poll is not forwarded. Publish
// failures are logged and do not stop the forwarder.
func (f *Forwarder) Run(ctx context.Context, updates <-chan gateway.Metrics) error {
	f.logger.Info("forwarding metrics", "subject", f.subject)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-updates:
			if !ok {
				return nil
			}
			if m.LastUpdate == 0 {
				continue
			}
			if err := f.publish(m); err != nil {
				f.logger.Warn("publish metrics", "subject", f.subject, "error", err)
			}
		}
	}
}

func (f *Forwarder) publish(m gateway.Metrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	return f.pub.Publish(f.subject, data)
}
