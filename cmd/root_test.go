package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mifi-dashboard/monitor/gateway"
	"github.com/mifi-dashboard/monitor/notifications"
)

var _ = Describe("buildLogger", func() {
	It("should write JSON at the requested level", func() {
		var buf bytes.Buffer
		logger, err := buildLogger("warn", "json", &buf)
		Expect(err).NotTo(HaveOccurred())

		logger.Info("hidden")
		logger.Warn("shown", "component", "poller")
		Expect(buf.String()).NotTo(ContainSubstring("hidden"))
		Expect(buf.String()).To(ContainSubstring(`"msg":"shown"`))
		Expect(buf.String()).To(ContainSubstring(`"component":"poller"`))
	})

	It("should default to text at info", func() {
		var buf bytes.Buffer
		logger, err := buildLogger("", "", &buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(logger.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
		logger.Info("hello")
		Expect(buf.String()).To(ContainSubstring("msg=hello"))
	})

	It("should reject unknown settings", func() {
		_, err := buildLogger("verbose", "text", &bytes.Buffer{})
		Expect(err).To(MatchError(ContainSubstring("unknown log level")))
		_, err = buildLogger("info", "xml", &bytes.Buffer{})
		Expect(err).To(MatchError(ContainSubstring("unknown log format")))
	})
})

var _ = Describe("newSender", func() {
	It("should pick the configured backend", func() {
		Expect(newSender("desktop", nil)).To(BeAssignableToTypeOf(&notifications.DesktopSender{}))
		Expect(newSender("log", nil)).To(BeAssignableToTypeOf(&notifications.LogSender{}))
		Expect(newSender("none", nil)).To(Equal(notifications.Nop{}))
		Expect(newSender("", nil)).To(Equal(notifications.Nop{}))
	})
})

var _ = Describe("clientFactory", func() {
	It("should build independent clients", func() {
		factory := clientFactory(gateway.DefaultConfig(), nil)
		a, err := factory()
		Expect(err).NotTo(HaveOccurred())
		b, err := factory()
		Expect(err).NotTo(HaveOccurred())
		Expect(a).NotTo(BeIdenticalTo(b))
	})

	It("should surface an invalid URL", func() {
		cfg := gateway.DefaultConfig()
		cfg.URL = "192.168.50.1"
		_, err := clientFactory(cfg, nil)()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("printUpdates", func() {
	It("should print one line per polled snapshot", func() {
		updates := make(chan gateway.Metrics, 3)
		updates <- gateway.DefaultMetrics()

		connected := gateway.DefaultMetrics()
		connected.IsConnected = true
		connected.Operator = "Carrier"
		connected.NetworkMode = "4G"
		connected.SignalStrength = "-71 dBm"
		connected.SignalQuality = 4
		connected.BatteryPercent = 90
		connected.LastUpdate = time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local).UnixMilli()
		updates <- connected

		failed := gateway.ErrorMetrics(&gateway.ConnectivityError{Op: "json_homepage_info", Err: gateway.ErrEmptyBody}, time.Date(2024, 1, 1, 12, 0, 1, 0, time.Local))
		updates <- failed
		close(updates)

		var buf bytes.Buffer
		Expect(printUpdates(context.Background(), &buf, updates)).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(HavePrefix("12:00:00  Carrier  4G  -71 dBm  4/5  🔋 90%"))
		Expect(lines[1]).To(Equal("12:00:01  offline  Connection error: json_homepage_info: empty response body"))
	})
})
