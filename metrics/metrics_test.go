package metrics

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mifi-dashboard/monitor/gateway"
)

type staticSource struct {
	m gateway.Metrics
}

func (s staticSource) Current() gateway.Metrics { return s.m }

func connected() gateway.Metrics {
	m := gateway.DefaultMetrics()
	m.IsConnected = true
	m.SignalStrengthDBM = -71
	m.SignalQuality = 4
	m.NetworkMode = "4G"
	m.Operator = "Carrier"
	m.ConnectedDevices = 3
	m.BatteryPercent = 80
	m.BatteryCharging = true
	m.BytesSent = 2048
	m.BytesReceived = 4096
	m.UploadRate = 1.5
	m.DownloadRate = 12
	m.RuntimeSeconds = 3661
	m.IMEI = "860000000000001"
	m.MAC = "AA:BB:CC:DD:EE:FF"
	m.SoftwareVersion = "V1.0"
	m.SSID = "Hotspot"
	m.LanIP = "192.168.50.1"
	m.LastUpdate = 1700000000000
	return m
}

var _ = Describe("Collector", func() {
	It("should export device gauges while connected", func() {
		c := NewCollector(staticSource{m: connected()})

		expected := `
# HELP mifi_battery_percent Battery charge level
# TYPE mifi_battery_percent gauge
mifi_battery_percent 80
# HELP mifi_battery_charging Whether the battery is charging
# TYPE mifi_battery_charging gauge
mifi_battery_charging 1
# HELP mifi_connected Whether the last poll reached the device (1) or not (0)
# TYPE mifi_connected gauge
mifi_connected{error_kind=""} 1
# HELP mifi_signal_strength_dbm Received Signal Strength Indicator in dBm
# TYPE mifi_signal_strength_dbm gauge
mifi_signal_strength_dbm -71
`
		Expect(testutil.CollectAndCompare(c, strings.NewReader(expected),
			"mifi_battery_percent", "mifi_battery_charging", "mifi_connected", "mifi_signal_strength_dbm",
		)).To(Succeed())
		Expect(testutil.CollectAndCount(c)).To(Equal(14))
	})

	It("should only export connectivity while disconnected", func() {
		m := gateway.ErrorMetrics(&gateway.ConnectivityError{Op: "json_status_info", StatusCode: 500}, time.UnixMilli(1700000000000))
		c := NewCollector(staticSource{m: m})

		expected := `
# HELP mifi_connected Whether the last poll reached the device (1) or not (0)
# TYPE mifi_connected gauge
mifi_connected{error_kind="connectivity"} 0
`
		Expect(testutil.CollectAndCompare(c, strings.NewReader(expected), "mifi_connected")).To(Succeed())
		Expect(testutil.CollectAndCount(c)).To(Equal(2))
	})

	It("should skip the timestamp before the first poll", func() {
		c := NewCollector(staticSource{m: gateway.DefaultMetrics()})
		Expect(testutil.CollectAndCount(c)).To(Equal(1))
	})
})

var _ = Describe("Recorder", func() {
	var (
		reg *prometheus.Registry
		r   *Recorder
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
		r = NewRecorder(reg)
	})

	It("should count cycles by source and result", func() {
		r.ObserveCycle("background", connected(), 10*time.Millisecond)
		r.ObserveCycle("background", connected(), 10*time.Millisecond)
		r.ObserveCycle("in_process", gateway.ErrorMetrics(&gateway.NormalizationError{Op: "json_status_info", Err: gateway.ErrEmptyBody}, time.Now()), time.Millisecond)
		r.ObserveCycle("manual", gateway.DefaultMetrics(), time.Millisecond)

		Expect(testutil.ToFloat64(r.cycles.WithLabelValues("background", "ok"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(r.cycles.WithLabelValues("in_process", "normalization"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(r.cycles.WithLabelValues("manual", "offline"))).To(Equal(1.0))
	})

	It("should observe durations", func() {
		r.ObserveCycle("manual", connected(), 300*time.Millisecond)
		Expect(testutil.CollectAndCount(r.duration)).To(Equal(1))
	})

	It("should register with the registry", func() {
		r.ObserveCycle("manual", connected(), time.Millisecond)
		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		Expect(names).To(ContainElements("mifi_poll_cycles_total", "mifi_poll_duration_seconds"))
	})
})
