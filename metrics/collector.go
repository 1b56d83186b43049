// Package metrics exposes the latest MiFi snapshot and poll loop activity in
// Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mifi-dashboard/monitor/gateway"
)

const namespace = "mifi"

// Source provides the snapshot to export; *store.Store satisfies it.
type Source interface {
	Current() gateway.Metrics
}

// Collector implements prometheus.Collector over the current snapshot. It
// never talks to the device itself, so a scrape costs no device request.
type Collector struct {
	source Source

	// Connection metrics
	connectedDesc   *prometheus.Desc
	lastUpdateDesc  *prometheus.Desc
	runtimeDesc     *prometheus.Desc
	infoDesc        *prometheus.Desc
	networkModeDesc *prometheus.Desc

	// Signal metrics
	signalDBMDesc     *prometheus.Desc
	signalQualityDesc *prometheus.Desc

	// Device metrics
	devicesDesc  *prometheus.Desc
	batteryDesc  *prometheus.Desc
	chargingDesc *prometheus.Desc

	// Traffic metrics
	bytesSentDesc     *prometheus.Desc
	bytesReceivedDesc *prometheus.Desc
	uploadRateDesc    *prometheus.Desc
	downloadRateDesc  *prometheus.Desc
}

// NewCollector creates a new Collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,

		connectedDesc: prometheus.NewDesc(
			namespace+"_connected",
			"Whether the last poll reached the device (1) or not (0)",
			[]string{"error_kind"},
			nil,
		),
		lastUpdateDesc: prometheus.NewDesc(
			namespace+"_last_update_timestamp_seconds",
			"Unix time of the last snapshot",
			nil,
			nil,
		),
		runtimeDesc: prometheus.NewDesc(
			namespace+"_runtime_seconds",
			"Device uptime in seconds",
			nil,
			nil,
		),
		infoDesc: prometheus.NewDesc(
			namespace+"_device_info",
			"Device identity, always 1",
			[]string{"imei", "mac", "software_version", "operator", "ssid", "lan_ip"},
			nil,
		),
		networkModeDesc: prometheus.NewDesc(
			namespace+"_network_mode",
			"Current network mode, always 1",
			[]string{"mode"},
			nil,
		),

		signalDBMDesc: prometheus.NewDesc(
			namespace+"_signal_strength_dbm",
			"Received Signal Strength Indicator in dBm",
			nil,
			nil,
		),
		signalQualityDesc: prometheus.NewDesc(
			namespace+"_signal_quality_bars",
			"Signal quality in bars (0-5)",
			nil,
			nil,
		),

		devicesDesc: prometheus.NewDesc(
			namespace+"_connected_devices",
			"Number of Wi-Fi clients",
			nil,
			nil,
		),
		batteryDesc: prometheus.NewDesc(
			namespace+"_battery_percent",
			"Battery charge level",
			nil,
			nil,
		),
		chargingDesc: prometheus.NewDesc(
			namespace+"_battery_charging",
			"Whether the battery is charging",
			nil,
			nil,
		),

		bytesSentDesc: prometheus.NewDesc(
			namespace+"_sent_bytes_total",
			"Bytes sent since the device started",
			nil,
			nil,
		),
		bytesReceivedDesc: prometheus.NewDesc(
			namespace+"_received_bytes_total",
			"Bytes received since the device started",
			nil,
			nil,
		),
		uploadRateDesc: prometheus.NewDesc(
			namespace+"_upload_rate_kilobytes",
			"Current upload rate in KB/s",
			nil,
			nil,
		),
		downloadRateDesc: prometheus.NewDesc(
			namespace+"_download_rate_kilobytes",
			"Current download rate in KB/s",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectedDesc
	ch <- c.lastUpdateDesc
	ch <- c.runtimeDesc
	ch <- c.infoDesc
	ch <- c.networkModeDesc
	ch <- c.signalDBMDesc
	ch <- c.signalQualityDesc
	ch <- c.devicesDesc
	ch <- c.batteryDesc
	ch <- c.chargingDesc
	ch <- c.bytesSentDesc
	ch <- c.bytesReceivedDesc
	ch <- c.uploadRateDesc
	ch <- c.downloadRateDesc
}

// Collect implements prometheus.Collector. Device gauges are only exported
// while connected, so a dead device does not report zeros.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.source.Current()

	ch <- prometheus.MustNewConstMetric(c.connectedDesc, prometheus.GaugeValue, boolValue(m.IsConnected), string(m.ErrorKind))
	if m.LastUpdate != 0 {
		ch <- prometheus.MustNewConstMetric(c.lastUpdateDesc, prometheus.GaugeValue, float64(m.LastUpdate)/1000)
	}
	if !m.IsConnected {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.runtimeDesc, prometheus.GaugeValue, float64(m.RuntimeSeconds))
	ch <- prometheus.MustNewConstMetric(c.infoDesc, prometheus.GaugeValue, 1,
		m.IMEI, m.MAC, m.SoftwareVersion, m.Operator, m.SSID, m.LanIP)
	ch <- prometheus.MustNewConstMetric(c.networkModeDesc, prometheus.GaugeValue, 1, m.NetworkMode)

	ch <- prometheus.MustNewConstMetric(c.signalDBMDesc, prometheus.GaugeValue, float64(m.SignalStrengthDBM))
	ch <- prometheus.MustNewConstMetric(c.signalQualityDesc, prometheus.GaugeValue, float64(m.SignalQuality))

	ch <- prometheus.MustNewConstMetric(c.devicesDesc, prometheus.GaugeValue, float64(m.ConnectedDevices))
	ch <- prometheus.MustNewConstMetric(c.batteryDesc, prometheus.GaugeValue, float64(m.BatteryPercent))
	ch <- prometheus.MustNewConstMetric(c.chargingDesc, prometheus.GaugeValue, boolValue(m.BatteryCharging))

	ch <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(m.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.bytesReceivedDesc, prometheus.CounterValue, float64(m.BytesReceived))
	ch <- prometheus.MustNewConstMetric(c.uploadRateDesc, prometheus.GaugeValue, m.UploadRate)
	ch <- prometheus.MustNewConstMetric(c.downloadRateDesc, prometheus.GaugeValue, m.DownloadRate)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
