// Package gateway provides the client for the MiFi local management interface
// and the normalized metrics model built from its telemetry.
package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Text is a device supplied field. The firmware serializes numbers as strings,
// but Text also accepts bare numbers, booleans and null so one odd field does
// not fail the whole record. Objects and arrays decode to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case data[0] == '{' || data[0] == '[':
		*t = ""
	default:
		*t = Text(data)
	}
	return nil
}

func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// RawHomepageInfo is the json_homepage_info record.
type RawHomepageInfo struct {
	NetworkName Text `json:"network_name"`
	MAC         Text `json:"mac"`
	IMEI        Text `json:"imei"`
	SWVersion   Text `json:"sw_version"`
	MSISDN      Text `json:"msisdn"`
	LanIP       Text `json:"lan_ip"`
	SSID        Text `json:"ssid"`
}

// RawStatusInfo is the json_status_info record.
type RawStatusInfo struct {
	RSSI            Text `json:"rssi"`
	SignalQuality   Text `json:"signal_quality"`
	SysMode         Text `json:"sys_mode"`
	WifiClientsNum  Text `json:"wifi_clients_num"`
	RunSeconds      Text `json:"run_seconds"`
	BatteryPercent  Text `json:"battery_percent"`
	BatteryCharging Text `json:"battery_charging"`
	TxByteAll       Text `json:"tx_byte_all"`
	RxByteAll       Text `json:"rx_byte_all"`
	TxSpeed         Text `json:"tx_speed"`
	RxSpeed         Text `json:"rx_speed"`
}

// ErrorKind classifies why a snapshot is not connected.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindConnectivity  ErrorKind = "connectivity"
	ErrorKindNormalization ErrorKind = "normalization"
)

const notAvailable = "N/A"

// Metrics is a normalized snapshot of the device state. A snapshot with a
// non-empty Error is never connected.
type Metrics struct {
	IsConnected bool `json:"is_connected"`

	// SignalStrength is the RSSI rendered as "<n> dBm"; SignalStrengthDBM is the raw value.
	SignalStrength    string `json:"signal_strength"`
	SignalStrengthDBM int64  `json:"signal_strength_dbm"`

	// SignalQuality is the bar count, 0 to 5.
	SignalQuality int64 `json:"signal_quality"`

	NetworkMode      string `json:"network_mode"`
	Operator         string `json:"operator"`
	ConnectedDevices int64  `json:"connected_devices"`

	RuntimeSeconds int64  `json:"runtime_seconds"`
	Runtime        string `json:"runtime"`

	BatteryPercent  int64 `json:"battery_percent"`
	BatteryCharging bool  `json:"battery_charging"`

	BytesSent     int64  `json:"bytes_sent"`
	BytesReceived int64  `json:"bytes_received"`
	SentData      string `json:"sent_data"`
	ReceivedData  string `json:"received_data"`

	// Rates in KB/s, before magnitude formatting.
	UploadRate    float64 `json:"upload_rate_kbps"`
	DownloadRate  float64 `json:"download_rate_kbps"`
	UploadSpeed   string  `json:"upload_speed"`
	DownloadSpeed string  `json:"download_speed"`

	SSID            string `json:"ssid"`
	IMEI            string `json:"imei"`
	MAC             string `json:"mac"`
	PhoneNumber     string `json:"phone_number"`
	SoftwareVersion string `json:"software_version"`
	LanIP           string `json:"lan_ip"`

	// LastUpdate is milliseconds since the Unix epoch.
	LastUpdate int64 `json:"last_update"`

	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// DefaultMetrics returns the snapshot published before the first poll.
func DefaultMetrics() Metrics {
	return Metrics{
		SignalStrength:  notAvailable,
		NetworkMode:     notAvailable,
		Operator:        notAvailable,
		Runtime:         notAvailable,
		SentData:        "0.0 GB",
		ReceivedData:    "0.0 GB",
		UploadSpeed:     "0 KB/s",
		DownloadSpeed:   "0 KB/s",
		SSID:            notAvailable,
		IMEI:            notAvailable,
		MAC:             notAvailable,
		PhoneNumber:     notAvailable,
		SoftwareVersion: notAvailable,
		LanIP:           notAvailable,
	}
}

// ErrorMetrics returns a disconnected snapshot describing err.
func ErrorMetrics(err error, at time.Time) Metrics {
	m := DefaultMetrics()
	m.LastUpdate = at.UnixMilli()
	m.ErrorKind = ErrorKindOf(err)
	switch m.ErrorKind {
	case ErrorKindNormalization:
		m.Error = "Parsing error: " + err.Error()
	default:
		m.Error = "Connection error: " + err.Error()
	}
	return m
}

// LastUpdateTime returns LastUpdate as a time.Time, zero before the first poll.
func (m Metrics) LastUpdateTime() time.Time {
	if m.LastUpdate == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.LastUpdate)
}
