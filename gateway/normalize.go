package gateway

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

const (
	gigabyte = 1 << 30

	// sysModeLTE is the only system mode code the firmware is known to report.
	sysModeLTE = 17
)

// Normalize builds a connected snapshot from the two device records. Garbled
// fields fall back to zero values; it only fails on a nil record.
func Normalize(home *RawHomepageInfo, status *RawStatusInfo, at time.Time) (m Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NormalizationError{Err: fmt.Errorf("unexpected record layout: %v", r)}
		}
	}()

	if home == nil {
		return Metrics{}, &NormalizationError{Op: homepageFile, Err: fmt.Errorf("empty record")}
	}
	if status == nil {
		return Metrics{}, &NormalizationError{Op: statusFile, Err: fmt.Errorf("empty record")}
	}

	dbm, signal := parseSignal(status.RSSI.String())
	runtime := parseInt(status.RunSeconds.String())
	if runtime < 0 {
		runtime = 0
	}
	sent := parseInt(status.TxByteAll.String())
	received := parseInt(status.RxByteAll.String())
	up := parseFloat(status.TxSpeed.String()) / 1024
	down := parseFloat(status.RxSpeed.String()) / 1024

	return Metrics{
		IsConnected:       true,
		SignalStrength:    signal,
		SignalStrengthDBM: dbm,
		SignalQuality:     clamp(parseInt(status.SignalQuality.String()), 0, 5),
		NetworkMode:       NetworkMode(status.SysMode.String()),
		Operator:          string(home.NetworkName),
		ConnectedDevices:  parseInt(status.WifiClientsNum.String()),
		RuntimeSeconds:    runtime,
		Runtime:           FormatRuntime(runtime),
		BatteryPercent:    parseInt(status.BatteryPercent.String()),
		BatteryCharging:   parseInt(status.BatteryCharging.String()) == 1,
		BytesSent:         sent,
		BytesReceived:     received,
		SentData:          FormatGigabytes(sent),
		ReceivedData:      FormatGigabytes(received),
		UploadRate:        up,
		DownloadRate:      down,
		UploadSpeed:       FormatSpeed(up),
		DownloadSpeed:     FormatSpeed(down),
		SSID:              DecodeSSID(string(home.SSID)),
		IMEI:              string(home.IMEI),
		MAC:               string(home.MAC),
		PhoneNumber:       string(home.MSISDN),
		SoftwareVersion:   string(home.SWVersion),
		LanIP:             string(home.LanIP),
		LastUpdate:        at.UnixMilli(),
	}, nil
}

// DecodeSSID decodes the hex encoded UTF-16BE SSID. Anything that is not
// valid even-length hex is returned unchanged.
func DecodeSSID(raw string) string {
	if len(raw)%2 != 0 {
		return raw
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return raw
	}
	decoded, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return raw
	}
	return string(decoded)
}

// FormatRuntime renders seconds as "{h}h {m}m {s}s".
func FormatRuntime(seconds int64) string {
	return fmt.Sprintf("%dh %dm %ds", seconds/3600, (seconds%3600)/60, seconds%60)
}

// FormatGigabytes renders a byte counter in GiB with three decimals.
func FormatGigabytes(bytes int64) string {
	return fmt.Sprintf("%.3f GB", float64(bytes)/gigabyte)
}

// FormatSpeed renders a KB/s rate with a magnitude suffix.
func FormatSpeed(kb float64) string {
	switch {
	case kb >= 1<<20:
		return fmt.Sprintf("%.1f GB/s", kb/(1<<20))
	case kb >= 1<<10:
		return fmt.Sprintf("%.1f MB/s", kb/(1<<10))
	default:
		return fmt.Sprintf("%.1f KB/s", kb)
	}
}

// NetworkMode maps the sys_mode code to a label.
func NetworkMode(code string) string {
	if v, err := strconv.ParseInt(strings.TrimSpace(code), 10, 64); err == nil && v == sysModeLTE {
		return "4G"
	}
	return "Unknown"
}

func parseSignal(rssi string) (int64, string) {
	v, err := strconv.ParseInt(rssi, 10, 64)
	if err != nil {
		return 0, notAvailable
	}
	return v, fmt.Sprintf("%d dBm", v)
}

func parseInt(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" || v == notAvailable {
		return 0
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	return 0
}

func parseFloat(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" || v == notAvailable {
		return 0
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return 0
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
