package gateway_test

import (
	"encoding/hex"
	"encoding/json"
	"time"
	"unicode/utf16"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mifi-dashboard/monitor/gateway"
)

func utf16Hex(s string) string {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 0, len(units)*2)
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return hex.EncodeToString(b)
}

var _ = Describe("Normalize", func() {
	var (
		home   *gateway.RawHomepageInfo
		status *gateway.RawStatusInfo
		at     time.Time
	)

	BeforeEach(func() {
		at = time.UnixMilli(1700000000123)
		home = &gateway.RawHomepageInfo{
			NetworkName: "Telkomsel",
			MAC:         "AA:BB:CC:DD:EE:FF",
			IMEI:        "356789012345678",
			SWVersion:   "M7350_V1.0",
			MSISDN:      "+628123456789",
			LanIP:       "192.168.50.1",
			SSID:        gateway.Text(utf16Hex("MiFi-Home")),
		}
		status = &gateway.RawStatusInfo{
			RSSI:            "-75",
			SignalQuality:   "4",
			SysMode:         "17",
			WifiClientsNum:  "3",
			RunSeconds:      "3661",
			BatteryPercent:  "85",
			BatteryCharging: "1",
			TxByteAll:       "1073741824",
			RxByteAll:       "2147483648",
			TxSpeed:         "2048",
			RxSpeed:         "2097152",
		}
	})

	It("should produce a connected snapshot", func() {
		m, err := gateway.Normalize(home, status, at)
		Expect(err).ToNot(HaveOccurred())
		Expect(m.IsConnected).To(BeTrue())
		Expect(m.Error).To(BeEmpty())
		Expect(m.SignalStrength).To(Equal("-75 dBm"))
		Expect(m.SignalStrengthDBM).To(BeEquivalentTo(-75))
		Expect(m.SignalQuality).To(BeEquivalentTo(4))
		Expect(m.NetworkMode).To(Equal("4G"))
		Expect(m.Operator).To(Equal("Telkomsel"))
		Expect(m.ConnectedDevices).To(BeEquivalentTo(3))
		Expect(m.Runtime).To(Equal("1h 1m 1s"))
		Expect(m.RuntimeSeconds).To(BeEquivalentTo(3661))
		Expect(m.BatteryPercent).To(BeEquivalentTo(85))
		Expect(m.BatteryCharging).To(BeTrue())
		Expect(m.SentData).To(Equal("1.000 GB"))
		Expect(m.ReceivedData).To(Equal("2.000 GB"))
		Expect(m.UploadSpeed).To(Equal("2.0 KB/s"))
		Expect(m.DownloadSpeed).To(Equal("2.0 MB/s"))
		Expect(m.SSID).To(Equal("MiFi-Home"))
		Expect(m.IMEI).To(Equal("356789012345678"))
		Expect(m.PhoneNumber).To(Equal("+628123456789"))
		Expect(m.SoftwareVersion).To(Equal("M7350_V1.0"))
		Expect(m.LanIP).To(Equal("192.168.50.1"))
		Expect(m.LastUpdate).To(BeEquivalentTo(1700000000123))
	})

	It("should default garbled numeric fields to zero", func() {
		status.RunSeconds = "abc"
		status.TxByteAll = "x"
		status.SignalQuality = ""
		status.BatteryPercent = "N/A"
		status.WifiClientsNum = "many"
		status.BatteryCharging = "yes"
		status.RSSI = "weak"
		status.TxSpeed = "fast"

		m, err := gateway.Normalize(home, status, at)
		Expect(err).ToNot(HaveOccurred())
		Expect(m.IsConnected).To(BeTrue())
		Expect(m.Runtime).To(Equal("0h 0m 0s"))
		Expect(m.SentData).To(Equal("0.000 GB"))
		Expect(m.SignalQuality).To(BeZero())
		Expect(m.BatteryPercent).To(BeZero())
		Expect(m.ConnectedDevices).To(BeZero())
		Expect(m.BatteryCharging).To(BeFalse())
		Expect(m.SignalStrength).To(Equal("N/A"))
		Expect(m.UploadSpeed).To(Equal("0.0 KB/s"))
	})

	It("should default non-finite speeds to zero", func() {
		status.TxSpeed = "NaN"
		status.RxSpeed = "+Inf"

		m, err := gateway.Normalize(home, status, at)
		Expect(err).ToNot(HaveOccurred())
		Expect(m.UploadRate).To(BeZero())
		Expect(m.DownloadRate).To(BeZero())
		Expect(m.UploadSpeed).To(Equal("0.0 KB/s"))
		Expect(m.DownloadSpeed).To(Equal("0.0 KB/s"))

		_, err = json.Marshal(m)
		Expect(err).ToNot(HaveOccurred())
	})

	It("should clamp signal quality to five bars", func() {
		status.SignalQuality = "9"
		m, err := gateway.Normalize(home, status, at)
		Expect(err).ToNot(HaveOccurred())
		Expect(m.SignalQuality).To(BeEquivalentTo(5))
	})

	It("should fail on a missing record", func() {
		_, err := gateway.Normalize(nil, status, at)
		var nerr *gateway.NormalizationError
		Expect(err).To(BeAssignableToTypeOf(nerr))
		Expect(gateway.ErrorKindOf(err)).To(Equal(gateway.ErrorKindNormalization))
	})
})

var _ = Describe("DecodeSSID", func() {
	It("should decode hex encoded UTF-16BE", func() {
		Expect(gateway.DecodeSSID(utf16Hex("MiFi-Home"))).To(Equal("MiFi-Home"))
		Expect(gateway.DecodeSSID(utf16Hex("Café ☕"))).To(Equal("Café ☕"))
	})

	It("should return odd length input unchanged", func() {
		Expect(gateway.DecodeSSID("004d0")).To(Equal("004d0"))
	})

	It("should return non hex input unchanged", func() {
		Expect(gateway.DecodeSSID("MyWifi")).To(Equal("MyWifi"))
	})
})

var _ = DescribeTable("FormatRuntime",
	func(seconds int64, want string) {
		Expect(gateway.FormatRuntime(seconds)).To(Equal(want))
	},
	Entry("zero", int64(0), "0h 0m 0s"),
	Entry("one of each", int64(3661), "1h 1m 1s"),
	Entry("over a day", int64(90061), "25h 1m 1s"),
)

var _ = DescribeTable("FormatSpeed",
	func(kb float64, want string) {
		Expect(gateway.FormatSpeed(kb)).To(Equal(want))
	},
	Entry("kilobytes", 512.0, "512.0 KB/s"),
	Entry("megabyte threshold", 1024.0, "1.0 MB/s"),
	Entry("megabytes", 1536.0, "1.5 MB/s"),
	Entry("gigabyte threshold", float64(1<<20), "1.0 GB/s"),
)

var _ = DescribeTable("NetworkMode",
	func(code, want string) {
		Expect(gateway.NetworkMode(code)).To(Equal(want))
	},
	Entry("LTE", "17", "4G"),
	Entry("other code", "3", "Unknown"),
	Entry("garbage", "lte", "Unknown"),
	Entry("empty", "", "Unknown"),
)

var _ = Describe("Text", func() {
	It("should accept strings, numbers and null", func() {
		var s gateway.RawStatusInfo
		err := json.Unmarshal([]byte(`{"rssi":"-80","signal_quality":3,"sys_mode":null,"tx_speed":{"a":1}}`), &s)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.RSSI).To(BeEquivalentTo("-80"))
		Expect(s.SignalQuality).To(BeEquivalentTo("3"))
		Expect(s.SysMode).To(BeEmpty())
		Expect(s.TxSpeed).To(BeEmpty())
	})
})

var _ = Describe("ErrorMetrics", func() {
	It("should label connectivity and parsing failures differently", func() {
		at := time.UnixMilli(42)
		conn := gateway.ErrorMetrics(&gateway.ConnectivityError{Op: "json_status_info", Err: gateway.ErrEmptyBody}, at)
		Expect(conn.IsConnected).To(BeFalse())
		Expect(conn.ErrorKind).To(Equal(gateway.ErrorKindConnectivity))
		Expect(conn.Error).To(HavePrefix("Connection error: "))
		Expect(conn.LastUpdate).To(BeEquivalentTo(42))

		parse := gateway.ErrorMetrics(&gateway.NormalizationError{Op: "json_status_info", Err: gateway.ErrEmptyBody}, at)
		Expect(parse.ErrorKind).To(Equal(gateway.ErrorKindNormalization))
		Expect(parse.Error).To(HavePrefix("Parsing error: "))
		Expect(parse.SSID).To(Equal("N/A"))
	})
})
