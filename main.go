// MiFi Hotspot Monitor
//
// This tool polls a portable MiFi hotspot over its local HTTP management API,
// answering the device's Digest challenge, and publishes normalized telemetry
// to a terminal, an HTTP/SSE endpoint, Prometheus and optionally NATS.
//
// Usage:
//
//	mifi-monitor <command> [flags]
//
// Commands:
//
//	once    Fetch the device state once and print it as JSON
//	watch   Poll and print one line per snapshot (--service for background mode)
//	serve   Serve status, lifecycle controls, SSE events and /metrics
//
// Flags:
//
//	--config string     Path to config file (default: no config file)
//	--device string     Device URL (default: http://192.168.50.1)
//	--interval duration Poll interval (default: 1s)
//	--notify string     Notification backend: none, log, desktop (default: none)
package main

import "github.com/mifi-dashboard/monitor/cmd"

func main() {
	cmd.Execute()
}
