// Package snapplugin is the runtime core of a Snap plugin process.
//
// It governs how a plugin process finds its own RPC endpoint, announces itself
// to the controlling host, proves it is alive and shuts down cleanly. What the
// plugin collects, processes or publishes is supplied by the plugin author
// through the capability contracts (Plugin, Collector, Processor, Publisher,
// StreamCollector).
//
// Key Features:
//   - Operating mode resolution from the command line (normal, diagnostic, standalone)
//   - Single-line JSON handshake preamble advertising identity and listen address
//   - gRPC endpoint on an OS-assigned loopback port with a control service
//   - Watchdog shutting the plugin down after three missed host pings
//   - Diagnostic run of a collector with config policy defaults merged per metric
//   - Standalone HTTP responder serving the preamble
//   - Panic recovery around plugin callbacks and RPC handlers
//
// Basic Usage:
//
//	type randCollector struct{}
//
//	func (randCollector) GetConfigPolicy() (*snapplugin.ConfigPolicy, error) {
//		policy := snapplugin.NewConfigPolicy()
//		err := policy.AddNewIntRule([]string{"random"}, "limit", false, snapplugin.WithDefault(100))
//		return policy, err
//	}
//
//	// UpdateCatalog and Collect complete the Collector contract.
//
//	func main() {
//		meta := snapplugin.NewMeta(snapplugin.CollectorPluginType, "rand", 1)
//		os.Exit(snapplugin.StartPlugin(randCollector{}, meta))
//	}
//
// Logging:
// Records go to stderr through a slog-backed Logger whose level follows the
// host's LogLevel (1 debug to 5 fatal). Stdout carries only the preamble or
// the diagnostic report.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package snapplugin
