// plugin.go: Capability contracts implemented by plugin authors
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"
)

// Plugin is the capability every plugin provides: declaring the
// configuration it accepts.
type Plugin interface {
	// GetConfigPolicy returns the keys the plugin understands with their
	// rules. A nil policy means no configuration.
	GetConfigPolicy() (*ConfigPolicy, error)
}

// Collector gathers metrics.
type Collector interface {
	Plugin

	// UpdateCatalog returns the metrics the plugin can collect under cfg.
	UpdateCatalog(ctx context.Context, cfg Config) ([]Metric, error)

	// Collect returns the requested metrics with their data filled in.
	// Each metric carries its own configuration.
	Collect(ctx context.Context, metrics []Metric) ([]Metric, error)
}

// Processor transforms metrics on their way to a publisher.
type Processor interface {
	Plugin

	Process(ctx context.Context, metrics []Metric, cfg Config) ([]Metric, error)
}

// Publisher sends metrics to an external system.
type Publisher interface {
	Plugin

	Publish(ctx context.Context, metrics []Metric, cfg Config) error
}

// StreamCollector pushes metrics to the host as they become available
// instead of being polled.
type StreamCollector interface {
	Plugin

	UpdateCatalog(ctx context.Context, cfg Config) ([]Metric, error)

	// StreamMetrics receives the requested metrics on in and sends batches on
	// out until ctx is done. Non-fatal problems are reported on errs.
	StreamMetrics(ctx context.Context, in <-chan []Metric, out chan<- []Metric, errs chan<- string) error
}

// checkCapability reports whether plugin implements the contract its kind
// requires.
func checkCapability(kind PluginType, plugin Plugin) bool {
	switch kind {
	case CollectorPluginType:
		_, ok := plugin.(Collector)
		return ok
	case ProcessorPluginType:
		_, ok := plugin.(Processor)
		return ok
	case PublisherPluginType:
		_, ok := plugin.(Publisher)
		return ok
	case StreamCollectorPluginType:
		_, ok := plugin.(StreamCollector)
		return ok
	default:
		return false
	}
}
