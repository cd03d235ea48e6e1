// types.go: Plugin identity and the closed enumerations shared by the runtime
//
// This file contains the plugin identity (Meta) and every enumeration the
// runtime exchanges with the host: plugin kinds, RPC kinds, routing strategies,
// handshake response states, operating modes and flag kinds. Enumerations are
// closed sets encoded on the wire as their integer codes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"encoding/json"
	"fmt"
	"time"
)

// PluginType identifies the kind of plugin running in this process.
type PluginType int

const (
	CollectorPluginType PluginType = iota
	ProcessorPluginType
	PublisherPluginType
	StreamCollectorPluginType
)

// String returns the lower-case kind name used in diagnostics and logs.
func (t PluginType) String() string {
	switch t {
	case CollectorPluginType:
		return "collector"
	case ProcessorPluginType:
		return "processor"
	case PublisherPluginType:
		return "publisher"
	case StreamCollectorPluginType:
		return "stream_collector"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the declared plugin kinds.
func (t PluginType) Valid() bool {
	switch t {
	case CollectorPluginType, ProcessorPluginType, PublisherPluginType, StreamCollectorPluginType:
		return true
	default:
		return false
	}
}

// RPCType is the RPC flavour the host must use to talk to the plugin.
type RPCType int

const (
	NativeRPC RPCType = iota
	JSONRPC
	GRPC
	GRPCStream
)

// String returns the host-facing RPC type name.
func (r RPCType) String() string {
	switch r {
	case NativeRPC:
		return "Native"
	case JSONRPC:
		return "JSON"
	case GRPC:
		return "gRPC"
	case GRPCStream:
		return "gRPCStream"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the declared RPC types.
func (r RPCType) Valid() bool {
	switch r {
	case NativeRPC, JSONRPC, GRPC, GRPCStream:
		return true
	default:
		return false
	}
}

// RoutingStrategy tells the host how to route calls between running
// instances of the plugin.
//
//   - LRURouting (default): calls go to the least recently used instance
//   - StickyRouting: calls for a task always go to the same instance
//   - ConfigRouting: calls go to instances whose configuration matches the task
type RoutingStrategy int

const (
	LRURouting RoutingStrategy = iota
	StickyRouting
	ConfigRouting
)

// String returns a human-readable representation of the routing strategy.
func (s RoutingStrategy) String() string {
	switch s {
	case LRURouting:
		return "least-recently-used"
	case StickyRouting:
		return "sticky"
	case ConfigRouting:
		return "config-based"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the declared routing strategies.
func (s RoutingStrategy) Valid() bool {
	switch s {
	case LRURouting, StickyRouting, ConfigRouting:
		return true
	default:
		return false
	}
}

// ResponseState is the outcome advertised in the handshake preamble.
type ResponseState int

const (
	PluginSuccess ResponseState = iota
	PluginFailure
)

// String returns the state name used by the host protocol.
func (s ResponseState) String() string {
	switch s {
	case PluginSuccess:
		return "plugin_success"
	case PluginFailure:
		return "plugin_failure"
	default:
		return "unknown"
	}
}

// Mode is the operating mode selected once at start-up.
type Mode int

const (
	NormalMode Mode = iota
	DiagnosticMode
	StandaloneMode
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case NormalMode:
		return "normal"
	case DiagnosticMode:
		return "diagnostic"
	case StandaloneMode:
		return "standalone"
	default:
		return "unknown"
	}
}

// FlagType tells whether a command line flag stores a value or is a toggle.
type FlagType int

const (
	ValueFlag FlagType = iota
	ToggleFlag
)

// String returns a human-readable representation of the flag type.
func (f FlagType) String() string {
	switch f {
	case ValueFlag:
		return "value"
	case ToggleFlag:
		return "toggle"
	default:
		return "unknown"
	}
}

// Default identity values.
const (
	DefaultConcurrencyCount = 5
	DefaultRPCVersion       = 1
)

// Meta is the immutable identity of a plugin.
//
// It is built once by the plugin author and advertised to the host in the
// handshake preamble. Name, Version, RPCType and RPCVersion are fixed for the
// lifetime of the process.
type Meta struct {
	Type    PluginType
	Name    string
	Version int

	// ConcurrencyCount is the max number of concurrent calls an instance may
	// take. With 5 tasks and a count of 2 the host runs 3 instances.
	ConcurrencyCount int

	RoutingStrategy RoutingStrategy

	// Exclusive forces a single running instance regardless of task count.
	Exclusive bool

	// CacheTTL overrides the host's default metric cache TTL. Nil leaves the
	// host default in place.
	CacheTTL *time.Duration

	RPCType    RPCType
	RPCVersion int

	// Unsecure disables transport encryption between host and plugin.
	Unsecure bool
}

// MetaOption customizes a Meta built by NewMeta.
type MetaOption func(*Meta)

// WithConcurrencyCount sets the max concurrent calls per instance.
func WithConcurrencyCount(n int) MetaOption {
	return func(m *Meta) {
		m.ConcurrencyCount = n
	}
}

// WithRoutingStrategy overrides the default least-recently-used routing.
func WithRoutingStrategy(s RoutingStrategy) MetaOption {
	return func(m *Meta) {
		m.RoutingStrategy = s
	}
}

// WithExclusive marks the plugin as single-instance.
func WithExclusive(exclusive bool) MetaOption {
	return func(m *Meta) {
		m.Exclusive = exclusive
	}
}

// WithCacheTTL overrides the host cache TTL for the plugin's metrics.
func WithCacheTTL(ttl time.Duration) MetaOption {
	return func(m *Meta) {
		m.CacheTTL = &ttl
	}
}

// WithRPCType overrides the RPC type.
func WithRPCType(t RPCType) MetaOption {
	return func(m *Meta) {
		m.RPCType = t
	}
}

// WithRPCVersion overrides the RPC version.
func WithRPCVersion(v int) MetaOption {
	return func(m *Meta) {
		m.RPCVersion = v
	}
}

// WithUnsecure toggles transport encryption off (true) or on (false).
func WithUnsecure(unsecure bool) MetaOption {
	return func(m *Meta) {
		m.Unsecure = unsecure
	}
}

// NewMeta builds a plugin identity with the host defaults: concurrency 5,
// least-recently-used routing, gRPC version 1, unsecure transport.
func NewMeta(kind PluginType, name string, version int, opts ...MetaOption) Meta {
	m := Meta{
		Type:             kind,
		Name:             name,
		Version:          version,
		ConcurrencyCount: DefaultConcurrencyCount,
		RoutingStrategy:  LRURouting,
		RPCType:          GRPC,
		RPCVersion:       DefaultRPCVersion,
		Unsecure:         true,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// NewStreamCollectorMeta builds the identity of a stream collector. The RPC
// type is always gRPCStream, whatever the options say.
func NewStreamCollectorMeta(name string, version int, opts ...MetaOption) Meta {
	m := NewMeta(StreamCollectorPluginType, name, version, opts...)
	m.RPCType = GRPCStream
	return m
}

// Validate checks that the identity can be advertised to a host.
func (m Meta) Validate() error {
	switch {
	case m.Name == "":
		return NewInvalidMetaError("name", "plugin name is required")
	case m.Version <= 0:
		return NewInvalidMetaError("version", fmt.Sprintf("plugin version must be positive, got %d", m.Version))
	case !m.Type.Valid():
		return NewInvalidMetaError("type", fmt.Sprintf("unknown plugin type %d", int(m.Type)))
	case !m.RPCType.Valid():
		return NewInvalidMetaError("rpc_type", fmt.Sprintf("unknown rpc type %d", int(m.RPCType)))
	case !m.RoutingStrategy.Valid():
		return NewInvalidMetaError("routing_strategy", fmt.Sprintf("unknown routing strategy %d", int(m.RoutingStrategy)))
	case m.ConcurrencyCount <= 0:
		return NewInvalidMetaError("concurrency_count", "concurrency count must be positive")
	}
	return nil
}

// metaJSON fixes the field order and names of the preamble's Meta object.
type metaJSON struct {
	Name             string          `json:"Name"`
	Version          int             `json:"Version"`
	Type             PluginType      `json:"Type"`
	RPCType          RPCType         `json:"RPCType"`
	RPCVersion       int             `json:"RPCVersion"`
	ConcurrencyCount int             `json:"ConcurrencyCount"`
	Exclusive        bool            `json:"Exclusive"`
	Unsecure         bool            `json:"Unsecure"`
	CacheTTL         *int64          `json:"CacheTTL"`
	RoutingStrategy  RoutingStrategy `json:"RoutingStrategy"`
}

// MarshalJSON encodes the identity the way the host expects it. CacheTTL is
// sent as nanoseconds, or null when unset.
func (m Meta) MarshalJSON() ([]byte, error) {
	out := metaJSON{
		Name:             m.Name,
		Version:          m.Version,
		Type:             m.Type,
		RPCType:          m.RPCType,
		RPCVersion:       m.RPCVersion,
		ConcurrencyCount: m.ConcurrencyCount,
		Exclusive:        m.Exclusive,
		Unsecure:         m.Unsecure,
		RoutingStrategy:  m.RoutingStrategy,
	}
	if m.CacheTTL != nil {
		ns := int64(*m.CacheTTL)
		out.CacheTTL = &ns
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *Meta) UnmarshalJSON(data []byte) error {
	var in metaJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Meta{
		Type:             in.Type,
		Name:             in.Name,
		Version:          in.Version,
		ConcurrencyCount: in.ConcurrencyCount,
		RoutingStrategy:  in.RoutingStrategy,
		Exclusive:        in.Exclusive,
		RPCType:          in.RPCType,
		RPCVersion:       in.RPCVersion,
		Unsecure:         in.Unsecure,
	}
	if in.CacheTTL != nil {
		ttl := time.Duration(*in.CacheTTL)
		m.CacheTTL = &ttl
	}
	return nil
}
