// handshake.go: Handshake preamble announcing the plugin to its host
//
// This file implements the single-line JSON document a plugin writes on start-up
// to tell the controlling host who it is and where its RPC endpoint listens. The
// document layout is fixed: the host parses exactly one line of input.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"strconv"
)

// LoopbackHost is the address the RPC endpoint binds to and advertises.
const LoopbackHost = "127.0.0.1"

// Preamble is the handshake document built once per process start.
//
// A Preamble is immutable: every accessor returns a copy and the encoded
// form is computed at construction.
type Preamble struct {
	meta          Meta
	listenAddress string
	state         ResponseState
	errorMessage  *string
	encoded       []byte
}

// preambleJSON fixes the field order of the handshake document.
type preambleJSON struct {
	Meta          Meta          `json:"Meta"`
	ListenAddress string        `json:"ListenAddress"`
	Token         *string       `json:"Token"`
	PublicKey     *string       `json:"PublicKey"`
	Type          PluginType    `json:"Type"`
	ErrorMessage  *string       `json:"ErrorMessage"`
	State         ResponseState `json:"State"`
}

// NewPreamble builds a success preamble advertising listenAddress.
func NewPreamble(meta Meta, listenAddress string) (*Preamble, error) {
	return newPreamble(meta, listenAddress, PluginSuccess, nil)
}

// NewPreambleForPort builds a success preamble for a loopback port.
func NewPreambleForPort(meta Meta, port int) (*Preamble, error) {
	return NewPreamble(meta, net.JoinHostPort(LoopbackHost, strconv.Itoa(port)))
}

// NewFailurePreamble builds a preamble reporting a start-up failure to the
// host. The listen address is left empty.
func NewFailurePreamble(meta Meta, cause error) (*Preamble, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return newPreamble(meta, "", PluginFailure, &msg)
}

func newPreamble(meta Meta, listenAddress string, state ResponseState, errMsg *string) (*Preamble, error) {
	doc := preambleJSON{
		Meta:          meta,
		ListenAddress: listenAddress,
		Type:          meta.Type,
		ErrorMessage:  errMsg,
		State:         state,
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, NewPreambleError("encoding failed", err)
	}

	return &Preamble{
		meta:          meta,
		listenAddress: listenAddress,
		state:         state,
		errorMessage:  errMsg,
		encoded:       encoded,
	}, nil
}

// Meta returns the advertised identity.
func (p *Preamble) Meta() Meta { return p.meta }

// ListenAddress returns the advertised "host:port".
func (p *Preamble) ListenAddress() string { return p.listenAddress }

// State returns the advertised outcome.
func (p *Preamble) State() ResponseState { return p.state }

// ErrorMessage returns the failure reason, empty on success.
func (p *Preamble) ErrorMessage() string {
	if p.errorMessage == nil {
		return ""
	}
	return *p.errorMessage
}

// Encode returns the JSON document without the trailing newline.
func (p *Preamble) Encode() []byte {
	out := make([]byte, len(p.encoded))
	copy(out, p.encoded)
	return out
}

// Line returns the document terminated by a single newline.
func (p *Preamble) Line() []byte {
	out := make([]byte, 0, len(p.encoded)+1)
	out = append(out, p.encoded...)
	return append(out, '\n')
}

// WriteTo writes the preamble line in a single write call, so the host never
// observes a partial document. It implements io.WriterTo.
func (p *Preamble) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Line())
	if err != nil {
		return int64(n), NewPreambleError("write failed", err)
	}
	if syncer, ok := w.(interface{ Sync() error }); ok {
		// Sync on a terminal or pipe reports EINVAL, which is harmless here.
		_ = syncer.Sync()
	}
	return int64(n), nil
}

// DecodedPreamble is the host-side view of a handshake document.
type DecodedPreamble struct {
	Meta          Meta
	ListenAddress string
	Token         *string
	PublicKey     *string
	Type          PluginType
	ErrorMessage  *string
	State         ResponseState
}

// Port returns the port part of ListenAddress.
func (d *DecodedPreamble) Port() (int, error) {
	_, portStr, err := net.SplitHostPort(d.ListenAddress)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

// DecodePreamble parses one handshake line as produced by WriteTo.
func DecodePreamble(line []byte) (*DecodedPreamble, error) {
	line = bytes.TrimRight(line, "\r\n")
	if bytes.ContainsRune(line, '\n') {
		return nil, NewPreambleError("document spans multiple lines", stdErrMultiLine)
	}

	var doc preambleJSON
	if err := json.Unmarshal(line, &doc); err != nil {
		return nil, NewPreambleError("decoding failed", err)
	}

	return &DecodedPreamble{
		Meta:          doc.Meta,
		ListenAddress: doc.ListenAddress,
		Token:         doc.Token,
		PublicKey:     doc.PublicKey,
		Type:          doc.Type,
		ErrorMessage:  doc.ErrorMessage,
		State:         doc.State,
	}, nil
}
