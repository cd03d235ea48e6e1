// handshake_test.go: Tests for the handshake preamble
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreamble_Encoding(t *testing.T) {
	p, err := NewPreambleForPort(testMeta(), 4242)
	require.NoError(t, err)

	expected := `{"Meta":{"Name":"test-collector","Version":3,"Type":0,"RPCType":2,"RPCVersion":1,` +
		`"ConcurrencyCount":5,"Exclusive":false,"Unsecure":true,"CacheTTL":null,"RoutingStrategy":0},` +
		`"ListenAddress":"127.0.0.1:4242","Token":null,"PublicKey":null,"Type":0,"ErrorMessage":null,"State":0}`

	assert.Equal(t, expected, string(p.Encode()))
	assert.Equal(t, expected+"\n", string(p.Line()))
	assert.Equal(t, "127.0.0.1:4242", p.ListenAddress())
	assert.Equal(t, PluginSuccess, p.State())
	assert.Empty(t, p.ErrorMessage())
}

func TestPreamble_CacheTTLAndOptions(t *testing.T) {
	meta := NewMeta(ProcessorPluginType, "tagger", 2,
		WithCacheTTL(1500*time.Millisecond),
		WithRoutingStrategy(StickyRouting),
		WithExclusive(true),
		WithConcurrencyCount(1))

	p, err := NewPreamble(meta, "127.0.0.1:9000")
	require.NoError(t, err)

	encoded := string(p.Encode())
	assert.Contains(t, encoded, `"CacheTTL":1500000000`)
	assert.Contains(t, encoded, `"RoutingStrategy":1`)
	assert.Contains(t, encoded, `"Exclusive":true`)
	assert.Contains(t, encoded, `"ConcurrencyCount":1`)
	assert.Contains(t, encoded, `"Type":1,"ErrorMessage"`)
}

func TestPreamble_EncodeReturnsCopy(t *testing.T) {
	p, err := NewPreambleForPort(testMeta(), 1)
	require.NoError(t, err)

	first := p.Encode()
	first[0] = 'X'
	assert.Equal(t, byte('{'), p.Encode()[0])
}

func TestPreamble_WriteToSingleLine(t *testing.T) {
	p, err := NewPreambleForPort(testMeta(), 5555)
	require.NoError(t, err)

	w := &countingWriter{}
	n, err := p.WriteTo(w)
	require.NoError(t, err)

	out := w.String()
	assert.Equal(t, 1, w.writes)
	assert.Equal(t, int64(len(out)), n)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestPreamble_WriteToFailure(t *testing.T) {
	p, err := NewPreambleForPort(testMeta(), 5555)
	require.NoError(t, err)

	_, err = p.WriteTo(failingWriter{})
	require.Error(t, err)
	assert.True(t, hasCode(err, ErrCodePreamble))
}

func TestPreamble_RoundTrip(t *testing.T) {
	meta := NewStreamCollectorMeta("streamer", 7, WithCacheTTL(time.Minute))
	p, err := NewPreambleForPort(meta, 31337)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = p.WriteTo(&buf)
	require.NoError(t, err)

	decoded, err := DecodePreamble(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, meta, decoded.Meta)
	assert.Equal(t, StreamCollectorPluginType, decoded.Type)
	assert.Equal(t, GRPCStream, decoded.Meta.RPCType)
	assert.Equal(t, PluginSuccess, decoded.State)
	assert.Nil(t, decoded.Token)
	assert.Nil(t, decoded.PublicKey)
	assert.Nil(t, decoded.ErrorMessage)

	port, err := decoded.Port()
	require.NoError(t, err)
	assert.Equal(t, 31337, port)
}

func TestFailurePreamble(t *testing.T) {
	cause := NewBindInUseError("127.0.0.1:8181", stderrors.New("address already in use"))
	p, err := NewFailurePreamble(testMeta(), cause)
	require.NoError(t, err)

	assert.Equal(t, PluginFailure, p.State())
	assert.Empty(t, p.ListenAddress())
	assert.Equal(t, cause.Error(), p.ErrorMessage())

	decoded, err := DecodePreamble(p.Line())
	require.NoError(t, err)
	require.NotNil(t, decoded.ErrorMessage)
	assert.Equal(t, cause.Error(), *decoded.ErrorMessage)
	assert.Equal(t, PluginFailure, decoded.State)

	unknown, err := NewFailurePreamble(testMeta(), nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown error", unknown.ErrorMessage())
}

func TestDecodePreamble_Rejects(t *testing.T) {
	_, err := DecodePreamble([]byte("{\"Meta\":{}}\n{}"))
	require.Error(t, err)
	assert.True(t, hasCode(err, ErrCodePreamble))

	_, err = DecodePreamble([]byte("not json"))
	require.Error(t, err)
	assert.True(t, hasCode(err, ErrCodePreamble))
}

func TestPreamble_AdvertisesBoundPort(t *testing.T) {
	rpc := NewRPCServer(testMeta(), NewLivenessState(nil), NewNoOpLogger())
	port, err := rpc.Start()
	require.NoError(t, err)
	defer rpc.Stop()

	p, err := NewPreambleForPort(testMeta(), port)
	require.NoError(t, err)

	decoded, err := DecodePreamble(p.Line())
	require.NoError(t, err)
	advertised, err := decoded.Port()
	require.NoError(t, err)

	addr, err := rpc.Addr()
	require.NoError(t, err)
	assert.Equal(t, port, advertised)
	assert.Equal(t, addr, decoded.ListenAddress)
}
