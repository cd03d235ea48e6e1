// flags_test.go: Tests for the command line flag registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlags_RuntimeFlags(t *testing.T) {
	flags := NewFlags()
	assert.Equal(t, 6, flags.Len())

	for _, name := range []string{FlagConfig, FlagStandAlone, FlagStandAlonePort, FlagLogLevel, FlagConfigFile, FlagWatchConfig} {
		_, ok := flags.Lookup(name)
		assert.True(t, ok, name)
	}

	port, _ := flags.Lookup(FlagStandAlonePort)
	assert.Equal(t, "http port for stand alone mode (default: 8181)", port.Description)
	assert.Equal(t, ValueFlag, port.Type)

	level, _ := flags.Lookup(FlagLogLevel)
	assert.Equal(t, "logging level 1:debug - 5:fatal (default: 3)", level.Description)

	standAlone, _ := flags.Lookup(FlagStandAlone)
	assert.Equal(t, ToggleFlag, standAlone.Type)
	assert.Equal(t, "enable stand alone mode", standAlone.Description)
}

func TestFlags_Add(t *testing.T) {
	tests := []struct {
		name        string
		flag        string
		kind        FlagType
		def         any
		description string
		wantErr     bool
	}{
		{"value with default", "interval", ValueFlag, "10s", "poll interval (default: 10s)", false},
		{"false default not shown", "dry-run", ToggleFlag, false, "poll interval", false},
		{"nil default not shown", "target", ValueFlag, nil, "poll interval", false},
		{"zero default shown", "retries", ValueFlag, 0, "poll interval (default: 0)", false},
		{"empty name", "", ValueFlag, nil, "", true},
		{"dash prefix", "-x", ValueFlag, nil, "", true},
		{"space in name", "a b", ValueFlag, nil, "", true},
		{"reserved version", FlagVersion, ToggleFlag, nil, "", true},
		{"reserved help", "help", ToggleFlag, nil, "", true},
		{"unknown type", "odd", FlagType(9), nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := NewFlags()
			err := flags.Add(tt.flag, tt.kind, "poll interval", tt.def)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, hasCode(err, ErrCodeInvalidFlag))
				assert.Equal(t, 6, flags.Len())
				return
			}
			require.NoError(t, err)
			fl, ok := flags.Lookup(tt.flag)
			require.True(t, ok)
			assert.Equal(t, tt.description, fl.Description)
			assert.Equal(t, tt.def, fl.Default)
		})
	}
}

func TestFlags_FirstRegistrationWins(t *testing.T) {
	flags := NewFlags()
	require.NoError(t, flags.Add(FlagStandAlonePort, ValueFlag, "something else", 9999))

	port, _ := flags.Lookup(FlagStandAlonePort)
	assert.Equal(t, DefaultStandAlonePort, port.Default)
	assert.Equal(t, 6, flags.Len())
}

func TestFlags_AllSortedByName(t *testing.T) {
	flags := NewFlags()
	require.NoError(t, flags.AddMultiple([]Flag{
		{Name: "zeta", Type: ToggleFlag},
		{Name: "alpha", Type: ValueFlag},
	}))

	var names []string
	for _, fl := range flags.All() {
		names = append(names, fl.Name)
	}
	assert.Equal(t, []string{
		"alpha", FlagConfig, FlagConfigFile, FlagLogLevel, FlagStandAlone, FlagStandAlonePort, FlagWatchConfig, "zeta",
	}, names)
}

func TestFlags_AddMultipleStopsAtError(t *testing.T) {
	flags := NewFlags()
	err := flags.AddMultiple([]Flag{
		{Name: "first", Type: ValueFlag},
		{Name: "", Type: ValueFlag},
		{Name: "third", Type: ValueFlag},
	})
	require.Error(t, err)

	_, ok := flags.Lookup("first")
	assert.True(t, ok)
	_, ok = flags.Lookup("third")
	assert.False(t, ok)
}

func TestFlags_ZeroValue(t *testing.T) {
	var flags Flags
	require.NoError(t, flags.Add("only", ToggleFlag, "single flag", nil))
	assert.Equal(t, 1, flags.Len())
	assert.Len(t, flags.cliFlags(), 2)
}
