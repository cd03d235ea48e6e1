// flags.go: Command line flag registry
//
// The registry is built before arguments are parsed: the runtime seeds it
// with its own flags and plugin authors add theirs. It is then handed to the
// resolver, which turns it into urfave/cli flags.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"
)

// Runtime flag names.
const (
	FlagConfig         = "config"
	FlagStandAlone     = "stand-alone"
	FlagStandAlonePort = "stand-alone-port"
	FlagLogLevel       = "log-level"
	FlagConfigFile     = "config-file"
	FlagWatchConfig    = "watch-config"
	FlagVersion        = "version"
)

// Runtime flag defaults.
const (
	DefaultStandAlonePort = 8181
	DefaultFlagLogLevel   = 3
)

// Flag is one registered command line flag.
type Flag struct {
	Name        string
	Type        FlagType
	Description string
	Default     any
}

// Flags is an ordered registry of command line flags. The first registration
// of a name wins; later ones are ignored.
type Flags struct {
	flags map[string]Flag
	order []string
}

// NewFlags returns a registry holding the runtime's own flags.
func NewFlags() *Flags {
	f := &Flags{flags: make(map[string]Flag)}
	// The runtime flags are well-formed; Add cannot fail for them.
	_ = f.AddMultiple([]Flag{
		{Name: FlagConfig, Type: ValueFlag, Description: "JSON Snap global config"},
		{Name: FlagStandAlone, Type: ToggleFlag, Description: "enable stand alone mode"},
		{Name: FlagStandAlonePort, Type: ValueFlag, Description: "http port for stand alone mode", Default: DefaultStandAlonePort},
		{Name: FlagLogLevel, Type: ValueFlag, Description: "logging level 1:debug - 5:fatal", Default: DefaultFlagLogLevel},
		{Name: FlagConfigFile, Type: ValueFlag, Description: "JSON or YAML file with base config"},
		{Name: FlagWatchConfig, Type: ToggleFlag, Description: "reload LogLevel when the config file changes"},
	})
	return f
}

// Add registers a flag. A nil or false default leaves the description as is,
// any other default is appended to it. Registering an existing name is a
// no-op.
func (f *Flags) Add(name string, kind FlagType, description string, def any) error {
	if f.flags == nil {
		f.flags = make(map[string]Flag)
	}
	switch {
	case name == "":
		return NewInvalidFlagError(name, "name is required")
	case strings.HasPrefix(name, "-") || strings.ContainsAny(name, " =\t"):
		return NewInvalidFlagError(name, "name must not start with '-' or contain spaces or '='")
	case name == FlagVersion || name == "v" || name == "help" || name == "h":
		return NewInvalidFlagError(name, "name is reserved")
	}
	switch kind {
	case ValueFlag, ToggleFlag:
	default:
		return NewInvalidFlagError(name, fmt.Sprintf("unknown flag type %d", int(kind)))
	}

	if _, exists := f.flags[name]; exists {
		return nil
	}
	if def != nil && def != false {
		description = fmt.Sprintf("%s (default: %v)", description, def)
	}
	f.flags[name] = Flag{
		Name:        name,
		Type:        kind,
		Description: description,
		Default:     def,
	}
	f.order = append(f.order, name)
	return nil
}

// AddMultiple registers each flag in turn, stopping at the first error.
func (f *Flags) AddMultiple(flags []Flag) error {
	for _, fl := range flags {
		if err := f.Add(fl.Name, fl.Type, fl.Description, fl.Default); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the flag registered under name.
func (f *Flags) Lookup(name string) (Flag, bool) {
	fl, ok := f.flags[name]
	return fl, ok
}

// Len returns the number of registered flags.
func (f *Flags) Len() int {
	return len(f.order)
}

// All returns the registered flags sorted by name.
func (f *Flags) All() []Flag {
	out := make([]Flag, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.flags[name])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// cliFlags converts the registry into urfave/cli flags. Defaults are not
// handed to cli: they are already part of the description and are applied
// by the resolver for flags left unset.
func (f *Flags) cliFlags() []cli.Flag {
	out := make([]cli.Flag, 0, len(f.order)+1)
	for _, fl := range f.All() {
		switch fl.Type {
		case ToggleFlag:
			out = append(out, &cli.BoolFlag{Name: fl.Name, Usage: fl.Description})
		case ValueFlag:
			out = append(out, &cli.StringFlag{Name: fl.Name, Usage: fl.Description})
		}
	}
	out = append(out, &cli.BoolFlag{
		Name:    FlagVersion,
		Aliases: []string{"v"},
		Usage:   "show plugin's version number and exit",
	})
	return out
}

// values reads every registered flag from a parsed cli context. Value flags
// left unset take their default, or are omitted when they have none.
func (f *Flags) values(c *cli.Context) map[string]any {
	out := make(map[string]any, len(f.order))
	for _, name := range f.order {
		fl := f.flags[name]
		switch fl.Type {
		case ToggleFlag:
			out[name] = c.Bool(name)
		case ValueFlag:
			if c.IsSet(name) {
				out[name] = c.String(name)
			} else if fl.Default != nil {
				out[name] = fl.Default
			}
		}
	}
	return out
}
