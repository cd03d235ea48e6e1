// config.go: Effective configuration and operating mode resolution
//
// This file merges the command line and the framework-supplied JSON document
// into a single effective configuration and selects the operating mode. The
// mode is decided once:
//
//   - a positional framework config selects normal mode
//   - otherwise --stand-alone selects standalone mode
//   - otherwise the plugin runs its diagnostic
//
// Configuration problems never abort start-up: malformed JSON degrades to an
// empty configuration and an out-of-range LogLevel keeps the default level.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// Keys the runtime reads from the effective configuration.
const (
	ConfigKeyLogLevel    = "LogLevel"
	ConfigKeyPingTimeout = "PingTimeoutDuration"
)

// Config is the effective configuration: a mapping from key to JSON-typed
// value. JSON numbers are float64.
type Config map[string]any

// Clone returns a shallow copy of c. A nil Config clones to an empty one.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// GetInt returns key as an integer when it holds an integral number.
func (c Config) GetInt(key string) (int64, bool) {
	return asInt64(c[key])
}

// GetFloat returns key as a float when it holds a number.
func (c Config) GetFloat(key string) (float64, bool) {
	return asFloat64(c[key])
}

// GetString returns key when it holds a string.
func (c Config) GetString(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

// GetBool returns key when it holds a bool.
func (c Config) GetBool(key string) (bool, bool) {
	b, ok := c[key].(bool)
	return b, ok
}

// LogLevel returns the host log level. An absent level yields the default
// warn level; a present one outside 1-5 yields the default level and a
// CONFIG_1702 error.
func (c Config) LogLevel() (LogLevel, error) {
	raw, ok := c[ConfigKeyLogLevel]
	if !ok {
		return DefaultLogLevel, nil
	}
	n, ok := asInt64(raw)
	if !ok {
		if s, isString := raw.(string); isString {
			n, ok = parseInt64(s)
		}
	}
	if !ok || !LogLevel(n).Valid() {
		return DefaultLogLevel, NewInvalidLogLevelError(raw)
	}
	return LogLevel(n), nil
}

// PingTimeout returns PingTimeoutDuration (milliseconds) as a duration, or
// DefaultPingTimeout when absent, non-numeric or not positive.
func (c Config) PingTimeout() time.Duration {
	ms, ok := asFloat64(c[ConfigKeyPingTimeout])
	if !ok || ms <= 0 {
		return DefaultPingTimeout
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// ParseConfigJSON parses a JSON object. Anything else, including valid JSON
// that is not an object, returns an empty Config and a CONFIG_1701 error.
func ParseConfigJSON(raw string) (Config, error) {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Config{}, NewInvalidJSONConfigError(raw, err)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return Config{}, NewInvalidJSONConfigError(raw, fmt.Errorf("expected a JSON object, got %T", parsed))
	}
	return Config(obj), nil
}

// Resolution is the outcome of argument resolution.
type Resolution struct {
	Mode           Mode
	Config         Config
	LogLevel       LogLevel
	PingTimeout    time.Duration
	StandalonePort int
	ConfigFile     string
	WatchConfig    bool

	// FlagValues holds every registered flag, by name. Toggles are bools,
	// value flags are strings when given and their default otherwise.
	FlagValues map[string]any

	// Exit is set when the arguments asked for help or version output,
	// which has already been written.
	Exit bool
}

// ConfigResolver turns command line arguments into a Resolution.
type ConfigResolver struct {
	meta   Meta
	flags  *Flags
	logger Logger
	out    io.Writer
}

// NewConfigResolver creates a resolver for meta. A nil flags registry uses
// the runtime flags only; out receives help and version output.
func NewConfigResolver(meta Meta, flags *Flags, logger Logger, out io.Writer) *ConfigResolver {
	if flags == nil {
		flags = NewFlags()
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	if out == nil {
		out = os.Stdout
	}
	return &ConfigResolver{meta: meta, flags: flags, logger: logger, out: out}
}

// Resolve parses args (without the program name) with the given registry.
func Resolve(args []string, flags *Flags, meta Meta, logger Logger) (*Resolution, error) {
	return NewConfigResolver(meta, flags, logger, os.Stdout).Resolve(args)
}

// Resolve parses args (without the program name). Only malformed arguments
// are returned as errors; configuration problems are logged and degraded.
func (r *ConfigResolver) Resolve(args []string) (*Resolution, error) {
	var res *Resolution
	var actionErr error

	app := &cli.App{
		Name:            r.meta.Name,
		Usage:           "a Snap framework plugin",
		UsageText:       r.meta.Name + " [options]",
		HideVersion:     true,
		HideHelpCommand: true,
		Writer:          r.out,
		ErrWriter:       r.out,
		Flags:           r.flags.cliFlags(),
		ExitErrHandler:  func(*cli.Context, error) {},
		Action: func(c *cli.Context) error {
			if c.Bool(FlagVersion) {
				fmt.Fprintf(r.out, "%s v%d\n", r.meta.Name, r.meta.Version)
				res = &Resolution{Exit: true}
				return nil
			}
			res, actionErr = r.resolve(c)
			return actionErr
		},
	}

	argv := make([]string, 0, len(args)+1)
	argv = append(argv, r.meta.Name)
	argv = append(argv, args...)

	if err := app.Run(argv); err != nil {
		if actionErr != nil {
			return nil, actionErr
		}
		return nil, NewArgumentsError(args, err)
	}
	if res == nil {
		// cli printed the help text and skipped the action.
		return &Resolution{Exit: true}, nil
	}
	return res, nil
}

func (r *ConfigResolver) resolve(c *cli.Context) (*Resolution, error) {
	values := r.flags.values(c)

	res := &Resolution{
		FlagValues:  values,
		WatchConfig: c.Bool(FlagWatchConfig),
		ConfigFile:  c.String(FlagConfigFile),
	}

	var source string
	hasSource := false
	switch {
	case c.Args().Len() > 0:
		res.Mode = NormalMode
		source, hasSource = c.Args().First(), true
	case c.Bool(FlagStandAlone):
		res.Mode = StandaloneMode
		source, hasSource = c.String(FlagConfig), c.IsSet(FlagConfig)
	default:
		res.Mode = DiagnosticMode
		source, hasSource = c.String(FlagConfig), c.IsSet(FlagConfig)
	}

	port, err := intFlagValue(values, FlagStandAlonePort)
	if err != nil {
		return nil, err
	}
	res.StandalonePort = port

	// The log-level flag seeds the config; a config document replaces it.
	config := Config{}
	if lvl, ok := values[FlagLogLevel]; ok {
		if n, isInt := flagInt(lvl); isInt {
			config[ConfigKeyLogLevel] = n
		} else {
			config[ConfigKeyLogLevel] = lvl
		}
	}

	fileConfig := Config{}
	if res.ConfigFile != "" {
		loaded, err := LoadConfigFile(res.ConfigFile)
		if err != nil {
			r.logger.Error("Ignoring config file", "path", res.ConfigFile, "error", err)
		} else {
			fileConfig = loaded
		}
	}
	for k, v := range fileConfig {
		config[k] = v
	}

	if hasSource {
		parsed, err := ParseConfigJSON(source)
		if err != nil {
			r.logger.Warn(fmt.Sprintf("Invalid config provided: expected JSON (provided=%s).", source),
				"error", err)
		}
		config = fileConfig.Clone()
		for k, v := range parsed {
			config[k] = v
		}
	}

	res.Config = config
	res.LogLevel = r.resolveLogLevel(config)
	res.PingTimeout = config.PingTimeout()

	r.logger.Debug("Arguments resolved",
		"mode", res.Mode.String(),
		"log_level", res.LogLevel.String(),
		"ping_timeout", res.PingTimeout)

	return res, nil
}

// resolveLogLevel applies the configured level to the logger when it can
// change its level. An invalid level is reported and leaves the default.
func (r *ConfigResolver) resolveLogLevel(config Config) LogLevel {
	level, err := config.LogLevel()
	if err != nil {
		r.logger.Error("The log level should be between 1 and 5.",
			"given", config[ConfigKeyLogLevel],
			"error", err)
	}
	if applyLogLevel(r.logger, level) {
		r.logger.Info("Log level set", "level", level.String())
	}
	return level
}

// intFlagValue reads a value flag as an int.
func intFlagValue(values map[string]any, name string) (int, error) {
	raw, ok := values[name]
	if !ok {
		return 0, nil
	}
	n, ok := flagInt(raw)
	if !ok {
		return 0, NewInvalidFlagError(name, fmt.Sprintf("expected an integer, got %q", fmt.Sprint(raw)))
	}
	return int(n), nil
}

func flagInt(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		return parseInt64(s)
	}
	return asInt64(v)
}

func parseInt64(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

// asInt64 converts integral numbers of any Go numeric type.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		f := float64(n)
		return int64(f), f == math.Trunc(f) && !math.IsInf(f, 0)
	case float64:
		return int64(n), n == math.Trunc(n) && !math.IsInf(n, 0) && !math.IsNaN(n)
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// asFloat64 converts any Go numeric type.
func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		if i, ok := asInt64(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}
