// config_file.go: Base configuration file loading and live reload
//
// A plugin run by hand (diagnostic or standalone mode) may keep its base
// configuration in a JSON or YAML file passed with --config-file. With
// --watch-config the file is watched through Argus and a change of LogLevel
// is applied without a restart.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPollInterval is how often a watched config file is polled.
const DefaultConfigPollInterval = time.Second

// LoadConfigFile reads a configuration file. The format is detected from the
// extension: YAML is parsed with yaml.v3, JSON and the other formats Argus
// understands are parsed by Argus.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, NewConfigFileError(path, "read failed", err)
	}
	return parseConfigBytes(path, data)
}

func parseConfigBytes(path string, data []byte) (Config, error) {
	format := argus.DetectFormat(path)

	switch format {
	case argus.FormatYAML:
		config := Config{}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, NewConfigFileError(path, "invalid YAML", err)
		}
		return config, nil

	case argus.FormatJSON:
		configMap, err := argus.ParseConfig(data, format)
		if err != nil {
			return nil, NewConfigFileError(path, "invalid JSON", err)
		}
		return Config(configMap), nil

	default:
		configMap, err := argus.ParseConfig(data, format)
		if err != nil {
			return nil, NewConfigFileError(path, "unsupported or invalid config format", err)
		}
		return Config(configMap), nil
	}
}

// ConfigFileWatcher reloads a config file whenever Argus reports a change.
type ConfigFileWatcher struct {
	path     string
	watcher  *argus.Watcher
	onChange func(Config)
	logger   Logger

	running  atomic.Bool
	reloads  atomic.Int64
	stopOnce sync.Once
}

// NewConfigFileWatcher creates a watcher for path. onChange receives each
// successfully parsed version of the file.
func NewConfigFileWatcher(path string, pollInterval time.Duration, onChange func(Config), logger Logger) *ConfigFileWatcher {
	if logger == nil {
		logger = DefaultLogger()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultConfigPollInterval
	}

	watcher := argus.New(argus.Config{
		PollInterval:         pollInterval,
		CacheTTL:             pollInterval / 2,
		MaxWatchedFiles:      1,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			logger.Error("Config file watching error", "error", err, "file", filepath)
		},
	})

	return &ConfigFileWatcher{
		path:     path,
		watcher:  watcher,
		onChange: onChange,
		logger:   logger,
	}
}

// Start begins watching. It may be called once.
func (w *ConfigFileWatcher) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return NewConfigFileError(w.path, "watcher already started", nil)
	}
	if err := w.watcher.Watch(w.path, w.handleChange); err != nil {
		w.running.Store(false)
		return NewConfigFileError(w.path, "watch failed", err)
	}
	if err := w.watcher.Start(); err != nil {
		w.running.Store(false)
		return NewConfigFileError(w.path, "watcher start failed", err)
	}
	w.logger.Info("Watching config file", "path", w.path)
	return nil
}

// Stop ends watching. It is idempotent.
func (w *ConfigFileWatcher) Stop() error {
	var stopErr error
	w.stopOnce.Do(func() {
		if !w.running.CompareAndSwap(true, false) {
			return
		}
		if err := w.watcher.Stop(); err != nil {
			stopErr = NewConfigFileError(w.path, "watcher stop failed", err)
		}
	})
	return stopErr
}

// Reloads returns the number of successful reloads.
func (w *ConfigFileWatcher) Reloads() int64 {
	return w.reloads.Load()
}

func (w *ConfigFileWatcher) handleChange(event argus.ChangeEvent) {
	defer withStackRecover(w.logger)()
	w.logger.Debug("Config file change detected",
		"path", event.Path,
		"mod_time", event.ModTime,
		"size", event.Size,
		"is_create", event.IsCreate,
		"is_delete", event.IsDelete,
		"is_modify", event.IsModify)

	if event.IsDelete {
		w.logger.Warn("Config file was deleted, keeping current config", "path", event.Path)
		return
	}

	config, err := LoadConfigFile(w.path)
	if err != nil {
		w.logger.Error("Config reload failed", "path", w.path, "error", err)
		return
	}
	w.reloads.Add(1)
	if w.onChange != nil {
		w.onChange(config)
	}
}

// logLevelReloader returns a change handler that re-applies LogLevel to logger.
func logLevelReloader(logger Logger) func(Config) {
	return func(config Config) {
		if !config.Has(ConfigKeyLogLevel) {
			return
		}
		level, err := config.LogLevel()
		if err != nil {
			logger.Error("The log level should be between 1 and 5.",
				"given", config[ConfigKeyLogLevel],
				"error", err)
			return
		}
		if applyLogLevel(logger, level) {
			logger.Info("Log level reloaded", "level", level.String())
		}
	}
}
