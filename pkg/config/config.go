// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads terminal settings from flags, environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/gaskit/terminal/pkg/dispenser"
	"github.com/gaskit/terminal/pkg/gaskitlink"
	"github.com/gaskit/terminal/pkg/storage"
	"github.com/gaskit/terminal/pkg/terminal"
	"github.com/gaskit/terminal/pkg/transport"
)

// EnvPrefix prefixes every environment override, e.g. GASKIT_SERIAL_PORT.
const EnvPrefix = "GASKIT"

// Storage backends
const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

type BridgeConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify"`
}

type StationConfig struct {
	Post int `mapstructure:"post"`
}

type TimingConfig struct {
	Tick               time.Duration `mapstructure:"tick"`
	ResponseTimeout    time.Duration `mapstructure:"response_timeout"`
	InterbyteTimeout   time.Duration `mapstructure:"interbyte_timeout"`
	DelayAfterResponse time.Duration `mapstructure:"delay_after_response"`
	KeyDebounce        time.Duration `mapstructure:"key_debounce"`
	ViewTimeout        time.Duration `mapstructure:"view_timeout"`
	EditTimeout        time.Duration `mapstructure:"edit_timeout"`
	TransitionTimeout  time.Duration `mapstructure:"transition_timeout"`
	PauseTimeout       time.Duration `mapstructure:"pause_timeout"`
	NozzleUpLimit      time.Duration `mapstructure:"nozzle_up_limit"`
	NozzleWarningReset time.Duration `mapstructure:"nozzle_warning_reset"`
	CancelSettle       time.Duration `mapstructure:"cancel_settle"`
}

type StoreConfig struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	Size     int64  `mapstructure:"size"`
	PageSize int    `mapstructure:"page_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type TraceConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the complete terminal configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Station StationConfig `mapstructure:"station"`
	Timing  TimingConfig  `mapstructure:"timing"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Trace   TraceConfig   `mapstructure:"trace"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	timing := dispenser.DefaultTiming()

	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", gaskitlink.DefaultBaudRate)
	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.username", "")
	v.SetDefault("bridge.no_ssl_verify", false)
	v.SetDefault("station.post", 1)

	v.SetDefault("timing.tick", terminal.DefaultConfig().TickInterval)
	v.SetDefault("timing.response_timeout", gaskitlink.DefaultResponseTimeout)
	v.SetDefault("timing.interbyte_timeout", gaskitlink.DefaultInterByteTimeout)
	v.SetDefault("timing.delay_after_response", timing.DelayAfterResponse)
	v.SetDefault("timing.key_debounce", timing.KeyDebounce)
	v.SetDefault("timing.view_timeout", timing.ViewTimeout)
	v.SetDefault("timing.edit_timeout", timing.EditTimeout)
	v.SetDefault("timing.transition_timeout", timing.TransitionTimeout)
	v.SetDefault("timing.pause_timeout", timing.PauseTimeout)
	v.SetDefault("timing.nozzle_up_limit", timing.NozzleUpLimit)
	v.SetDefault("timing.nozzle_warning_reset", timing.NozzleWarningReset)
	v.SetDefault("timing.cancel_settle", timing.CancelSettle)

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "gaskit.store")
	v.SetDefault("store.size", storage.DefaultSize)
	v.SetDefault("store.page_size", storage.DefaultPageSize)

	v.SetDefault("log.level", "info")
	v.SetDefault("trace.path", "")
}

// Setup prepares v to read the config file and GASKIT_ environment
// variables. An empty file searches gaskit.yaml in . and $HOME/.gaskit.
func Setup(v *viper.Viper, file string) {
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("gaskit")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gaskit")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the config file if present and decodes v.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Station.Post < gaskitlink.MinStationPost || c.Station.Post > gaskitlink.MaxStationPost {
		return fmt.Errorf("%w: station.post %d out of range %d-%d",
			ErrInvalidConfig, c.Station.Post, gaskitlink.MinStationPost, gaskitlink.MaxStationPost)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial.baud must be positive", ErrInvalidConfig)
	}
	switch c.Store.Backend {
	case BackendFile, BackendLevelDB:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path required for %s backend", ErrInvalidConfig, c.Store.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if c.Store.PageSize <= 0 || c.Store.Size < int64(c.Store.PageSize) {
		return fmt.Errorf("%w: store size %d / page size %d", ErrInvalidConfig, c.Store.Size, c.Store.PageSize)
	}
	if c.Timing.Tick <= 0 || c.Timing.ResponseTimeout <= 0 || c.Timing.InterbyteTimeout <= 0 {
		return fmt.Errorf("%w: tick and link timeouts must be positive", ErrInvalidConfig)
	}
	if _, err := log.AllowLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Address returns the link address of the configured station post.
func (c *Config) Address() (gaskitlink.Address, error) {
	return gaskitlink.NewAddress(c.Station.Post)
}

// TransportConfig returns the link parameters for addr.
func (c *Config) TransportConfig(addr gaskitlink.Address) transport.Config {
	cfg := transport.DefaultConfig(addr)
	cfg.ResponseTimeout = c.Timing.ResponseTimeout
	cfg.InterByteTimeout = c.Timing.InterbyteTimeout
	return cfg
}

// DriverConfig returns the state machine timing and tick interval.
func (c *Config) DriverConfig() terminal.Config {
	cfg := terminal.DefaultConfig()
	cfg.TickInterval = c.Timing.Tick

	t := &cfg.Timing
	t.DelayAfterResponse = c.Timing.DelayAfterResponse
	t.KeyDebounce = c.Timing.KeyDebounce
	t.ResponseTimeout = c.Timing.ResponseTimeout
	t.ViewTimeout = c.Timing.ViewTimeout
	t.EditTimeout = c.Timing.EditTimeout
	t.TransitionTimeout = c.Timing.TransitionTimeout
	t.PauseTimeout = c.Timing.PauseTimeout
	t.NozzleUpLimit = c.Timing.NozzleUpLimit
	t.NozzleWarningReset = c.Timing.NozzleWarningReset
	t.CancelSettle = c.Timing.CancelSettle
	return cfg
}

// OpenDevice opens the configured storage backend.
func (c *Config) OpenDevice() (storage.Device, error) {
	switch c.Store.Backend {
	case BackendFile:
		dev, err := storage.OpenFile(c.Store.Path, c.Store.Size, c.Store.PageSize)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case BackendLevelDB:
		dir, name := filepath.Split(filepath.Clean(c.Store.Path))
		if dir == "" {
			dir = "."
		}
		dev, err := storage.OpenLevelDB(name, dir, c.Store.Size, c.Store.PageSize)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case BackendMemory:
		return storage.NewMemoryDevice(c.Store.Size, c.Store.PageSize), nil
	default:
		return nil, fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}
}

// NewLogger creates a logger writing to w filtered at level.
func NewLogger(w io.Writer, level string) (log.Logger, error) {
	option, err := log.AllowLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewFilter(log.NewTMLogger(log.NewSyncWriter(w)), option), nil
}
