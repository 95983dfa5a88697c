package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timzifer/ringd/settings"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StorePebble = "pebble"
)

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig toggles metric collection. Listen exposes the Prometheus
// handler when set.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
}

// StoreConfig selects the settings backing store. Seed values are written on
// open for keys that are not stored yet.
type StoreConfig struct {
	Driver string                       `yaml:"driver,omitempty"`
	Path   string                       `yaml:"path,omitempty"`
	Seed   map[string]map[string]string `yaml:"seed,omitempty"`
}

// SettingsConfig configures the settings registry.
type SettingsConfig struct {
	UserID int `yaml:"user_id,omitempty"`
}

// RingerConfig tunes the ring arbiter.
type RingerConfig struct {
	VibrationPattern []Duration `yaml:"vibration_pattern,omitempty"`
	VibrationRepeat  *int       `yaml:"vibration_repeat,omitempty"`
	DefaultLine      int        `yaml:"default_line,omitempty"`
}

// Pattern returns the configured vibration waveform, or nil for the default.
func (r RingerConfig) Pattern() []time.Duration {
	if len(r.VibrationPattern) == 0 {
		return nil
	}
	out := make([]time.Duration, len(r.VibrationPattern))
	for i, d := range r.VibrationPattern {
		out[i] = d.Duration
	}
	return out
}

// FilterConfig configures the interruption filter. An empty rule lets every
// call ring.
type FilterConfig struct {
	Rule         string `yaml:"rule,omitempty"`
	AllowUnknown *bool  `yaml:"allow_unknown,omitempty"`
}

// MQTTTopics names the bridge topics.
type MQTTTopics struct {
	Events   string `yaml:"events,omitempty"`
	Device   string `yaml:"device,omitempty"`
	Commands string `yaml:"commands,omitempty"`
	Settings string `yaml:"settings,omitempty"`
}

// MQTTConfig describes the broker connection of the bridge.
type MQTTConfig struct {
	Enabled        bool       `yaml:"enabled"`
	Broker         string     `yaml:"broker,omitempty"`
	ClientID       string     `yaml:"client_id,omitempty"`
	Username       string     `yaml:"username,omitempty"`
	Password       string     `yaml:"password,omitempty"`
	KeepAlive      Duration   `yaml:"keep_alive,omitempty"`
	ConnectTimeout Duration   `yaml:"connect_timeout,omitempty"`
	Topics         MQTTTopics `yaml:"topics,omitempty"`
	QoS            byte       `yaml:"qos,omitempty"`
}

// Config is the root configuration structure for the daemon.
type Config struct {
	Name        string          `yaml:"name,omitempty"`
	Description string          `yaml:"description,omitempty"`
	Logging     LoggingConfig   `yaml:"logging"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Store       StoreConfig     `yaml:"store"`
	Settings    SettingsConfig  `yaml:"settings"`
	Ringer      RingerConfig    `yaml:"ringer"`
	Filter      FilterConfig    `yaml:"filter"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	HotReload   bool            `yaml:"hot_reload,omitempty"`
	Source      string          `yaml:"-"`
	// Imports lists files read while evaluating a CUE source.
	Imports []string `yaml:"-"`
}

// Load reads and decodes the configuration file from disk. Files ending in
// .cue are evaluated with CUE, everything else is parsed as YAML. Environment
// overrides are applied afterwards.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", abs)
	}

	var raw []byte
	var imports []string
	if strings.EqualFold(filepath.Ext(abs), ".cue") {
		raw, imports, err = loadCUE(abs)
		if err != nil {
			return nil, err
		}
	} else {
		raw, err = os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", abs, err)
		}
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	cfg.Source = abs
	cfg.Imports = imports
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML (or JSON) document and fills in defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration running on the in-memory store without a
// broker.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.Provider == "" {
		c.Telemetry.Provider = "prometheus"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.MQTT.Topics.Events == "" {
		c.MQTT.Topics.Events = "ringd/events"
	}
	if c.MQTT.Topics.Device == "" {
		c.MQTT.Topics.Device = "ringd/device"
	}
	if c.MQTT.Topics.Commands == "" {
		c.MQTT.Topics.Commands = "ringd/commands"
	}
	if c.MQTT.Topics.Settings == "" {
		c.MQTT.Topics.Settings = "ringd/settings"
	}
}

// Validate checks values the loader cannot reject on its own.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown format %q", c.Logging.Format))
	}
	if c.Logging.Loki.Enabled && strings.TrimSpace(c.Logging.Loki.URL) == "" {
		errs = append(errs, errors.New("logging: loki url is required when enabled"))
	}
	if c.Telemetry.Enabled && !strings.EqualFold(c.Telemetry.Provider, "prometheus") {
		errs = append(errs, fmt.Errorf("telemetry: unsupported provider %q", c.Telemetry.Provider))
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePebble:
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, fmt.Errorf("store: path is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown driver %q", c.Store.Driver))
	}
	for ns := range c.Store.Seed {
		if _, err := settings.ParseNamespace(ns); err != nil {
			errs = append(errs, fmt.Errorf("store: seed: %w", err))
		}
	}
	if c.Settings.UserID < 0 {
		errs = append(errs, errors.New("settings: user_id must not be negative"))
	}
	if err := c.Ringer.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		errs = append(errs, errors.New("mqtt: broker is required when enabled"))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt: qos %d out of range", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

func (r RingerConfig) validate() error {
	for i, d := range r.VibrationPattern {
		if d.Duration < 0 {
			return fmt.Errorf("ringer: vibration_pattern[%d] must not be negative", i)
		}
	}
	if r.VibrationRepeat != nil {
		if len(r.VibrationPattern) == 0 {
			return errors.New("ringer: vibration_repeat requires vibration_pattern")
		}
		if *r.VibrationRepeat < -1 || *r.VibrationRepeat >= len(r.VibrationPattern) {
			return fmt.Errorf("ringer: vibration_repeat %d out of range", *r.VibrationRepeat)
		}
	}
	if r.DefaultLine < 0 {
		return errors.New("ringer: default_line must not be negative")
	}
	return nil
}
