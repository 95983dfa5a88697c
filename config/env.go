package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides lists the settings that can be overridden from the
// environment. Unset variables leave the file value alone.
type envOverrides struct {
	LogLevel    string `env:"LOG_LEVEL"`
	LogFormat   string `env:"LOG_FORMAT"`
	StoreDriver string `env:"STORE_DRIVER"`
	StorePath   string `env:"STORE_PATH"`
	MQTTBroker  string `env:"MQTT_BROKER"`
}

const envPrefix = "RINGD_"

// ApplyEnv applies RINGD_* environment overrides to cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, environ())
}

func applyEnv(cfg *Config, environment map[string]string) error {
	if cfg == nil {
		return nil
	}
	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{
		Prefix:      envPrefix,
		Environment: environment,
	}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if overrides.LogLevel != "" {
		cfg.Logging.Level = overrides.LogLevel
	}
	if overrides.LogFormat != "" {
		cfg.Logging.Format = overrides.LogFormat
	}
	if overrides.StoreDriver != "" {
		cfg.Store.Driver = overrides.StoreDriver
	}
	if overrides.StorePath != "" {
		cfg.Store.Path = overrides.StorePath
	}
	if overrides.MQTTBroker != "" {
		cfg.MQTT.Broker = overrides.MQTTBroker
		cfg.MQTT.Enabled = true
	}
	return nil
}

func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, envPrefix) {
			out[key] = value
		}
	}
	return out
}
