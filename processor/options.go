package processor

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/timzifer/ringd/config"
	"github.com/timzifer/ringd/internal/bridge"
	"github.com/timzifer/ringd/internal/store"
	"github.com/timzifer/ringd/ringer"
	"github.com/timzifer/ringd/telemetry"
)

// WithLogger provides a custom logger instance for the processor.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		cfg.customLogger = true
		return nil
	}
}

// WithConfigPath configures the processor to load configuration data from the provided path.
func WithConfigPath(path string, register func(ReloadFunc)) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.configPath = strings.TrimSpace(path)
		cfg.registerReload = register
		return nil
	}
}

// WithConfig supplies an already loaded configuration instance.
func WithConfig(cfgData *config.Config) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.config = cfgData
		return nil
	}
}

// WithTelemetry injects a collector instance overriding the default configuration-based behaviour.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		cfg.telemetryProvided = true
		return nil
	}
}

// WithCollaborators installs actuators and call manager for the arbiter.
// Non-nil fields take precedence over the MQTT bridge; a missing call manager
// is replaced by a tracker fed from Submit.
func WithCollaborators(collab ringer.Collaborators) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.collaborators = collab
		return nil
	}
}

// WithStore uses an already opened settings store instead of opening the
// configured one. The processor does not close it.
func WithStore(st *store.Store) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if st == nil {
			return errors.New("store must not be nil")
		}
		cfg.store = st
		return nil
	}
}

// WithMQTTClient makes the bridge use client instead of dialing the configured
// broker. It only takes effect when MQTT is enabled. The processor does not
// disconnect it.
func WithMQTTClient(client bridge.Client) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if client == nil {
			return errors.New("mqtt client must not be nil")
		}
		cfg.mqttClient = client
		return nil
	}
}
