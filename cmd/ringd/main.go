package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/timzifer/ringd/config"
	"github.com/timzifer/ringd/processor"
	"github.com/timzifer/ringd/settings"
)

func main() {
	cfgPath := flag.String("config", "ringd.yaml", "Path to configuration file (.yaml or .cue)")
	healthcheck := flag.Bool("healthcheck", false, "Run a health check and exit")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	flag.Parse()

	if *healthcheck {
		if err := executeHealthCheck(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg, os.Stdout))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reloads := make(chan processor.ReloadFunc, 1)
	proc, err := processor.New(ctx,
		processor.WithConfig(cfg),
		processor.WithConfigPath(*cfgPath, func(fn processor.ReloadFunc) { reloads <- fn }),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer proc.Close()

	go reloadOnHangup(ctx, <-reloads)

	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("stopped with error")
	}
}

// reloadOnHangup reloads the configuration on SIGHUP.
func reloadOnHangup(ctx context.Context, reload processor.ReloadFunc) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reload(ctx); err != nil {
				log.Error().Err(err).Msg("configuration reload failed")
			}
		}
	}
}

func executeHealthCheck(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return processor.Validate(cfg)
}

// executeConfigCheck validates the configuration and every seeded setting and
// prints a report. It returns the process exit code.
func executeConfigCheck(cfg *config.Config, out io.Writer) int {
	exitCode := 0
	if err := processor.Validate(cfg); err != nil {
		fmt.Fprintf(out, "Configuration invalid: %v\n", err)
		exitCode = 1
	}

	fmt.Fprintf(out, "Store: %s", cfg.Store.Driver)
	if cfg.Store.Path != "" {
		fmt.Fprintf(out, " (%s)", cfg.Store.Path)
	}
	fmt.Fprintln(out)
	if cfg.MQTT.Enabled {
		fmt.Fprintf(out, "MQTT: %s events=%s device=%s commands=%s settings=%s qos=%d\n",
			cfg.MQTT.Broker, cfg.MQTT.Topics.Events, cfg.MQTT.Topics.Device,
			cfg.MQTT.Topics.Commands, cfg.MQTT.Topics.Settings, cfg.MQTT.QoS)
	} else {
		fmt.Fprintln(out, "MQTT: disabled")
	}
	if cfg.Filter.Rule != "" {
		fmt.Fprintf(out, "Filter: %s\n", cfg.Filter.Rule)
	} else {
		fmt.Fprintln(out, "Filter: allow all")
	}

	namespaces := make([]string, 0, len(cfg.Store.Seed))
	for name := range cfg.Store.Seed {
		namespaces = append(namespaces, name)
	}
	sort.Strings(namespaces)
	if len(namespaces) == 0 {
		fmt.Fprintln(out, "No seeded settings.")
	}
	for _, name := range namespaces {
		ns, err := settings.ParseNamespace(name)
		if err != nil {
			continue
		}
		keys := make([]string, 0, len(cfg.Store.Seed[name]))
		for key := range cfg.Store.Seed[name] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Fprintf(out, "Seeded %s settings:\n", ns)
		for _, key := range keys {
			value := cfg.Store.Seed[name][key]
			status := "OK"
			if target, moved := settings.MovedTo(ns, key); moved {
				status = fmt.Sprintf("moved to %s", target)
				exitCode = 1
			} else if v, ok := settings.LookupValidator(ns, key); ok && !v.Validate(value) {
				status = fmt.Sprintf("invalid (%s)", v.Kind())
				exitCode = 1
			}
			fmt.Fprintf(out, "  - %s = %q: %s\n", key, value, status)
		}
	}

	if exitCode == 0 {
		fmt.Fprintln(out, "Configuration check completed successfully.")
	} else {
		fmt.Fprintln(out, "Configuration check completed with errors.")
	}
	return exitCode
}
