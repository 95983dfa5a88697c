package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/ringd/config"
	"github.com/timzifer/ringd/internal/bridge"
	"github.com/timzifer/ringd/internal/filter"
	"github.com/timzifer/ringd/internal/logging"
	"github.com/timzifer/ringd/internal/reload"
	"github.com/timzifer/ringd/internal/store"
	"github.com/timzifer/ringd/ringer"
	ringsettings "github.com/timzifer/ringd/settings"
	"github.com/timzifer/ringd/telemetry"
)

// ReloadFunc represents a function that reloads the processor configuration.
type ReloadFunc func(ctx context.Context) error

// Option configures the processor during construction.
type Option func(*settings) error

// ErrQueueFull is returned by Submit when the event queue has no room left.
var ErrQueueFull = errors.New("event queue full")

const eventQueueSize = 64

type settings struct {
	config            *config.Config
	configPath        string
	registerReload    func(ReloadFunc)
	logger            zerolog.Logger
	customLogger      bool
	telemetry         telemetry.Collector
	telemetryProvided bool
	collaborators     ringer.Collaborators
	store             *store.Store
	mqttClient        bridge.Client
}

// Processor orchestrates the daemon lifecycle: it wires the settings store,
// the MQTT bridge and the ring arbiter from the configuration, feeds events to
// the arbiter and rebuilds everything on configuration reloads.
type Processor struct {
	mu sync.Mutex

	config     *config.Config
	configPath string

	collector telemetry.Collector

	customLogger  bool
	baseLogger    zerolog.Logger
	collaborators ringer.Collaborators
	store         *store.Store
	mqttClient    bridge.Client

	// submitMu serializes producers so a capacity check holds until the send.
	submitMu sync.Mutex
	events   chan ringer.Event

	watcher  *reload.Watcher
	reloadCh chan reloadRequest

	current *runtimeState
	running bool
}

type runtimeState struct {
	cfg      *config.Config
	logger   zerolog.Logger
	cleanups []func()

	store       *store.Store
	registry    *ringsettings.Registry
	bridge      *bridge.Bridge
	tracker     *bridge.CallTracker
	arbiter     *ringer.Arbiter
	metricsAddr string
}

func (r *runtimeState) addCleanup(fn func()) {
	r.cleanups = append(r.cleanups, fn)
}

// close stops every signal and releases the runtime's resources in reverse
// construction order.
func (r *runtimeState) close() {
	if r == nil {
		return
	}
	if r.arbiter != nil {
		r.arbiter.Shutdown(context.Background())
	}
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
	r.cleanups = nil
}

type reloadRequest struct {
	done  chan error
	files []string
}

// New constructs a processor with the supplied options.
func New(ctx context.Context, opts ...Option) (*Processor, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cfg := settings{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		if cfg.configPath == "" {
			return nil, errors.New("configuration path required")
		}
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg.config = loaded
	}
	if cfg.config == nil {
		return nil, errors.New("configuration must not be nil")
	}
	if err := Validate(cfg.config); err != nil {
		return nil, err
	}

	if !cfg.telemetryProvided {
		collector, err := newTelemetryCollector(cfg.config.Telemetry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
			cfg.telemetry = telemetry.Noop()
		} else {
			cfg.telemetry = collector
		}
	}

	proc := &Processor{
		config:        cfg.config,
		configPath:    cfg.configPath,
		collector:     cfg.telemetry,
		customLogger:  cfg.customLogger,
		baseLogger:    cfg.logger,
		collaborators: cfg.collaborators,
		store:         cfg.store,
		mqttClient:    cfg.mqttClient,
		events:        make(chan ringer.Event, eventQueueSize),
	}

	runtime, err := proc.buildRuntime(ctx, cfg.config, carriedCalls{})
	if err != nil {
		return nil, err
	}
	proc.current = runtime

	if cfg.configPath != "" {
		proc.reloadCh = make(chan reloadRequest)
	}

	if err := proc.initWatcher(cfg.config); err != nil {
		runtime.close()
		return nil, err
	}

	if cfg.registerReload != nil {
		cfg.registerReload(proc.Reload)
	}

	return proc, nil
}

// Validate checks a configuration including its interruption filter rule.
func Validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Filter.Rule != "" {
		if _, err := filter.Compile(cfg.Filter.Rule); err != nil {
			return err
		}
	}
	return nil
}

// Submit queues a call lifecycle event for the arbiter. Events are handled in
// submission order. Without a configured call manager the event also updates
// the processor's own call tracker.
func (p *Processor) Submit(ev ringer.Event) error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil {
		return errors.New("processor closed")
	}
	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	if len(p.events) == cap(p.events) {
		return ErrQueueFull
	}
	if current.tracker != nil && current.bridge == nil {
		current.tracker.Apply(ev)
	}
	p.events <- ev
	return nil
}

// Settings returns the settings registry of the active runtime.
func (p *Processor) Settings() *ringsettings.Registry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current.registry
}

// MetricsAddr returns the address of the metrics listener, if one is running.
func (p *Processor) MetricsAddr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.metricsAddr
}

// Run feeds queued events to the arbiter until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return errors.New("processor not initialized")
	}
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	p.running = true
	current := p.current
	watcher := p.watcher
	reloadCh := p.reloadCh
	p.mu.Unlock()

	var ticker *time.Ticker
	if watcher != nil {
		ticker = time.NewTicker(time.Second)
		defer ticker.Stop()
	}

	defer func() {
		p.mu.Lock()
		p.running = false
		if p.current == current {
			p.current = nil
		}
		p.mu.Unlock()
		p.drainReloadRequests(reloadCh, errors.New("processor stopped"))
	}()

	for {
		runCtx, cancelRun := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func(a *ringer.Arbiter) {
			errCh <- a.Run(runCtx, p.events)
		}(current.arbiter)

		var pending *reloadRequest
		var nextConfig *config.Config

	loop:
		for {
			select {
			case <-ctx.Done():
				cancelRun()
				err := <-errCh
				current.close()
				if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
					return err
				}
				return ctx.Err()
			case err := <-errCh:
				cancelRun()
				current.close()
				return err
			case req := <-reloadCh:
				cfg, err := p.loadConfig()
				if err == nil {
					err = Validate(cfg)
				}
				if err != nil {
					current.logger.Error().Err(err).Msg("reloaded configuration invalid")
					if req.done != nil {
						req.done <- err
					}
					continue
				}
				pending = &req
				nextConfig = cfg
				break loop
			case <-tickChannel(ticker):
				changes, err := watcher.Check()
				if err != nil {
					current.logger.Error().Err(err).Msg("failed to check configuration changes")
					continue
				}
				if len(changes) == 0 {
					continue
				}
				cfg, err := p.loadConfig()
				if err == nil {
					err = Validate(cfg)
				}
				if err != nil {
					current.logger.Error().Err(err).Msg("failed to reload configuration")
					// Re-arm so the same edit is not reported every tick.
					_ = p.initWatcher(p.config)
					continue
				}
				pending = &reloadRequest{files: changes}
				nextConfig = cfg
				break loop
			}
		}

		cancelRun()
		if err := <-errCh; err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			current.logger.Error().Err(err).Msg("arbiter stopped during reload")
		}
		carried := current.carried()
		current.close()

		runtime, err := p.buildRuntime(ctx, nextConfig, carried)
		if err != nil {
			if pending != nil && pending.done != nil {
				pending.done <- err
			}
			return err
		}

		p.mu.Lock()
		p.current = runtime
		current = runtime
		p.config = nextConfig
		if err := p.initWatcher(nextConfig); err != nil {
			current.logger.Error().Err(err).Msg("failed to update configuration watcher")
		} else {
			watcher = p.watcher
		}
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
		if watcher != nil {
			ticker = time.NewTicker(time.Second)
		}
		p.mu.Unlock()

		current.logger.Info().Strs("files", pending.files).Msg("configuration reloaded")
		if pending.done != nil {
			pending.done <- nil
		}
		for _, file := range pending.files {
			p.collector.IncHotReload(file)
		}
	}
}

// Reload rebuilds the processor using the latest configuration from disk.
func (p *Processor) Reload(ctx context.Context) error {
	p.mu.Lock()
	running := p.running
	reloadCh := p.reloadCh
	p.mu.Unlock()

	if !running {
		cfg, err := p.loadConfig()
		if err != nil {
			return err
		}
		if err := Validate(cfg); err != nil {
			return err
		}
		return p.swapRuntime(ctx, cfg)
	}

	if reloadCh == nil {
		return errors.New("reload not supported without configuration path")
	}

	req := reloadRequest{done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case reloadCh <- req:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-req.done:
		return err
	}
}

// Close releases resources managed by the processor.
func (p *Processor) Close() {
	p.mu.Lock()
	current := p.current
	p.current = nil
	p.mu.Unlock()

	current.close()
}

func (p *Processor) swapRuntime(ctx context.Context, cfg *config.Config) error {
	p.mu.Lock()
	old := p.current
	p.current = nil
	p.mu.Unlock()

	carried := old.carried()
	old.close()

	runtime, err := p.buildRuntime(ctx, cfg, carried)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.current = runtime
	p.config = cfg
	err = p.initWatcher(cfg)
	p.mu.Unlock()
	if err != nil {
		runtime.close()
		return err
	}
	return nil
}

// carriedCalls are the calls a runtime hands to its successor.
type carriedCalls struct {
	calls      []ringer.Call
	foreground ringer.CallID
}

func (r *runtimeState) carried() carriedCalls {
	if r == nil || r.tracker == nil {
		return carriedCalls{}
	}
	foreground, _ := r.tracker.Foreground()
	return carriedCalls{calls: r.tracker.Calls(), foreground: foreground}
}

// buildRuntime wires store, settings registry, filter, bridge and arbiter.
// Calls carried over from a previous runtime are replayed so ringing calls
// keep ringing across reloads.
func (p *Processor) buildRuntime(ctx context.Context, cfg *config.Config, carried carriedCalls) (_ *runtimeState, err error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runtime := &runtimeState{cfg: cfg}
	defer func() {
		if err != nil {
			runtime.close()
		}
	}()

	if p.customLogger {
		runtime.logger = p.baseLogger
	} else {
		logger, cleanup, err := logging.Setup(cfg.Logging)
		if err != nil {
			return nil, err
		}
		runtime.logger = logger
		runtime.addCleanup(cleanup)
	}
	log.Logger = runtime.logger
	logger := runtime.logger

	if cfg.Telemetry.Enabled && cfg.Telemetry.Listen != "" {
		addr, stop, err := startMetricsServer(cfg.Telemetry.Listen, logger)
		if err != nil {
			return nil, err
		}
		runtime.metricsAddr = addr
		runtime.addCleanup(stop)
	}

	runtime.store = p.store
	if runtime.store == nil {
		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path,
			store.WithLogger(logger),
			store.WithUser(cfg.Settings.UserID),
			store.WithSeed(cfg.Store.Seed),
		)
		if err != nil {
			return nil, fmt.Errorf("open settings store: %w", err)
		}
		runtime.store = st
		runtime.addCleanup(func() {
			if err := st.Close(); err != nil {
				logger.Error().Err(err).Msg("close settings store")
			}
		})
	}

	runtime.registry, err = ringsettings.NewRegistry(
		ringsettings.StaticResolver(runtime.store),
		runtime.store,
		ringsettings.WithLogger(logger),
		ringsettings.WithTelemetry(p.collector),
		ringsettings.WithUserID(cfg.Settings.UserID),
	)
	if err != nil {
		return nil, err
	}

	collab := p.collaborators
	if cfg.MQTT.Enabled {
		b, err := p.connectBridge(cfg.MQTT, logger, runtime.registry)
		if err != nil {
			return nil, fmt.Errorf("connect mqtt bridge: %w", err)
		}
		runtime.bridge = b
		runtime.addCleanup(b.Close)
		collab = mergeCollaborators(b.Collaborators(), collab)
	}
	if collab.Calls == nil {
		runtime.tracker = bridge.NewCallTracker(nil)
		collab.Calls = runtime.tracker
	} else if runtime.bridge != nil {
		runtime.tracker = runtime.bridge.Tracker()
	}
	if collab.Filter == nil {
		collab.Filter, err = newFilter(cfg.Filter, logger)
		if err != nil {
			return nil, err
		}
	}

	arbiterOpts := []ringer.Option{
		ringer.WithLogger(logger),
		ringer.WithTelemetry(p.collector),
		ringer.WithDefaultLine(cfg.Ringer.DefaultLine),
	}
	if pattern := cfg.Ringer.Pattern(); pattern != nil {
		repeat := ringer.DefaultVibrationRepeat
		if cfg.Ringer.VibrationRepeat != nil {
			repeat = *cfg.Ringer.VibrationRepeat
		}
		arbiterOpts = append(arbiterOpts, ringer.WithVibrationPattern(pattern, repeat))
	}
	runtime.arbiter, err = ringer.New(runtime.registry, collab, arbiterOpts...)
	if err != nil {
		return nil, err
	}

	if runtime.tracker != nil {
		runtime.tracker.Seed(carried.calls, carried.foreground)
	}
	for _, call := range carried.calls {
		if call.IsRinging() {
			runtime.arbiter.Handle(ctx, ringer.CallAdded(call))
		}
	}

	logger.Info().
		Str("store", runtime.store.Driver()).
		Bool("mqtt", runtime.bridge != nil).
		Bool("filter", cfg.Filter.Rule != "").
		Msg("runtime ready")
	return runtime, nil
}

// connectBridge dials the configured broker, or wraps the injected client.
func (p *Processor) connectBridge(cfg config.MQTTConfig, logger zerolog.Logger, writer bridge.SettingsWriter) (*bridge.Bridge, error) {
	opts := []bridge.Option{bridge.WithLogger(logger), bridge.WithSettingsWriter(writer)}
	if p.mqttClient == nil {
		return bridge.Connect(cfg, p.enqueue, opts...)
	}
	b, err := bridge.New(p.mqttClient, bridge.TopicsFor(cfg), cfg.QoS, p.enqueue, opts...)
	if err != nil {
		return nil, err
	}
	b.Start()
	return b, nil
}

// enqueue receives events decoded by the bridge.
func (p *Processor) enqueue(ev ringer.Event) {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	select {
	case p.events <- ev:
	default:
		log.Logger.Error().Str("event", ev.Kind.String()).Msg("event queue full, dropping event")
	}
}

func newFilter(cfg config.FilterConfig, logger zerolog.Logger) (ringer.InterruptionFilter, error) {
	if cfg.Rule == "" {
		return filter.AllowAll{}, nil
	}
	opts := []filter.Option{filter.WithLogger(logger)}
	if cfg.AllowUnknown != nil {
		opts = append(opts, filter.WithAllowUnknown(*cfg.AllowUnknown))
	}
	rule, err := filter.Compile(cfg.Rule, opts...)
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// mergeCollaborators fills the unset fields of override from base.
func mergeCollaborators(base, override ringer.Collaborators) ringer.Collaborators {
	if override.Audio != nil {
		base.Audio = override.Audio
	}
	if override.Vibrator != nil {
		base.Vibrator = override.Vibrator
	}
	if override.Ringtone != nil {
		base.Ringtone = override.Ringtone
	}
	if override.Tones != nil {
		base.Tones = override.Tones
	}
	if override.Filter != nil {
		base.Filter = override.Filter
	}
	if override.Lines != nil {
		base.Lines = override.Lines
	}
	if override.Calls != nil {
		base.Calls = override.Calls
	}
	return base
}

func (p *Processor) loadConfig() (*config.Config, error) {
	if p.configPath == "" {
		return nil, errors.New("configuration path not configured")
	}
	cfg, err := config.Load(p.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Processor) initWatcher(cfg *config.Config) error {
	if p.configPath == "" {
		p.watcher = nil
		return nil
	}
	if !cfg.HotReload {
		p.watcher = nil
		return nil
	}
	sources := *cfg
	if sources.Source == "" {
		sources.Source = p.configPath
	}
	if p.watcher == nil {
		watcher, err := reload.NewWatcher(&sources)
		if err != nil {
			return err
		}
		p.watcher = watcher
		return nil
	}
	return p.watcher.Update(&sources)
}

// drainReloadRequests answers reload requests that are still waiting.
func (p *Processor) drainReloadRequests(ch chan reloadRequest, err error) {
	if ch == nil {
		return
	}
	for {
		select {
		case req := <-ch:
			if req.done != nil {
				req.done <- err
			}
		default:
			return
		}
	}
}

func tickChannel(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
