package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the runtime.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with the arbiter's event handling and with settings lookups.
type Collector interface {
	IncHotReload(file string)
	IncSignalTransition(from, to string)
	SetRingingCalls(count int)
	IncSettingsLookup(namespace, result string)
	IncStoreError(namespace, op string)
	IncCollaboratorError(collaborator string)
}

// Lookup results reported through IncSettingsLookup.
const (
	LookupHit      = "hit"
	LookupMiss     = "miss"
	LookupUncached = "uncached"
)

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncHotReload(string)                {}
func (noopCollector) IncSignalTransition(string, string) {}
func (noopCollector) SetRingingCalls(int)                {}
func (noopCollector) IncSettingsLookup(string, string)   {}
func (noopCollector) IncStoreError(string, string)       {}
func (noopCollector) IncCollaboratorError(string)        {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	hotReloads         *prometheus.CounterVec
	signalTransitions  *prometheus.CounterVec
	ringingCalls       prometheus.Gauge
	settingsLookups    *prometheus.CounterVec
	storeErrors        *prometheus.CounterVec
	collaboratorErrors *prometheus.CounterVec
}

var (
	metricsLock        sync.Mutex
	hotReloadCounter   *prometheus.CounterVec
	transitionCounter  *prometheus.CounterVec
	ringingCallsGauge  prometheus.Gauge
	lookupCounter      *prometheus.CounterVec
	storeErrorCounter  *prometheus.CounterVec
	collabErrorCounter *prometheus.CounterVec
)

// NewPrometheusCollector registers the required metrics with the provided registerer.
// Metrics already registered by an earlier call are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metricsLock.Lock()
	defer metricsLock.Unlock()

	var err error
	if hotReloadCounter == nil {
		hotReloadCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "ringd_config_hot_reload_total",
			Help: "Number of hot reload operations triggered per configuration source file.",
		}, "file")
		if err != nil {
			return nil, err
		}
	}
	if transitionCounter == nil {
		transitionCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "ringd_signal_transitions_total",
			Help: "Number of signal state transitions performed by the ring arbiter.",
		}, "from", "to")
		if err != nil {
			return nil, err
		}
	}
	if ringingCallsGauge == nil {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringd_ringing_calls",
			Help: "Number of incoming calls currently waiting to be answered.",
		})
		if err := reg.Register(gauge); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			existing, ok := already.ExistingCollector.(prometheus.Gauge)
			if !ok {
				return nil, err
			}
			gauge = existing
		}
		ringingCallsGauge = gauge
	}
	if lookupCounter == nil {
		lookupCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "ringd_settings_lookups_total",
			Help: "Number of settings lookups per namespace and cache result.",
		}, "namespace", "result")
		if err != nil {
			return nil, err
		}
	}
	if storeErrorCounter == nil {
		storeErrorCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "ringd_settings_store_errors_total",
			Help: "Number of failed round trips to the backing settings store.",
		}, "namespace", "op")
		if err != nil {
			return nil, err
		}
	}
	if collabErrorCounter == nil {
		collabErrorCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "ringd_collaborator_errors_total",
			Help: "Number of failed commands sent to audio, vibration or tone collaborators.",
		}, "collaborator")
		if err != nil {
			return nil, err
		}
	}

	return &PrometheusCollector{
		hotReloads:         hotReloadCounter,
		signalTransitions:  transitionCounter,
		ringingCalls:       ringingCallsGauge,
		settingsLookups:    lookupCounter,
		storeErrors:        storeErrorCounter,
		collaboratorErrors: collabErrorCounter,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// IncSignalTransition records a transition of the arbiter's signal state.
func (p *PrometheusCollector) IncSignalTransition(from, to string) {
	if p == nil || p.signalTransitions == nil {
		return
	}
	p.signalTransitions.WithLabelValues(from, to).Inc()
}

// SetRingingCalls updates the gauge tracking unanswered incoming calls.
func (p *PrometheusCollector) SetRingingCalls(count int) {
	if p == nil || p.ringingCalls == nil {
		return
	}
	p.ringingCalls.Set(float64(count))
}

// IncSettingsLookup records a settings lookup and whether the local cache served it.
func (p *PrometheusCollector) IncSettingsLookup(namespace, result string) {
	if p == nil || p.settingsLookups == nil {
		return
	}
	p.settingsLookups.WithLabelValues(namespace, result).Inc()
}

// IncStoreError records a failed settings store operation.
func (p *PrometheusCollector) IncStoreError(namespace, op string) {
	if p == nil || p.storeErrors == nil {
		return
	}
	p.storeErrors.WithLabelValues(namespace, op).Inc()
}

// IncCollaboratorError records a failed collaborator command.
func (p *PrometheusCollector) IncCollaboratorError(collaborator string) {
	if p == nil || p.collaboratorErrors == nil {
		return
	}
	p.collaboratorErrors.WithLabelValues(collaborator).Inc()
}
