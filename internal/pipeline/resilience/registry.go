// internal/pipeline/resilience/registry.go
package resilience

import (
	"sync"
	"time"

	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// Options configures breaker thresholds and the rate window for every
// source tracked by a Registry.
type Options struct {
	FailureThreshold int
	Lookback         time.Duration
	Cooldown         time.Duration
	RateWindow       time.Duration
	Clock            func() time.Time
}

// DefaultOptions returns the standard production thresholds.
func DefaultOptions() Options {
	return Options{
		FailureThreshold: 5,
		Lookback:         10 * time.Minute,
		Cooldown:         60 * time.Second,
		RateWindow:       24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = d.FailureThreshold
	}
	if o.Lookback <= 0 {
		o.Lookback = d.Lookback
	}
	if o.Cooldown <= 0 {
		o.Cooldown = d.Cooldown
	}
	if o.RateWindow <= 0 {
		o.RateWindow = d.RateWindow
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// sourceState is the shared mutable state for one SourceConfig. Its mutex
// covers both the rate window and the circuit, since concurrent entity
// workers hit the same source.
type sourceState struct {
	mu      sync.Mutex
	budget  int
	window  []time.Time
	circuit CircuitState
}

// Registry holds per-source resilience state keyed by SourceConfig id. It
// is owned by the composition root and injected by reference, so tests can
// substitute a fresh one.
type Registry struct {
	mu      sync.Mutex
	opts    Options
	sources map[string]*sourceState
	log     logger.Logger
}

func NewRegistry(opts Options, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Registry{
		opts:    opts.withDefaults(),
		sources: make(map[string]*sourceState),
		log:     log,
	}
}

// Register seeds state for a source. Registering an already-known source
// only updates its budget; breaker and window state survive.
func (r *Registry) Register(cfg models.SourceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.sources[cfg.ID]; ok {
		st.mu.Lock()
		st.budget = cfg.DailyBudget
		st.mu.Unlock()
		return
	}
	r.sources[cfg.ID] = &sourceState{
		budget:  cfg.DailyBudget,
		circuit: CircuitState{Status: CircuitClosed},
	}
}

func (r *Registry) state(sourceID string) *sourceState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.sources[sourceID]
	if !ok {
		st = &sourceState{circuit: CircuitState{Status: CircuitClosed}}
		r.sources[sourceID] = st
	}
	return st
}

// now returns the registry clock time in UTC.
func (r *Registry) now() time.Time {
	return r.opts.Clock().UTC()
}
