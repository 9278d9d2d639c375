package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/O7410/Industria/internal/pipe"
)

// PipeCollector bundles Prometheus metrics for pipe networks and the world
// loop. It satisfies world.Recorder.
type PipeCollector struct {
	gatherer prometheus.Gatherer

	Networks *prometheus.GaugeVec
	Pipes    *prometheus.GaugeVec

	Created   *prometheus.CounterVec
	Destroyed *prometheus.CounterVec
	Merges    *prometheus.CounterVec
	Splits    *prometheus.CounterVec

	Edits        *prometheus.CounterVec
	StepDuration prometheus.Histogram
	Tick         prometheus.Gauge

	SyncSubscribers prometheus.Gauge
	SyncDropped     prometheus.Counter
}

// NewPipeCollector registers metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewPipeCollector(reg prometheus.Registerer) (*PipeCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	networks, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipe_networks",
		Help: "Live pipe networks by resource kind.",
	}, []string{"kind"}), "pipe_networks")
	if err != nil {
		return nil, err
	}
	pipes, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipe_pipes",
		Help: "Pipe cells owned by a network, by resource kind.",
	}, []string{"kind"}), "pipe_pipes")
	if err != nil {
		return nil, err
	}

	lifecycle := func(name, help string) (*prometheus.CounterVec, error) {
		return registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}, []string{"kind"}), name)
	}
	created, err := lifecycle("pipe_networks_created_total", "Networks created.")
	if err != nil {
		return nil, err
	}
	destroyed, err := lifecycle("pipe_networks_destroyed_total", "Networks destroyed.")
	if err != nil {
		return nil, err
	}
	merges, err := lifecycle("pipe_network_merges_total", "Placements that joined two or more networks.")
	if err != nil {
		return nil, err
	}
	splits, err := lifecycle("pipe_network_splits_total", "Removals that disconnected a network.")
	if err != nil {
		return nil, err
	}

	edits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "world_edits_total",
		Help: "Grid edits applied at tick start, labeled by op, kind and outcome.",
	}, []string{"op", "kind", "outcome"}), "world_edits_total")
	if err != nil {
		return nil, err
	}

	step, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "world_step_duration_seconds",
		Help:    "Duration of one world step including edits, ticking and sync drain.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "world_step_duration_seconds")
	if err != nil {
		return nil, err
	}
	tick, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "world_tick",
		Help: "Number of completed world steps.",
	}), "world_tick")
	if err != nil {
		return nil, err
	}

	subs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_subscribers",
		Help: "Connected sync subscribers.",
	}), "sync_subscribers")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_messages_dropped_total",
		Help: "SYNC messages dropped because a subscriber was too slow.",
	}), "sync_messages_dropped_total")
	if err != nil {
		return nil, err
	}

	return &PipeCollector{
		gatherer:        gatherer,
		Networks:        networks,
		Pipes:           pipes,
		Created:         created,
		Destroyed:       destroyed,
		Merges:          merges,
		Splits:          splits,
		Edits:           edits,
		StepDuration:    step,
		Tick:            tick,
		SyncSubscribers: subs,
		SyncDropped:     dropped,
	}, nil
}

// Hooks returns registry hooks feeding the lifecycle counters.
func (c *PipeCollector) Hooks() pipe.Hooks {
	if c == nil {
		return pipe.Hooks{}
	}
	return pipe.Hooks{
		Created: func(n *pipe.Network) {
			c.Created.WithLabelValues(n.Kind().Name).Inc()
		},
		Destroyed: func(kind string, _ uuid.UUID) {
			c.Destroyed.WithLabelValues(kind).Inc()
		},
		Merged: func(kind string, _ int) {
			c.Merges.WithLabelValues(kind).Inc()
		},
		Split: func(kind string, _ int) {
			c.Splits.WithLabelValues(kind).Inc()
		},
	}
}

func (c *PipeCollector) ObserveEdit(op, kind, outcome string) {
	if c == nil {
		return
	}
	if kind == "" {
		kind = "any"
	}
	c.Edits.WithLabelValues(op, kind, outcome).Inc()
}

// ObserveStep records the step duration and refreshes the per-kind gauges.
func (c *PipeCollector) ObserveStep(d time.Duration, reg *pipe.Registry) {
	if c == nil {
		return
	}
	c.StepDuration.Observe(d.Seconds())
	c.Tick.Inc()
	if reg == nil {
		return
	}
	for _, k := range reg.Kinds() {
		c.Networks.WithLabelValues(k.Name).Set(float64(reg.Count(k.Name)))
		c.Pipes.WithLabelValues(k.Name).Set(float64(reg.PipeCount(k.Name)))
	}
}

// SetSubscribers reports the number of connected sync clients.
func (c *PipeCollector) SetSubscribers(n int) {
	if c == nil {
		return
	}
	c.SyncSubscribers.Set(float64(n))
}

func (c *PipeCollector) IncDropped() {
	if c == nil {
		return
	}
	c.SyncDropped.Inc()
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PipeCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipeCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
