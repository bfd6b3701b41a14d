// Package metrics exposes Prometheus collectors for relay sessions. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Config struct {
	// Namespace is the metrics namespace (default: "moq").
	Namespace string

	Subsystem string

	ConstLabels prometheus.Labels

	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "moq",
		Registry:  prometheus.DefaultRegisterer,
	}
}

type Metrics struct {
	raceWins        *prometheus.CounterVec
	raceDuration    prometheus.Histogram
	handshakes      *prometheus.CounterVec
	controlMessages *prometheus.CounterVec
	objectStreams   *prometheus.CounterVec
	frames          prometheus.Counter
	frameBytes      prometheus.Counter
	activeSessions  prometheus.Gauge
	activeTracks    prometheus.Gauge
	reconnectsTotal prometheus.Counter
}

// New registers the collectors. Registering twice on the same registry
// panics, like promauto.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		raceWins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "transport_race_wins_total",
			Help:        "Transport races won, by transport",
			ConstLabels: config.ConstLabels,
		}, []string{"transport"}),

		raceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "transport_race_duration_seconds",
			Help:        "Time until a transport became ready",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{.025, .05, .1, .2, .35, .5, 1, 2.5, 5, 10},
		}),

		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handshakes_total",
			Help:        "Setup handshakes by negotiated variant or failure",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		controlMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "control_messages_total",
			Help:        "Control messages by direction and type",
			ConstLabels: config.ConstLabels,
		}, []string{"direction", "type"}),

		objectStreams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "object_streams_total",
			Help:        "Incoming object streams by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_received_total",
			Help:        "Frames decoded from object streams",
			ConstLabels: config.ConstLabels,
		}),

		frameBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_bytes_received_total",
			Help:        "Payload bytes decoded from object streams",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Established relay sessions",
			ConstLabels: config.ConstLabels,
		}),

		activeTracks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_subscriptions",
			Help:        "Track subscriptions awaiting or receiving data",
			ConstLabels: config.ConstLabels,
		}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Reconnect attempts scheduled after a failure",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) RaceWon(transport string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.raceWins.WithLabelValues(transport).Inc()
	m.raceDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) ControlMessage(direction, typ string) {
	if m == nil {
		return
	}
	m.controlMessages.WithLabelValues(direction, typ).Inc()
}

func (m *Metrics) ObjectStream(outcome string) {
	if m == nil {
		return
	}
	m.objectStreams.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Frame(size int) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.frameBytes.Add(float64(size))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) SubscriptionStarted() {
	if m == nil {
		return
	}
	m.activeTracks.Inc()
}

func (m *Metrics) SubscriptionEnded() {
	if m == nil {
		return
	}
	m.activeTracks.Dec()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}
