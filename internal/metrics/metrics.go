// Package metrics exports driver counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "koedriver"

type Metrics struct {
	mixerCommands    *prometheus.CounterVec
	mixerState       *prometheus.GaugeVec
	teardowns        prometheus.Counter
	generation       prometheus.Gauge
	framesSent       prometheus.Counter
	eventsDispatched *prometheus.CounterVec
	udpPackets       *prometheus.CounterVec
	activeDrivers    prometheus.Gauge
}

var mixerStates = []string{"idle", "connected", "disabled", "poisoned"}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		mixerCommands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "commands_total",
			Help:      "Mixer commands processed by kind.",
		}, []string{"kind"}),
		mixerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "state",
			Help:      "Mixers currently in each state.",
		}, []string{"state"}),
		teardowns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "connection_teardowns_total",
			Help:      "Connections torn down by the mixer.",
		}),
		generation: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "connection_generation",
			Help:      "Most recently installed connection generation.",
		}),
		framesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "frames_sent_total",
			Help:      "Encrypted audio frames handed to the transmit task.",
		}),
		eventsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dispatched_total",
			Help:      "Events delivered to listeners by kind.",
		}, []string{"event"}),
		udpPackets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      "packets_total",
			Help:      "UDP packets by direction and result.",
		}, []string{"direction", "result"}),
		activeDrivers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_drivers",
			Help:      "Drivers currently owned by the session manager.",
		}),
	}
}

func (m *Metrics) MixerCommand(kind string) {
	if m == nil {
		return
	}
	m.mixerCommands.WithLabelValues(kind).Inc()
}

// MixerStateChanged moves one mixer from the from state to the to state. An
// empty from marks a new mixer.
func (m *Metrics) MixerStateChanged(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.mixerState.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.mixerState.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) Teardown() {
	if m == nil {
		return
	}
	m.teardowns.Inc()
}

func (m *Metrics) Generation(gen uint32) {
	if m == nil {
		return
	}
	m.generation.Set(float64(gen))
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

func (m *Metrics) EventDispatched(event string) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(event).Inc()
}

func (m *Metrics) UDPPacket(direction, result string) {
	if m == nil {
		return
	}
	m.udpPackets.WithLabelValues(direction, result).Inc()
}

func (m *Metrics) DriverStarted() {
	if m == nil {
		return
	}
	m.activeDrivers.Inc()
}

func (m *Metrics) DriverStopped() {
	if m == nil {
		return
	}
	m.activeDrivers.Dec()
}

// States lists the label values used for the mixer state gauge.
func States() []string {
	out := make([]string, len(mixerStates))
	copy(out, mixerStates)
	return out
}
