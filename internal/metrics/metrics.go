// Package metrics holds the Prometheus collectors of a session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/luciancaetano/luster"
)

const namespace = "luster"

// Metrics records connection and dispatch activity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	state            prometheus.Gauge
	reconnects       prometheus.Counter
	authFailures     *prometheus.CounterVec
	heartbeatRTT     prometheus.Histogram
	framesSent       prometheus.Counter
	framesReceived   prometheus.Counter
	eventsDispatched *prometheus.CounterVec
	listenerFailures *prometheus.CounterVec
	decodeFailures   prometheus.Counter
	queueDepth       prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests and embedded sessions want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 authenticating, 3 connected, 4 reconnecting, 5 closing)",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts",
		}),
		authFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected handshakes by error label",
		}, []string{"label"}),
		heartbeatRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heartbeat_rtt_seconds",
			Help:      "Round trip time between Ping and the matching Pong",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames written to the events socket",
		}),
		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of frames read from the events socket",
		}),
		eventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Total number of events dispatched by kind",
		}, []string{"kind"}),
		listenerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_failures_total",
			Help:      "Total number of listener errors and panics by kind",
		}, []string{"kind"}),
		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total number of frames that could not be decoded into a typed event",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Number of events waiting to be dispatched",
		}),
	}
}

func (m *Metrics) SetState(s luster.ConnState) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) AuthFailure(label string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(label).Inc()
}

func (m *Metrics) HeartbeatRTT(d time.Duration) {
	if m == nil {
		return
	}
	m.heartbeatRTT.Observe(d.Seconds())
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) EventDispatched(kind luster.EventKind) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ListenerFailed(kind luster.EventKind) {
	if m == nil {
		return
	}
	m.listenerFailures.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

// SetQueueDepth reports the dispatch backlog.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
