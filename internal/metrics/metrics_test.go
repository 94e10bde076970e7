package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/luciancaetano/luster"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

// TestRecorders tests that each recorder updates its collector
func TestRecorders(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.SetState(luster.Connected)
	m.Reconnect()
	m.Reconnect()
	m.AuthFailure(luster.LabelInvalidSession)
	m.FrameSent()
	m.FrameReceived()
	m.EventDispatched(luster.KindUserUpdate)
	m.ListenerFailed(luster.KindUserUpdate)
	m.DecodeFailed()
	m.SetQueueDepth(7)
	m.HeartbeatRTT(30 * time.Millisecond)

	if got := gaugeValue(t, m.state); got != float64(luster.Connected) {
		t.Errorf("connection_state = %v, want %v", got, float64(luster.Connected))
	}
	if got := counterValue(t, m.reconnects); got != 2 {
		t.Errorf("reconnects_total = %v, want 2", got)
	}
	if got := counterValue(t, m.authFailures.WithLabelValues(luster.LabelInvalidSession)); got != 1 {
		t.Errorf("auth_failures_total = %v, want 1", got)
	}
	if got := counterValue(t, m.eventsDispatched.WithLabelValues("UserUpdate")); got != 1 {
		t.Errorf("events_dispatched_total = %v, want 1", got)
	}
	if got := counterValue(t, m.listenerFailures.WithLabelValues("UserUpdate")); got != 1 {
		t.Errorf("listener_failures_total = %v, want 1", got)
	}
	if got := counterValue(t, m.decodeFailures); got != 1 {
		t.Errorf("decode_failures_total = %v, want 1", got)
	}
	if got := gaugeValue(t, m.queueDepth); got != 7 {
		t.Errorf("dispatch_queue_depth = %v, want 7", got)
	}

	var h dto.Metric
	if err := m.heartbeatRTT.Write(&h); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if got := h.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("heartbeat_rtt_seconds count = %d, want 1", got)
	}
}

// TestRegistration tests that collectors land in the given registry
func TestRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Reconnect()
	m.EventDispatched(luster.KindReady)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"luster_reconnects_total", "luster_events_dispatched_total", "luster_connection_state"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

// TestUnregistered tests that a nil registerer still yields working collectors
func TestUnregistered(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.Reconnect()
	if got := counterValue(t, m.reconnects); got != 1 {
		t.Errorf("reconnects_total = %v, want 1", got)
	}
	// A second set must not collide with the first.
	New(nil).Reconnect()
}

// TestNilMetrics tests that a nil receiver records nothing without panicking
func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.SetState(luster.Connecting)
	m.Reconnect()
	m.AuthFailure("x")
	m.HeartbeatRTT(time.Second)
	m.FrameSent()
	m.FrameReceived()
	m.EventDispatched(luster.KindPong)
	m.ListenerFailed(luster.KindPong)
	m.DecodeFailed()
	m.SetQueueDepth(1)
}
