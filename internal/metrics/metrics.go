package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pushtray/pushtray/internal/conn"
	"github.com/pushtray/pushtray/internal/dispatch"
	"github.com/pushtray/pushtray/internal/store"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ConnectionUp         prometheus.Gauge
	ReconnectsScheduled  prometheus.Counter
	HeartbeatsSent       prometheus.Counter
	FramesReceived       prometheus.Counter
	FrameBytes           prometheus.Counter
	Authenticated        prometheus.Gauge
	ControlFrames        *prometheus.CounterVec
	NotificationsPushed  prometheus.Counter
	FramesDropped        *prometheus.CounterVec
	NotificationsActive  prometheus.Gauge
	NotificationsAdded   prometheus.Counter
	NotificationsRemoved *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "push_connection_up",
			Help: "1 while the push channel is connected, 0 otherwise.",
		}),
		ReconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_reconnects_scheduled_total",
			Help: "Total number of reconnect attempts scheduled after a loss.",
		}),
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_heartbeats_sent_total",
			Help: "Total number of ping frames written to the push channel.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_frames_received_total",
			Help: "Total number of raw frames read from the push channel.",
		}),
		FrameBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_frame_bytes_total",
			Help: "Total payload bytes read from the push channel.",
		}),
		Authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "push_authenticated",
			Help: "1 when the last connection_ack reported an authenticated session.",
		}),
		ControlFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_control_frames_total",
			Help: "Control frames consumed by the dispatcher, by frame type.",
		}, []string{"type"}),
		NotificationsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_pushed_total",
			Help: "Data messages accepted from the push channel into the store.",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_frames_dropped_total",
			Help: "Candidates dropped by the dispatcher, by reason.",
		}, []string{"reason"}),
		NotificationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifications_active",
			Help: "Current number of notifications held by the store.",
		}),
		NotificationsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_added_total",
			Help: "Total notifications inserted into the store, any source.",
		}),
		NotificationsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_removed_total",
			Help: "Total notifications removed from the store, by cause.",
		}, []string{"cause"}),
	}

	reg.MustRegister(
		m.ConnectionUp,
		m.ReconnectsScheduled,
		m.HeartbeatsSent,
		m.FramesReceived,
		m.FrameBytes,
		m.Authenticated,
		m.ControlFrames,
		m.NotificationsPushed,
		m.FramesDropped,
		m.NotificationsActive,
		m.NotificationsAdded,
		m.NotificationsRemoved,
	)

	return m
}

// ConnHooks returns the callbacks expected by conn.Hooks, so the
// manager itself never imports prometheus.
func (m *Metrics) ConnHooks() conn.Hooks {
	return conn.Hooks{
		OnStateChange: func(s conn.State) {
			if s == conn.StateConnected {
				m.ConnectionUp.Set(1)
			} else {
				m.ConnectionUp.Set(0)
			}
		},
		OnFrame: func(bytes int) {
			m.FramesReceived.Inc()
			m.FrameBytes.Add(float64(bytes))
		},
		OnHeartbeat: func() {
			m.HeartbeatsSent.Inc()
		},
		OnReconnectScheduled: func(time.Duration, int) {
			m.ReconnectsScheduled.Inc()
		},
	}
}

// DispatchHooks returns the callbacks expected by dispatch.Hooks.
func (m *Metrics) DispatchHooks() dispatch.Hooks {
	return dispatch.Hooks{
		OnData: func() {
			m.NotificationsPushed.Inc()
		},
		OnControl: func(frameType string) {
			m.ControlFrames.WithLabelValues(frameType).Inc()
		},
		OnDropped: func(reason string) {
			m.FramesDropped.WithLabelValues(reason).Inc()
		},
		OnAck: func(authenticated bool) {
			if authenticated {
				m.Authenticated.Set(1)
			} else {
				m.Authenticated.Set(0)
			}
		},
	}
}

// StoreObserver returns a store subscriber that keeps the active gauge
// and removal counters current. Wired via store.Subscribe at startup.
func (m *Metrics) StoreObserver() func(store.Event) {
	return func(ev store.Event) {
		switch ev.Op {
		case store.OpAdd:
			m.NotificationsAdded.Inc()
			m.NotificationsActive.Inc()
		case store.OpRemove:
			m.NotificationsRemoved.WithLabelValues(string(ev.Cause)).Inc()
			m.NotificationsActive.Dec()
		case store.OpClear:
			m.NotificationsRemoved.WithLabelValues(string(ev.Cause)).Add(float64(ev.Count))
			m.NotificationsActive.Set(0)
		}
	}
}
