package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics holds Prometheus metrics for the insight fan-out service.
type RealtimeMetrics struct {
	ActiveSessions      prometheus.Gauge
	ActiveUsers         prometheus.Gauge
	QueuedUpdates       prometheus.Gauge
	CommandChannelDepth prometheus.Gauge
	UpdatesPublished    *prometheus.CounterVec
	UpdatesDelivered    prometheus.Counter
	UpdatesDropped      *prometheus.CounterVec
	SessionsEvicted     *prometheus.CounterVec
	PingsSent           prometheus.Counter
	MalformedMessages   prometheus.Counter
	DispatchDuration    prometheus.Histogram
	SendDuration        prometheus.Histogram
}

// NewRealtimeMetrics creates and registers realtime metrics on the given registry.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	m := &RealtimeMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "active_sessions",
			Help:      "Number of registered client sessions.",
		}),
		ActiveUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "active_users",
			Help:      "Number of users with at least one registered session.",
		}),
		QueuedUpdates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "queued_updates",
			Help:      "Number of updates waiting for the next dispatch tick.",
		}),
		CommandChannelDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "command_channel_depth",
			Help:      "Current depth of the service command channel.",
		}),
		UpdatesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "updates_published_total",
			Help:      "Total number of updates accepted for dispatch, by topic.",
		}, []string{"topic"}),
		UpdatesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "updates_delivered_total",
			Help:      "Total number of insight envelopes handed to session writers.",
		}),
		UpdatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "updates_dropped_total",
			Help:      "Total number of updates dropped before delivery, by reason.",
		}, []string{"reason"}),
		SessionsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "sessions_removed_total",
			Help:      "Total number of sessions removed, by reason.",
		}, []string{"reason"}),
		PingsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "pings_sent_total",
			Help:      "Total number of heartbeat pings enqueued.",
		}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "malformed_messages_total",
			Help:      "Total number of inbound client messages that could not be handled.",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of one dispatch tick in seconds.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "send_duration_seconds",
			Help:      "Duration of a single transport write in seconds.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		}),
	}

	reg.MustRegister(
		m.ActiveSessions, m.ActiveUsers, m.QueuedUpdates, m.CommandChannelDepth,
		m.UpdatesPublished, m.UpdatesDelivered, m.UpdatesDropped, m.SessionsEvicted,
		m.PingsSent, m.MalformedMessages, m.DispatchDuration, m.SendDuration,
	)
	return m
}
