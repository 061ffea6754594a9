package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Snapshots        *prometheus.CounterVec
	FetchLatency     prometheus.Histogram
	Deliveries       *prometheus.GaugeVec
	Marks            prometheus.Counter
	Dispatches       *prometheus.CounterVec
	ConnectionPhase  *prometheus.GaugeVec
	ConnectionsTotal prometheus.Gauge
	MessagesSent     prometheus.Counter
	KafkaMessages    *prometheus.CounterVec
	RedisOperations  *prometheus.CounterVec
	AuthFailures     prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Snapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "balloon_snapshots_total",
			Help: "Snapshot fetches from the contest proxy",
		}, []string{"status"}),
		FetchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "balloon_snapshot_fetch_seconds",
			Help:    "Snapshot fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Deliveries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "balloon_deliveries",
			Help: "Current balloons by status",
		}, []string{"status"}),
		Marks: factory.NewCounter(prometheus.CounterOpts{
			Name: "balloon_marks_total",
			Help: "Balloons marked delivered by runners",
		}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "balloon_dispatch_total",
			Help: "Print/notify dispatches per sink",
		}, []string{"sink", "status"}),
		ConnectionPhase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "balloon_connection_state",
			Help: "1 for the current connection phase, 0 otherwise",
		}, []string{"phase"}),
		ConnectionsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections_total",
			Help: "Total number of active WebSocket connections",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_messages_sent_total",
			Help: "Total number of messages sent to clients",
		}),
		KafkaMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Total number of Kafka messages processed",
		}, []string{"topic", "status"}),
		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		}, []string{"operation", "status"}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
	}
}

func (m *Metrics) ObserveSnapshot(status string, seconds float64) {
	m.Snapshots.WithLabelValues(status).Inc()
	m.FetchLatency.Observe(seconds)
}

// SetDeliveries publishes the current count of balloons per status.
func (m *Metrics) SetDeliveries(counts map[string]int) {
	m.Deliveries.Reset()
	for status, n := range counts {
		m.Deliveries.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) IncMarks() {
	m.Marks.Inc()
}

func (m *Metrics) IncDispatch(sink, status string) {
	m.Dispatches.WithLabelValues(sink, status).Inc()
}

// SetConnectionPhase flips the phase gauge so exactly one phase reads 1.
func (m *Metrics) SetConnectionPhase(current string, all []string) {
	for _, phase := range all {
		v := 0.0
		if phase == current {
			v = 1
		}
		m.ConnectionPhase.WithLabelValues(phase).Set(v)
	}
}

func (m *Metrics) IncConnections() {
	m.ConnectionsTotal.Inc()
}

func (m *Metrics) DecConnections() {
	m.ConnectionsTotal.Dec()
}

func (m *Metrics) IncMessagesSent() {
	m.MessagesSent.Inc()
}

func (m *Metrics) IncKafkaMessage(topic, status string) {
	m.KafkaMessages.WithLabelValues(topic, status).Inc()
}

func (m *Metrics) IncRedisOperation(operation, status string) {
	m.RedisOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncAuthFailures() {
	m.AuthFailures.Inc()
}
