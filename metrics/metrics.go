// Package metrics holds the prometheus instruments of one SDK client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics groups every instrument of a client. Instances are registered
// against a caller-supplied registerer so several clients can coexist.
type Metrics struct {
	SyncTotal        *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	Toggles          prometheus.Gauge
	EventsRecorded   *prometheus.CounterVec
	EventsDropped    prometheus.Counter
	EventFlushes     *prometheus.CounterVec
	RealtimeConnects *prometheus.CounterVec
	RealtimeMessages *prometheus.CounterVec
}

// New registers the instruments with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		SyncTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "featureprobe_sync_total",
			Help: "Toggle synchronizations by trigger and result",
		}, []string{"trigger", "result"}),

		SyncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "featureprobe_sync_duration_seconds",
			Help:    "Toggle synchronization duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"trigger"}),

		Toggles: f.NewGauge(prometheus.GaugeOpts{
			Name: "featureprobe_toggles",
			Help: "Number of toggles in the current repository snapshot",
		}),

		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "featureprobe_events_recorded_total",
			Help: "Telemetry events queued by kind",
		}, []string{"kind"}),

		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "featureprobe_events_dropped_total",
			Help: "Telemetry events dropped because the queue was full",
		}),

		EventFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "featureprobe_event_flushes_total",
			Help: "Event batch uploads by result",
		}, []string{"result"}),

		RealtimeConnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "featureprobe_realtime_connects_total",
			Help: "Realtime connection attempts by result",
		}, []string{"result"}),

		RealtimeMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "featureprobe_realtime_messages_total",
			Help: "Realtime messages received by event name",
		}, []string{"event"}),
	}
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
