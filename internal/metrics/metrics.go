package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Geocode cache lookups by result.
	GeocodeCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saled_geocode_cache_lookups_total",
			Help: "Geocode cache lookups by result.",
		},
		[]string{"result"}, // hit | miss | error
	)

	// Outbound geocoding API calls.
	GeocoderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saled_geocoder_requests_total",
			Help: "Outbound geocoding API requests by outcome.",
		},
		[]string{"provider", "outcome"}, // ok | not_found | error | skipped
	)

	GeocoderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saled_geocoder_request_duration_seconds",
			Help:    "Duration of outbound geocoding API requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"provider"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "saled_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
		[]string{"name"},
	)

	// Reconciliation runs by result.
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saled_reconcile_runs_total",
			Help: "Status reconciliation runs by result.",
		},
		[]string{"result"}, // ok | partial | error
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "saled_reconcile_duration_seconds",
			Help:    "Duration of a full status reconciliation sweep.",
			Buckets: prometheus.DefBuckets,
		},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saled_status_transitions_total",
			Help: "Committed sale status transitions by target status.",
		},
		[]string{"status"},
	)

	BatchChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saled_batch_chunks_total",
			Help: "Atomic chunk commits by result.",
		},
		[]string{"result"},
	)

	// Creation trigger invocations by outcome.
	TriggerOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saled_creation_trigger_total",
			Help: "Creation trigger invocations by outcome.",
		},
		[]string{"outcome"},
	)

	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saled_nats_messages_total",
			Help: "NATS messages published by subject and result.",
		},
		[]string{"subject", "result"},
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saled_nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	AMQPDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saled_amqp_deliveries_total",
			Help: "RabbitMQ deliveries handled by queue and action.",
		},
		[]string{"queue", "action"}, // ack | requeue | drop
	)

	LastReconcileTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "saled_last_reconcile_timestamp",
			Help: "Unix time of the last successful reconciliation run.",
		},
	)
)

// ObserveDuration records time since start on a histogram vec.
func ObserveDuration(v *prometheus.HistogramVec, start time.Time, labels ...string) {
	v.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncCacheLookup(result string) {
	GeocodeCacheLookups.WithLabelValues(result).Inc()
}

func IncGeocoderRequest(provider, outcome string) {
	GeocoderRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

func IncTriggerOutcome(outcome string) {
	TriggerOutcomesTotal.WithLabelValues(outcome).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncAMQPDelivery(queue, action string) {
	AMQPDeliveriesTotal.WithLabelValues(queue, action).Inc()
}

func SetLastReconcile(t time.Time) {
	LastReconcileTimestamp.Set(float64(t.Unix()))
}
