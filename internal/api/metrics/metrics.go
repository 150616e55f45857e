// Package metrics defines and registers all custom Prometheus metrics for the
// geotask API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// init through promauto, and served on /metrics next to the HTTP metrics
// collected by echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "geotask"

// ── Location metrics ──────────────────────────────────────────────────────────

// LocationsProcessedTotal counts samples that completed processing.
// Label:
//   - source: where the sample came from ("http", "mqtt", …)
var LocationsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locations_processed_total",
		Help:      "Total number of location samples successfully processed.",
	},
	[]string{"source"},
)

// LocationsErrorsTotal counts samples that were not applied.
// Label:
//   - reason: "stale", "invalid", "queue_full" or "failed"
var LocationsErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locations_errors_total",
		Help:      "Total number of location samples dropped or failed, by reason.",
	},
	[]string{"reason"},
)

// LocationQueueDepth tracks samples waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var LocationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "location_queue_depth",
		Help:      "Current number of samples pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// LocationProcessingDuration measures dequeue-to-done time for one sample.
// Label:
//   - result: "ok" or the error reason
var LocationProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "location_processing_duration_seconds",
		Help:      "Duration of location processing from dequeue to presence update.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

// ── Task metrics ──────────────────────────────────────────────────────────────

// TasksCreatedTotal counts newly created tasks.
// Label:
//   - geofenced: "true" or "false"
var TasksCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_created_total",
		Help:      "Total number of tasks created.",
	},
	[]string{"geofenced"},
)

// TaskAcknowledgementsTotal counts acknowledgement attempts.
// Label:
//   - result: "accepted", "outside_geofence", "location_required",
//     "location_unknown" or "rejected"
var TaskAcknowledgementsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_acknowledgements_total",
		Help:      "Total number of task acknowledgement attempts, by result.",
	},
	[]string{"result"},
)

// ── Integration metrics ───────────────────────────────────────────────────────

// EventsPublishedTotal counts domain events sent to NATS.
// Labels:
//   - subject: the NATS subject
//   - result: "ok" or "error"
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of domain events published, by subject and result.",
	},
	[]string{"subject", "result"},
)

// MQTTMessagesTotal counts location messages received over MQTT.
// Label:
//   - result: "enqueued" or "rejected"
var MQTTMessagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_messages_total",
		Help:      "Total number of MQTT location messages received, by result.",
	},
	[]string{"result"},
)
