// Package metrics declares the Prometheus collectors shared by the API and the
// consumer. Collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tradestore"

var (
	IngesterMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingester",
			Name:      "messages_total",
			Help:      "Trade messages handled by the consumer, by outcome",
		},
		[]string{"outcome"},
	)

	IngesterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingester",
			Name:      "errors_total",
			Help:      "Unexpected errors while consuming trade messages, by stage",
		},
		[]string{"stage"},
	)

	IngesterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingester",
			Name:      "message_duration_seconds",
			Help:      "Time spent handling one trade message",
			Buckets:   prometheus.DefBuckets,
		},
	)

	AdmissionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "results_total",
			Help:      "Trade submissions by admission result",
		},
		[]string{"result"},
	)

	AdmissionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "errors_total",
			Help:      "Infrastructure errors while admitting a trade, by stage",
		},
		[]string{"stage"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Error stages.
const (
	StageDecode       = "decode"
	StageLookup       = "lookup"
	StagePersist      = "persist"
	StageStatusUpdate = "status_update"
	StageCommit       = "commit"
	StageFetch        = "fetch"
	StagePending      = "pending_record"
	StagePublish      = "publish"
)
