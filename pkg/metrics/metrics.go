package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Campaign scan duration (seconds)
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reminder_scan_duration_seconds",
			Help:    "Reminder eligibility scan duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"campaign"},
	)

	// Delivery jobs queued by scans
	ReminderJobsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_jobs_queued_total",
			Help: "Total reminder delivery jobs queued",
		},
		[]string{"campaign", "stage"},
	)

	// Delivery outcomes per channel
	DeliveryOutcome = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_total",
			Help: "Notification delivery attempts by channel and status",
		},
		[]string{"channel", "status"}, // status: sent, failed, suppressed
	)

	// In-app fallback activations after a failed email send
	FallbackActivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_fallback_total",
			Help: "Total in-app fallbacks triggered by failed email sends",
		},
	)

	// MQ consumption latency (milliseconds)
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveScan records one eligibility scan.
func ObserveScan(campaign string, duration time.Duration) {
	ScanDuration.WithLabelValues(campaign).Observe(duration.Seconds())
}

// IncJobsQueued counts one queued delivery job.
func IncJobsQueued(campaign, stage string) {
	ReminderJobsQueued.WithLabelValues(campaign, stage).Inc()
}

// IncDelivery counts one delivery attempt outcome.
func IncDelivery(channel, status string) {
	DeliveryOutcome.WithLabelValues(channel, status).Inc()
}

// IncFallback counts one email-to-in-app fallback.
func IncFallback() {
	FallbackActivations.Inc()
}

// RecordMQConsumeLatency records MQ consumption latency.
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
