// Package metrics exposes the Prometheus collectors shared by the pipeline
// services. Collectors are registered on the default registry; the HTTP
// surface serves them under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration observes REST request latency per route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genarc_http_request_duration_seconds",
		Help:    "REST request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// EventsPublished counts events shipped to the broker per topic and type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_events_published_total",
		Help: "Events published to the broker.",
	}, []string{"topic", "type"})

	// EventsConsumed counts successfully handled events per topic and type.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_events_consumed_total",
		Help: "Events consumed and handled successfully.",
	}, []string{"topic", "type"})

	// EventsDeadLettered counts events shunted to the DLQ per topic and type.
	EventsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_events_dead_lettered_total",
		Help: "Events moved to the dead-letter queue.",
	}, []string{"topic", "type"})

	// UploadsCompleted counts completed multipart uploads per storage alias.
	UploadsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_uploads_completed_total",
		Help: "Multipart uploads completed.",
	}, []string{"storage_alias"})

	// FilesRegistered counts files archived into permanent storage.
	FilesRegistered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_files_registered_total",
		Help: "Files copied into permanent storage and registered.",
	}, []string{"storage_alias"})

	// DownloadsServed counts served presigned download URLs.
	DownloadsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_downloads_served_total",
		Help: "Presigned download URLs served.",
	}, []string{"storage_alias"})

	// StagingRequests counts downloads deferred because the object was not
	// yet staged in the outbox bucket.
	StagingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_staging_requests_total",
		Help: "Download requests deferred pending outbox staging.",
	}, []string{"storage_alias"})

	// OutboxOrphanObjects counts outbox objects found without a matching
	// registry record during cleanup. A nonzero rate means registry and
	// storage have diverged and an operator should reconcile them.
	OutboxOrphanObjects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_outbox_orphan_objects_total",
		Help: "Outbox objects with no matching DRS object record.",
	}, []string{"storage_alias"})

	// OutboxObjectsDeleted counts expired outbox objects removed by cleanup.
	OutboxObjectsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genarc_outbox_objects_deleted_total",
		Help: "Expired outbox objects removed by cleanup.",
	}, []string{"storage_alias"})
)
