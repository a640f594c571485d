package licmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LicensesByStatus tracks the number of license records by active/inactive status.
	LicensesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chromapicker",
		Subsystem: "licensed",
		Name:      "licenses_by_status",
		Help:      "Number of license records by status (active/inactive).",
	}, []string{"status"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chromapicker",
		Subsystem: "licensed",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chromapicker",
		Subsystem: "licensed",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// IssuanceTotal counts license issuance attempts by outcome.
	IssuanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chromapicker",
		Subsystem: "licensed",
		Name:      "issuance_total",
		Help:      "Total license issuance attempts by outcome.",
	}, []string{"outcome"})

	// ValidationTotal counts license validation requests by outcome.
	ValidationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chromapicker",
		Subsystem: "licensed",
		Name:      "validation_total",
		Help:      "Total license validation requests by outcome.",
	}, []string{"outcome"})

	// EmailLookupTotal counts check-email requests by outcome.
	EmailLookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chromapicker",
		Subsystem: "licensed",
		Name:      "email_lookup_total",
		Help:      "Total license lookup-by-email requests by outcome.",
	}, []string{"outcome"})
)
