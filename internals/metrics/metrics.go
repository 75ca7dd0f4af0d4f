// Package metrics exposes Prometheus collectors for the funding ledger.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliations by outcome: applied, duplicate, rejected, conflict, invalid_state, error.
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvt_reconciliations_total",
			Help: "Donation reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	ReconcileRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kvt_reconcile_retries_total",
			Help: "Reconciliation attempts retried after a concurrency conflict",
		},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvt_reconcile_duration_seconds",
			Help:    "Wall time of a reconciliation including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	AcceptedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kvt_donation_accepted_amount_vnd_total",
			Help: "Sum of donation amounts applied to campaign ledgers",
		},
	)

	CampaignTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvt_campaign_transitions_total",
			Help: "Campaign lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	DonationsNeedingReview = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvt_donations_needs_review_total",
			Help: "Donations routed to manual review instead of the ledger",
		},
		[]string{"reason"},
	)

	RefundCredits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kvt_refund_credits_total",
			Help: "Wallet refund credits issued for cancelled campaigns",
		},
	)

	GatewayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvt_gateway_events_total",
			Help: "Payment gateway notifications by provider and processing status",
		},
		[]string{"provider", "status"},
	)

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvt_notifications_published_total",
			Help: "Lifecycle notifications handed to the dispatcher",
		},
		[]string{"kind", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvt_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvt_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordReconciliation(outcome string, amount int64, started time.Time) {
	Reconciliations.WithLabelValues(outcome).Inc()
	ReconcileDuration.Observe(time.Since(started).Seconds())
	if outcome == "applied" && amount > 0 {
		AcceptedAmount.Add(float64(amount))
	}
}

func RecordTransition(from, to string) {
	CampaignTransitions.WithLabelValues(from, to).Inc()
}

func RecordHTTP(method, route string, status int, took time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
