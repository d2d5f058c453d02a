package billing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeApplied   = "applied"
	outcomeIgnored   = "ignored"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
	outcomeCreated   = "created"
	outcomeNoop      = "noop"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	webhookEvents      *prometheus.CounterVec
	webhookDuration    *prometheus.HistogramVec
	checkouts          *prometheus.CounterVec
	teamLimitChanges   *prometheus.CounterVec
	remoteSyncFailures *prometheus.CounterVec
	driftRepairs       prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaguebilling",
			Name:      "webhook_events_total",
			Help:      "Processed payment webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		webhookDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leaguebilling",
			Name:      "webhook_event_duration_seconds",
			Help:      "Time spent reconciling one webhook event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		checkouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaguebilling",
			Name:      "checkout_sessions_total",
			Help:      "Checkout session requests by outcome.",
		}, []string{"outcome"}),
		teamLimitChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaguebilling",
			Name:      "team_limit_changes_total",
			Help:      "Team limit change requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		remoteSyncFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaguebilling",
			Name:      "remote_sync_failures_total",
			Help:      "Local changes the payment processor did not confirm.",
		}, []string{"operation"}),
		driftRepairs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "leaguebilling",
			Name:      "drift_repairs_total",
			Help:      "Subscriptions whose remote quantity was re-applied by reconciliation.",
		}),
	}
}

func (m *Metrics) observeWebhook(t EventType, outcome string, took time.Duration) {
	label := string(t)
	switch t {
	case EventCheckoutCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventInvoicePaymentSucceeded, EventInvoiceUpcoming:
	default:
		label = "other"
	}
	m.webhookEvents.WithLabelValues(label, outcome).Inc()
	m.webhookDuration.WithLabelValues(label).Observe(took.Seconds())
}
