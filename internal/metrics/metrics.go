package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the marketplace backend.
type Metrics struct {
	Purchases           *prometheus.CounterVec
	PurchaseDuration    prometheus.Histogram
	Deposits            *prometheus.CounterVec
	Refunds             prometheus.Counter
	LedgerMismatches    prometheus.Counter
	Reconciliations     prometheus.Counter
	LeadsExpired        prometheus.Counter
	NotificationsSent   *prometheus.CounterVec
	NotificationsQueued prometheus.Gauge
	CacheLookups        *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg. Passing nil skips
// registration, which tests use to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Purchases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadmarket_purchases_total",
				Help: "Purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		PurchaseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadmarket_purchase_duration_seconds",
				Help:    "Time spent inside the purchase atomic unit",
				Buckets: prometheus.DefBuckets,
			},
		),
		Deposits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadmarket_deposits_total",
				Help: "Deposit attempts by outcome",
			},
			[]string{"outcome"},
		),
		Refunds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "leadmarket_refunds_total",
				Help: "Refunded purchases",
			},
		),
		LedgerMismatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "leadmarket_ledger_mismatches_total",
				Help: "Accounts whose cached balance disagreed with the ledger replay",
			},
		),
		Reconciliations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "leadmarket_reconciliations_total",
				Help: "Account reconciliations performed",
			},
		),
		LeadsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "leadmarket_leads_expired_total",
				Help: "Leads moved to expired by the expiry job",
			},
		),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadmarket_notifications_total",
				Help: "Notification deliveries by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		NotificationsQueued: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadmarket_notifications_queued",
				Help: "Notifications waiting in the in-process queue",
			},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadmarket_cache_lookups_total",
				Help: "Read cache lookups by result",
			},
			[]string{"cache", "result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadmarket_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadmarket_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.Purchases,
			m.PurchaseDuration,
			m.Deposits,
			m.Refunds,
			m.LedgerMismatches,
			m.Reconciliations,
			m.LeadsExpired,
			m.NotificationsSent,
			m.NotificationsQueued,
			m.CacheLookups,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}

// NewNop returns unregistered collectors.
func NewNop() *Metrics {
	return New(nil)
}
