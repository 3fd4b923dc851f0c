package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Purchase session lifecycle
	purchaseSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_sessions_total",
		Help: "Purchase session operations by resulting state",
	}, []string{
		"operation", // init, process, captcha, complete_3ds, postback
		"state",     // validated, processing, pending, processed, aborted, error
	})

	// Purchase processing duration (end-to-end)
	purchaseProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "purchase_processing_duration_seconds",
		Help: "Time to run a purchase operation end-to-end",
		// Buckets: 50ms to 30s (cascades can hit several billers)
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"operation",
	})

	// Cascade submit attempts
	cascadeSubmitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_submits_total",
		Help: "Charge attempts per biller and outcome",
	}, []string{
		"biller",
		"outcome", // approved, declined, pending, aborted, unknown, error
	})

	// Fraud provider fallbacks (fail-open)
	fraudFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_fallbacks_total",
		Help: "Fraud evaluations that fell back to the default advice",
	}, []string{
		"path", // new_member, existing_member, legacy, member_email
	})

	// Postback reconciliation
	postbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postbacks_total",
		Help: "Asynchronous biller notifications by outcome",
	}, []string{
		"outcome", // applied, already_processed, not_found, conflict, error
	})

	// Site lookup cache
	siteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "site_cache_hits_total",
		Help: "Site lookups served from cache",
	})

	siteCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_cache_misses_total",
		Help: "Site lookups that went to the configuration service",
	}, []string{
		"reason", // not_cached, expired
	})

	// BI event emission
	biEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bi_events_total",
		Help: "BI snapshots handed to the event publisher",
	}, []string{
		"outcome", // published, failed
	})
)

// RecordPurchaseOperation records the outcome and duration of a purchase operation
func RecordPurchaseOperation(operation, state string, duration float64) {
	purchaseSessionsTotal.WithLabelValues(operation, state).Inc()
	purchaseProcessingDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCascadeSubmit records one charge attempt against a biller
func RecordCascadeSubmit(biller, outcome string) {
	cascadeSubmitsTotal.WithLabelValues(biller, outcome).Inc()
}

// RecordFraudFallback records a fail-open fraud decision
func RecordFraudFallback(path string) {
	fraudFallbacksTotal.WithLabelValues(path).Inc()
}

// RecordPostback records a reconciled biller notification
func RecordPostback(outcome string) {
	postbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordSiteCacheHit records a site lookup served from cache
func RecordSiteCacheHit() {
	siteCacheHits.Inc()
}

// RecordSiteCacheMiss records a site lookup that missed the cache
func RecordSiteCacheMiss(reason string) {
	siteCacheMisses.WithLabelValues(reason).Inc()
}

// RecordBIEvent records a BI publish attempt
func RecordBIEvent(outcome string) {
	biEventsTotal.WithLabelValues(outcome).Inc()
}
