// Package metrics holds the Prometheus collectors shared by the API server and the lambdas.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coupon_exchange"

var (
	TransactionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transaction_transitions_total",
		Help:      "Handshake state transitions, by source and target status.",
	}, []string{"from", "to"})

	TransactionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transaction_conflicts_total",
		Help:      "Handshake operations rejected because of concurrent changes.",
	}, []string{"operation"})

	LedgerEntriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_entries_appended_total",
		Help:      "Ledger entries appended, by source.",
	}, []string{"source"})

	LedgerDuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_duplicates_skipped_total",
		Help:      "Candidate ledger entries skipped because they were already recorded.",
	})

	CouponStatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coupon_status_changes_total",
		Help:      "Coupon lifecycle status changes, by new status.",
	}, []string{"status"})

	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_failures_total",
		Help:      "Notification deliveries that failed, by channel.",
	}, []string{"channel"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
