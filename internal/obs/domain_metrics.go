package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteTotal counts pricing/loyalty quote computations by outcome.
	QuoteTotal *prometheus.CounterVec
	// SettlementTotal counts settlement attempts by outcome.
	SettlementTotal *prometheus.CounterVec
	// SettlementLatency records settlement durations in milliseconds.
	SettlementLatency *prometheus.HistogramVec
	// SettlementClampTotal counts settlements where the requested redemption exceeded the live balance.
	SettlementClampTotal prometheus.Counter
	// PointsRedeemedTotal accumulates points debited across all settlements.
	PointsRedeemedTotal prometheus.Counter
	// PointsEarnedTotal accumulates points credited across all settlements.
	PointsEarnedTotal prometheus.Counter
	// WebhookDeliveriesTotal tracks outbound event delivery outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_quote_total",
			Help:      "Count of loyalty quote computations by outcome.",
		}, []string{"result"}))
		SettlementTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_settlement_total",
			Help:      "Count of settlement attempts by outcome.",
		}, []string{"result"}))
		SettlementLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loyalty_settlement_duration_ms",
			Help:      "Settlement latency in milliseconds.",
			Buckets:   defaultBucketsMs,
		}, []string{"result"}))
		SettlementClampTotal = register[prometheus.Counter](reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_settlement_clamp_total",
			Help:      "Settlements where the redemption was clamped to the available balance.",
		}))
		PointsRedeemedTotal = register[prometheus.Counter](reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_redeemed_total",
			Help:      "Total points debited from user balances.",
		}))
		PointsEarnedTotal = register[prometheus.Counter](reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_earned_total",
			Help:      "Total points credited to user balances.",
		}))
		WebhookDeliveriesTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of outbound event delivery outcomes.",
		}, []string{"result"}))
	})
}
