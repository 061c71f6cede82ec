package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PaymentsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultpay_payments_processed_total",
			Help: "Total number of successfully processed subscription payments",
		},
	)
	PaymentsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultpay_payments_failed_total",
			Help: "Total number of rejected processPayment attempts",
		},
		[]string{"reason"},
	)
	FeesCollectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultpay_fees_collected_total",
			Help: "Cumulative platform fees routed to the treasury, in base units",
		},
	)
	VendorPayoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultpay_vendor_payouts_total",
			Help: "Cumulative amounts routed to vendor custody, in base units",
		},
	)
	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultpay_subscriptions_active",
			Help: "Number of subscriptions currently in the active state",
		},
	)
	TreasuryClaimsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultpay_treasury_claims_total",
			Help: "Total number of successful treasury claims",
		},
	)
)

// Register attaches all protocol collectors to the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		PaymentsProcessedTotal,
		PaymentsFailedTotal,
		FeesCollectedTotal,
		VendorPayoutsTotal,
		SubscriptionsActive,
		TreasuryClaimsTotal,
	)
}
