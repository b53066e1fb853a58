package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersCreatedTotal counts order creation outcomes by delivery type.
	OrdersCreatedTotal *prometheus.CounterVec
	// PricingReconcileTotal counts client totals reconciliation outcomes.
	PricingReconcileTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment initialisation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// LoyaltyPointsTotal tracks points moved through the ledger by direction and reason.
	LoyaltyPointsTotal *prometheus.CounterVec
	// RewardEventsTotal counts reward lifecycle events.
	RewardEventsTotal *prometheus.CounterVec
	// CardScanTotal counts loyalty card scan outcomes.
	CardScanTotal *prometheus.CounterVec
	// RewardSweepDuration records reward expiry sweep duration in milliseconds.
	RewardSweepDuration prometheus.Histogram
)

// RecordPoints increments the loyalty points counter when metrics are registered.
func RecordPoints(direction, reason string, amount int64) {
	if LoyaltyPointsTotal == nil || amount <= 0 {
		return
	}
	LoyaltyPointsTotal.WithLabelValues(direction, reason).Add(float64(amount))
}

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of order creation outcomes by delivery type.",
		}, []string{"delivery_type", "result"})
		PricingReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_reconcile_total",
			Help:      "Count of client totals reconciliation outcomes.",
		}, []string{"result"})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment initialisation outcomes.",
		}, []string{"provider", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})
		LoyaltyPointsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_total",
			Help:      "Points credited or debited through the loyalty ledger.",
		}, []string{"direction", "reason"})
		RewardEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_events_total",
			Help:      "Reward lifecycle events by type and outcome.",
		}, []string{"event", "result"})
		CardScanTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_scan_total",
			Help:      "Loyalty card scan outcomes.",
		}, []string{"result"})
		RewardSweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reward_sweep_duration_ms",
			Help:      "Duration of reward expiry sweeps in milliseconds.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 15000},
		})

		reg.MustRegister(
			OrdersCreatedTotal,
			PricingReconcileTotal,
			PaymentIntentTotal,
			PaymentWebhookTotal,
			LoyaltyPointsTotal,
			RewardEventsTotal,
			CardScanTotal,
			RewardSweepDuration,
		)
	})
}
