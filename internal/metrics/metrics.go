// Package metrics holds the prometheus collectors shared by the checkout client and the
// reference backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	checkoutOutcomes   *prometheus.CounterVec
	cartSyncFailures   *prometheus.CounterVec
	statusPollTimeouts prometheus.Counter
	ordersCreated      *prometheus.CounterVec
	providerOutcomes   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checkoutOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "outcomes_total",
				Help:      "Checkout attempts by payment method and final client-side outcome.",
			},
			[]string{"payment_method", "outcome"},
		),
		cartSyncFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "sync_failures_total",
				Help:      "Cart backend round-trips that failed and fell back to local state.",
			},
			[]string{"operation"},
		),
		statusPollTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "orderstatus",
				Name:      "poll_timeouts_total",
				Help:      "Order status polls that gave up before observing the awaited status.",
			},
		),
		ordersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "orders",
				Name:      "created_total",
				Help:      "Orders created by the backend, by payment method.",
			},
			[]string{"payment_method"},
		),
		providerOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payments",
				Name:      "provider_outcomes_total",
				Help:      "Provider outcomes applied to orders.",
			},
			[]string{"provider", "outcome"},
		),
	}

	reg.MustRegister(
		m.checkoutOutcomes,
		m.cartSyncFailures,
		m.statusPollTimeouts,
		m.ordersCreated,
		m.providerOutcomes,
	)
	return m
}

func (m *Metrics) CheckoutOutcome(method, outcome string) {
	if m == nil {
		return
	}
	m.checkoutOutcomes.WithLabelValues(method, outcome).Inc()
}

// CartSyncFailure counts a failed load or sync.
func (m *Metrics) CartSyncFailure(operation string) {
	if m == nil {
		return
	}
	m.cartSyncFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) StatusPollTimeout() {
	if m == nil {
		return
	}
	m.statusPollTimeouts.Inc()
}

func (m *Metrics) OrderCreated(method string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(method).Inc()
}

func (m *Metrics) ProviderOutcome(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerOutcomes.WithLabelValues(provider, outcome).Inc()
}
