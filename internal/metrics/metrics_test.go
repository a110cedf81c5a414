package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CheckoutOutcome("paypal", "declined")
	m.CheckoutOutcome("paypal", "declined")
	m.CheckoutOutcome("cash_on_delivery", "success")
	m.CartSyncFailure("sync")
	m.StatusPollTimeout()
	m.OrderCreated("braintree")
	m.ProviderOutcome("braintree", "cancelled")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkoutOutcomes.WithLabelValues("paypal", "declined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkoutOutcomes.WithLabelValues("cash_on_delivery", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cartSyncFailures.WithLabelValues("sync")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statusPollTimeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCreated.WithLabelValues("braintree")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerOutcomes.WithLabelValues("braintree", "cancelled")))
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.StatusPollTimeout()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "storefront_orderstatus_poll_timeouts_total")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CheckoutOutcome("paypal", "success")
		m.CartSyncFailure("load")
		m.StatusPollTimeout()
		m.OrderCreated("paypal")
		m.ProviderOutcome("paypal", "success")
	})
}
