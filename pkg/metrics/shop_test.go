package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShopMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewShopMetrics(reg)

	m.CheckoutSession("created")
	m.CheckoutSession("created")
	m.ProviderCall("checkout_session", "retry")
	m.WebhookEvent("duplicate")
	m.Fulfillment("fulfilled")
	m.Oversold(3)
	m.Oversold(0)
	m.Email("order_confirmation", "sent")
	m.OutboxPublish("order_paid", "published")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkoutSessions.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("checkout_session", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fulfillments.WithLabelValues("fulfilled")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.oversoldUnits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("order_confirmation", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxPublishes.WithLabelValues("order_paid", "published")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotNil(t, findMetricFamily(mfs, "kiggyshop_fulfillments_total"))
}

func TestShopMetricsNilSafe(t *testing.T) {
	var m *ShopMetrics
	m.CheckoutSession("created")
	m.Fulfillment("failed")

	noop := NewShopMetrics(nil)
	noop.WebhookEvent("processed")
	noop.Oversold(2)
}

func TestShopMetricsBlankLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewShopMetrics(reg)

	m.WebhookEvent("")
	m.ProviderCall("  ", "ok")
	m.Email("order_shipped", " sent ")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("unknown", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("order_shipped", "sent")))
}
