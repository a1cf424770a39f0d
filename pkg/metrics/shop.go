package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ShopMetrics covers the checkout-to-fulfillment pipeline.
type ShopMetrics struct {
	checkoutSessions *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	fulfillments     *prometheus.CounterVec
	oversoldUnits    prometheus.Counter
	emails           *prometheus.CounterVec
	outboxPublishes  *prometheus.CounterVec
}

// NewShopMetrics registers the pipeline metrics on reg. A nil registerer
// yields a no-op recorder.
func NewShopMetrics(reg prometheus.Registerer) *ShopMetrics {
	if reg == nil {
		return &ShopMetrics{}
	}
	m := &ShopMetrics{
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout sessions requested, by outcome.",
		}, []string{"outcome"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_provider_calls_total",
			Help:      "Payment provider API attempts, by operation and outcome.",
		}, []string{"op", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound payment webhooks, by outcome.",
		}, []string{"outcome"}),
		fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillments_total",
			Help:      "Fulfillment attempts, by outcome.",
		}, []string{"outcome"}),
		oversoldUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oversold_units_total",
			Help:      "Units sold beyond available stock at fulfillment time.",
		}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Transactional emails, by template and outcome.",
		}, []string{"template", "outcome"}),
		outboxPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publishes_total",
			Help:      "Outbox rows handed to the broker, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.checkoutSessions, m.providerCalls, m.webhookEvents, m.fulfillments, m.oversoldUnits, m.emails, m.outboxPublishes)
	return m
}

func (m *ShopMetrics) CheckoutSession(outcome string) {
	if m == nil || m.checkoutSessions == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ShopMetrics) ProviderCall(op, outcome string) {
	if m == nil || m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

func (m *ShopMetrics) WebhookEvent(outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ShopMetrics) Fulfillment(outcome string) {
	if m == nil || m.fulfillments == nil {
		return
	}
	m.fulfillments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ShopMetrics) Oversold(units int) {
	if m == nil || m.oversoldUnits == nil || units <= 0 {
		return
	}
	m.oversoldUnits.Add(float64(units))
}

func (m *ShopMetrics) Email(template, outcome string) {
	if m == nil || m.emails == nil {
		return
	}
	m.emails.WithLabelValues(normalizeLabel(template), normalizeLabel(outcome)).Inc()
}

func (m *ShopMetrics) OutboxPublish(eventType, outcome string) {
	if m == nil || m.outboxPublishes == nil {
		return
	}
	m.outboxPublishes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
