package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the counters below.
const (
	OutcomeIssued       = "issued"
	OutcomeCached       = "cached"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
	OutcomeCompensated  = "compensated"
	OutcomeReconciled   = "reconciled"
	OutcomeIgnored      = "ignored"
	OutcomeUnresolved   = "unresolved"
	OutcomeDuplicate    = "duplicate"
	OutcomeBadSignature = "bad_signature"
	OutcomeMalformed    = "malformed"
	OutcomeApplied      = "applied"
	OutcomeSucceeded    = "succeeded"
)

// PaymentMetrics records issuance, webhook, and gateway activity.
type PaymentMetrics struct {
	linksIssued     *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	linksIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_links_issued_total",
		Help: "Payment link issuance attempts by outcome.",
	}, []string{"outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Gateway webhook deliveries by outcome.",
	}, []string{"outcome"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_compensations_total",
		Help: "Compensation messages by outcome.",
	}, []string{"outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Duration of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	reg.MustRegister(linksIssued, webhooks, compensations, gatewayDuration)
	return &PaymentMetrics{
		linksIssued:     linksIssued,
		webhooks:        webhooks,
		compensations:   compensations,
		gatewayDuration: gatewayDuration,
	}
}

func (m *PaymentMetrics) IncLinkIssued(outcome string) {
	if m == nil || m.linksIssued == nil {
		return
	}
	m.linksIssued.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncCompensation(outcome string) {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGateway records the duration of one gateway call.
func (m *PaymentMetrics) ObserveGateway(operation, outcome string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
