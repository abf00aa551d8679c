package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics tracks inbound webhook outcomes per provider.
type WebhookMetrics struct {
	processed *prometheus.CounterVec
	duplicate *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	anomaly   *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_processed",
		Help:      "Webhook events applied to an order.",
	}, []string{"provider", "event"})
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_duplicate",
		Help:      "Webhook events skipped as already processed.",
	}, []string{"provider"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_rejected",
		Help:      "Webhook requests rejected before processing.",
	}, []string{"provider", "reason"})
	anomaly := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_anomaly",
		Help:      "Webhook events that contradicted recorded state.",
	}, []string{"provider", "event"})
	reg.MustRegister(processed, duplicate, rejected, anomaly)
	return &WebhookMetrics{
		processed: processed,
		duplicate: duplicate,
		rejected:  rejected,
		anomaly:   anomaly,
	}
}

// IncProcessed counts an applied event for the provider.
func (w *WebhookMetrics) IncProcessed(provider, event string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(provider), normalizeLabel(event)).Inc()
}

// IncDuplicate counts an event skipped by the idempotency guard.
func (w *WebhookMetrics) IncDuplicate(provider string) {
	if w == nil || w.duplicate == nil {
		return
	}
	w.duplicate.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncRejected counts a request turned away, e.g. on a bad signature.
func (w *WebhookMetrics) IncRejected(provider, reason string) {
	if w == nil || w.rejected == nil {
		return
	}
	w.rejected.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

// IncAnomaly counts an event ignored because it contradicted a terminal state.
func (w *WebhookMetrics) IncAnomaly(provider, event string) {
	if w == nil || w.anomaly == nil {
		return
	}
	w.anomaly.WithLabelValues(normalizeLabel(provider), normalizeLabel(event)).Inc()
}
