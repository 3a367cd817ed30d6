package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the appointment lifecycle.
type BookingMetrics struct {
	createdTotal      *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	cancellationsFee  prometheus.Counter
	slotConflictTotal prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		createdTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Total appointments created, by initial status",
		}, []string{"status", "entitlement"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "bookings",
			Name:      "transitions_total",
			Help:      "Total appointment status transitions",
		}, []string{"from", "to"}),
		cancellationsFee: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "bookings",
			Name:      "cancellation_fees_total",
			Help:      "Total cancellations that incurred a late fee",
		}),
		slotConflictTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "bookings",
			Name:      "slot_conflicts_total",
			Help:      "Total bookings rejected because the slot was taken",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.createdTotal, m.transitionsTotal, m.cancellationsFee, m.slotConflictTotal)
	return m
}

func (m *BookingMetrics) ObserveCreated(status, entitlement string) {
	if m == nil {
		return
	}
	if entitlement == "" {
		entitlement = "none"
	}
	m.createdTotal.WithLabelValues(status, entitlement).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveCancellationFee() {
	if m == nil {
		return
	}
	m.cancellationsFee.Inc()
}

func (m *BookingMetrics) ObserveSlotConflict() {
	if m == nil {
		return
	}
	m.slotConflictTotal.Inc()
}

// PaymentMetrics exposes counters/histograms for checkout and webhook flows.
type PaymentMetrics struct {
	sessionsTotal   *prometheus.CounterVec
	webhooksTotal   *prometheus.CounterVec
	reconciledTotal *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	m := &PaymentMetrics{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "payments",
			Name:      "sessions_total",
			Help:      "Total checkout sessions created",
		}, []string{"provider", "purchase_type"}),
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "payments",
			Name:      "webhooks_total",
			Help:      "Total webhook deliveries received",
		}, []string{"provider", "outcome"}),
		reconciledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "payments",
			Name:      "reconciled_total",
			Help:      "Total payments reconciled into business state",
		}, []string{"provider", "purchase_type"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barber",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsTotal, m.webhooksTotal, m.reconciledTotal, m.webhookLatency)
	return m
}

func (m *PaymentMetrics) ObserveSession(provider, purchaseType string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(provider, purchaseType).Inc()
}

func (m *PaymentMetrics) ObserveWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *PaymentMetrics) ObserveReconciled(provider, purchaseType string) {
	if m == nil {
		return
	}
	m.reconciledTotal.WithLabelValues(provider, purchaseType).Inc()
}

func (m *PaymentMetrics) ObserveWebhookLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(provider).Observe(seconds)
}
