package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotifierMetrics exposes counters/gauges for dispatch and reply handling.
type NotifierMetrics struct {
	sendsTotal          *prometheus.CounterVec
	skippedTotal        *prometheus.CounterVec
	batchesTotal        *prometheus.CounterVec
	inboundTotal        *prometheus.CounterVec
	classificationTotal *prometheus.CounterVec
	classifierAttempts  *prometheus.CounterVec
	persistTotal        *prometheus.CounterVec
	pendingEntries      prometheus.Gauge
	transportConnected  prometheus.Gauge
}

func NewNotifierMetrics(reg prometheus.Registerer) *NotifierMetrics {
	m := &NotifierMetrics{
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo",
			Subsystem: "dispatch",
			Name:      "sends_total",
			Help:      "Outbound notification sends by template and result",
		}, []string{"template", "status"}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo",
			Subsystem: "dispatch",
			Name:      "skipped_total",
			Help:      "Batch events skipped before sending",
		}, []string{"reason"}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo",
			Subsystem: "dispatch",
			Name:      "batches_total",
			Help:      "Batches accepted or rejected by the trigger endpoints",
		}, []string{"template", "status"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo",
			Subsystem: "replies",
			Name:      "inbound_total",
			Help:      "Inbound messages by handling outcome",
		}, []string{"outcome"}),
		classificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo",
			Subsystem: "classifier",
			Name:      "results_total",
			Help:      "Classification results by category or failure kind",
		}, []string{"result"}),
		classifierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo",
			Subsystem: "classifier",
			Name:      "attempts_total",
			Help:      "Individual AI calls by outcome",
		}, []string{"outcome"}),
		persistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo",
			Subsystem: "outcome",
			Name:      "writes_total",
			Help:      "Status writes to the backing store",
		}, []string{"status", "result"}),
		pendingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "robo",
			Subsystem: "correlation",
			Name:      "pending_entries",
			Help:      "Notifications awaiting a customer reply",
		}),
		transportConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "robo",
			Subsystem: "transport",
			Name:      "connected",
			Help:      "1 when the messaging session is connected",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.sendsTotal, m.skippedTotal, m.batchesTotal, m.inboundTotal,
		m.classificationTotal, m.classifierAttempts, m.persistTotal,
		m.pendingEntries, m.transportConnected,
	)
	return m
}

func (m *NotifierMetrics) ObserveSend(template, status string) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(template, status).Inc()
}

func (m *NotifierMetrics) ObserveSkip(reason string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(reason).Inc()
}

func (m *NotifierMetrics) ObserveBatch(template, status string) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(template, status).Inc()
}

func (m *NotifierMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *NotifierMetrics) ObserveClassification(result string) {
	if m == nil {
		return
	}
	m.classificationTotal.WithLabelValues(result).Inc()
}

func (m *NotifierMetrics) ObserveClassifierAttempt(outcome string) {
	if m == nil {
		return
	}
	m.classifierAttempts.WithLabelValues(outcome).Inc()
}

func (m *NotifierMetrics) ObservePersist(status string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.persistTotal.WithLabelValues(status, result).Inc()
}

func (m *NotifierMetrics) SetPendingEntries(n int) {
	if m == nil {
		return
	}
	m.pendingEntries.Set(float64(n))
}

func (m *NotifierMetrics) SetTransportConnected(connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.transportConnected.Set(v)
}
