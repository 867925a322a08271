package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yeremiapane/order-tracker/models"
)

// TransitionMetrics is a point-in-time copy of the monitor's counters.
type TransitionMetrics struct {
	Applied          int64            `json:"applied"`
	Rejected         int64            `json:"rejected"`
	RejectedBy       map[string]int64 `json:"rejected_by"`
	Placed           int64            `json:"placed"`
	Delivered        int64            `json:"deliveries_ok"`
	DeliveryFailures int64            `json:"deliveries_failed"`
	ActiveSessions   int64            `json:"active_sessions"`
}

// TransitionMonitor counts lifecycle activity for the dashboard and exports
// the same numbers to Prometheus. It also observes notifier deliveries.
type TransitionMonitor struct {
	mutex   sync.Mutex
	metrics TransitionMetrics

	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	stageTime   *prometheus.HistogramVec
	deliveries  *prometheus.CounterVec
	sessions    prometheus.Gauge
}

func NewTransitionMonitor(reg prometheus.Registerer) *TransitionMonitor {
	m := &TransitionMonitor{
		metrics: TransitionMetrics{RejectedBy: make(map[string]int64)},
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transitions_total",
				Help: "Applied order status transitions",
			},
			[]string{"from", "to"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transition_rejections_total",
				Help: "Rejected order status transition requests",
			},
			[]string{"reason"},
		),
		stageTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_stage_duration_seconds",
				Help:    "Time an order spent in a status before leaving it",
				Buckets: prometheus.ExponentialBuckets(30, 2, 8), // 30s .. ~1h
			},
			[]string{"status"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_deliveries_total",
				Help: "Per-session event deliveries by result",
			},
			[]string{"result"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifier_sessions",
			Help: "Connected notifier sessions",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.rejections, m.stageTime, m.deliveries, m.sessions)
	}
	return m
}

// RecordTransition counts an applied transition and how long the order sat in
// from.
func (m *TransitionMonitor) RecordTransition(from, to models.OrderStatus, dwell time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
	if dwell >= 0 {
		m.stageTime.WithLabelValues(string(from)).Observe(dwell.Seconds())
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.metrics.Applied++
}

func (m *TransitionMonitor) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.metrics.Rejected++
	m.metrics.RejectedBy[reason]++
}

func (m *TransitionMonitor) RecordPlaced() {
	if m == nil {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.metrics.Placed++
}

func (m *TransitionMonitor) ObserveDelivery(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.deliveries.WithLabelValues(result).Inc()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if ok {
		m.metrics.Delivered++
	} else {
		m.metrics.DeliveryFailures++
	}
}

func (m *TransitionMonitor) ObserveSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.metrics.ActiveSessions = int64(n)
}

// GetMetrics returns a copy of the current counters.
func (m *TransitionMonitor) GetMetrics() TransitionMetrics {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := m.metrics
	out.RejectedBy = make(map[string]int64, len(m.metrics.RejectedBy))
	for k, v := range m.metrics.RejectedBy {
		out.RejectedBy[k] = v
	}
	return out
}
