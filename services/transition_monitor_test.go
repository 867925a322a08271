package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/yeremiapane/order-tracker/models"
)

func TestTransitionMonitorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTransitionMonitor(reg)

	m.RecordTransition(models.StatusPending, models.StatusAssigned, time.Minute)
	m.RecordTransition(models.StatusPending, models.StatusAssigned, 2*time.Minute)
	m.RecordRejection("terminal")
	m.ObserveDelivery(true)
	m.ObserveDelivery(false)
	m.ObserveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("pending", "assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("terminal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))

	snap := m.GetMetrics()
	assert.Equal(t, int64(2), snap.Applied)
	assert.Equal(t, int64(1), snap.Rejected)
	assert.Equal(t, int64(1), snap.RejectedBy["terminal"])
	assert.Equal(t, int64(1), snap.Delivered)
	assert.Equal(t, int64(1), snap.DeliveryFailures)
	assert.Equal(t, int64(3), snap.ActiveSessions)

	// snapshot is a copy
	snap.RejectedBy["terminal"] = 99
	assert.Equal(t, int64(1), m.GetMetrics().RejectedBy["terminal"])
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *TransitionMonitor
	assert.NotPanics(t, func() {
		m.RecordTransition(models.StatusPending, models.StatusAssigned, 0)
		m.RecordRejection("x")
		m.RecordPlaced()
		m.ObserveDelivery(true)
		m.ObserveSessions(1)
	})
}

func TestEngineFeedsMonitor(t *testing.T) {
	env := newTestEnv(t)
	m := NewTransitionMonitor(prometheus.NewRegistry())
	env.engine.WithMonitor(m)

	place(t, env, "O1")
	advance(t, env, "O1", models.StatusAssigned)
	_, err := env.engine.RequestTransition(context.Background(), "O1", models.StatusDelivered, TransitionRequest{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	snap := m.GetMetrics()
	assert.Equal(t, int64(1), snap.Placed)
	assert.Equal(t, int64(1), snap.Applied)
	assert.Equal(t, int64(1), snap.RejectedBy["unreachable"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("pending", "assigned")))
}
