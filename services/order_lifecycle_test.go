package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yeremiapane/order-tracker/models"
)

func TestCanTransition(t *testing.T) {
	all := []models.OrderStatus{
		models.StatusPending, models.StatusAssigned, models.StatusPreparing,
		models.StatusReady, models.StatusDelivered, models.StatusCancelled,
	}
	allowed := map[models.OrderStatus][]models.OrderStatus{
		models.StatusPending:   {models.StatusAssigned, models.StatusCancelled},
		models.StatusAssigned:  {models.StatusPreparing, models.StatusCancelled},
		models.StatusPreparing: {models.StatusReady, models.StatusCancelled},
		models.StatusReady:     {models.StatusDelivered, models.StatusCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesHaveNoTargets(t *testing.T) {
	assert.Empty(t, AllowedTargets(models.StatusDelivered))
	assert.Empty(t, AllowedTargets(models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusDelivered, models.StatusDelivered))
}

func TestAllowedTargetsReturnsCopy(t *testing.T) {
	targets := AllowedTargets(models.StatusPending)
	targets[0] = models.StatusDelivered
	assert.Equal(t, models.StatusAssigned, AllowedTargets(models.StatusPending)[0])
}

func TestKitchenLabel(t *testing.T) {
	cases := map[models.OrderStatus]string{
		models.StatusPending:   "queued",
		models.StatusAssigned:  "accepted",
		models.StatusPreparing: "preparing",
		models.StatusReady:     "ready",
		models.StatusDelivered: "served",
		models.StatusCancelled: "void",
	}
	for status, label := range cases {
		assert.Equal(t, label, models.KitchenLabel(status))
	}
}
