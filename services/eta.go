package services

import (
	"time"

	"github.com/yeremiapane/order-tracker/models"
)

type ETAPolicy struct {
	// DefaultItemPrep is used for items without their own estimate.
	DefaultItemPrep time.Duration
	DeliveryBuffer  time.Duration
}

func DefaultETAPolicy() ETAPolicy {
	return ETAPolicy{
		DefaultItemPrep: 10 * time.Minute,
		DeliveryBuffer:  5 * time.Minute,
	}
}

// PrepEstimate sums the per-line estimates. An order without lines still
// takes one default preparation slot.
func (p ETAPolicy) PrepEstimate(items []models.OrderItem) time.Duration {
	if len(items) == 0 {
		return p.DefaultItemPrep
	}
	var total time.Duration
	for _, it := range items {
		total += it.PrepEstimate(p.DefaultItemPrep)
	}
	return total
}

// Next computes the ETA that goes with entering target at now. A nil result
// clears the ETA.
func (p ETAPolicy) Next(order *models.Order, target models.OrderStatus, now time.Time, hasNote bool) *time.Time {
	var eta time.Time
	switch target {
	case models.StatusAssigned:
		eta = now.Add(p.PrepEstimate(order.Items))
	case models.StatusPreparing:
		eta = p.refine(order.CurrentETA, now.Add(p.PrepEstimate(order.Items)), now, hasNote)
	case models.StatusReady:
		eta = now.Add(p.DeliveryBuffer)
	default:
		return nil
	}
	return &eta
}

// refine lets the preparing estimate move earlier freely. Moving it later
// needs a note, except when the previous ETA has already passed; then the
// smallest later value is used.
func (p ETAPolicy) refine(prev *time.Time, candidate, now time.Time, hasNote bool) time.Time {
	if prev == nil || hasNote || !candidate.After(*prev) {
		return candidate
	}
	if prev.After(now) {
		return *prev
	}
	if soon := now.Add(p.DeliveryBuffer); soon.Before(candidate) {
		return soon
	}
	return candidate
}
