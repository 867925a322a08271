package services

import (
	"context"
	"time"

	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/models"
)

// TimelineStep is one box of the guest progress tracker.
type TimelineStep struct {
	Status  models.OrderStatus `json:"status"`
	Reached bool               `json:"reached"`
	At      *time.Time         `json:"at,omitempty"`
}

// TimelineView has the same fields as a statusUpdate event plus the tracker
// steps, so a reconnecting client can treat both alike.
type TimelineView struct {
	kds.StatusUpdate
	Steps []TimelineStep `json:"steps"`
}

type TimelineService struct {
	store OrderStore
}

func NewTimelineService(store OrderStore) *TimelineService {
	return &TimelineService{store: store}
}

// GetTimeline reads the order straight from the store; nothing is cached.
func (s *TimelineService) GetTimeline(ctx context.Context, orderID string) (*TimelineView, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &TimelineView{
		StatusUpdate: kds.NewStatusUpdate(order),
		Steps:        Steps(order),
	}, nil
}

// Steps lists the happy path with the time each status was reached. A
// cancelled order gets a trailing cancelled step.
func Steps(order *models.Order) []TimelineStep {
	steps := make([]TimelineStep, 0, len(models.HappyPath)+1)
	for _, st := range models.HappyPath {
		steps = append(steps, step(order, st))
	}
	if order.Status == models.StatusCancelled {
		steps = append(steps, step(order, models.StatusCancelled))
	}
	return steps
}

func step(order *models.Order, status models.OrderStatus) TimelineStep {
	entry, ok := order.Reached(status)
	if !ok {
		return TimelineStep{Status: status}
	}
	at := entry.UpdatedAt
	return TimelineStep{Status: status, Reached: true, At: &at}
}
