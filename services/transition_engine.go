package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/models"
	"github.com/yeremiapane/order-tracker/utils"
)

// EventPublisher is the notifier side of the engine. Publish must not block
// on delivery.
type EventPublisher interface {
	Publish(e kds.Event)
}

type TransitionRequest struct {
	Note    string
	ActorID *uint
}

// TransitionEngine is the only path that moves an order between states.
// Calls for the same order are serialised; different orders never wait on
// each other.
type TransitionEngine struct {
	store     OrderStore
	publisher EventPublisher
	policy    ETAPolicy
	monitor   *TransitionMonitor
	locks     *orderLocks
	now       func() time.Time
}

func NewTransitionEngine(store OrderStore, publisher EventPublisher, policy ETAPolicy) *TransitionEngine {
	def := DefaultETAPolicy()
	if policy.DefaultItemPrep <= 0 {
		policy.DefaultItemPrep = def.DefaultItemPrep
	}
	if policy.DeliveryBuffer <= 0 {
		policy.DeliveryBuffer = def.DeliveryBuffer
	}
	return &TransitionEngine{
		store:     store,
		publisher: publisher,
		policy:    policy,
		locks:     newOrderLocks(),
		now:       time.Now,
	}
}

func (e *TransitionEngine) WithClock(now func() time.Time) *TransitionEngine {
	e.now = now
	return e
}

func (e *TransitionEngine) WithMonitor(m *TransitionMonitor) *TransitionEngine {
	e.monitor = m
	return e
}

// RequestTransition moves the order to target. Asking for the status the
// order already has is a no-op unless the order is terminal, in which case
// every request is rejected.
func (e *TransitionEngine) RequestTransition(ctx context.Context, orderID string, target models.OrderStatus, req TransitionRequest) (*models.Order, error) {
	log := utils.InfoLogger.WithFields(logrus.Fields{"order_id": orderID, "target": target})

	if !target.Valid() {
		e.monitor.RecordRejection("unknown_status")
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}

	unlock := e.locks.Lock(orderID)
	defer unlock()

	order, err := e.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			e.monitor.RecordRejection("not_found")
		}
		return nil, err
	}

	from := order.Status
	if from.Terminal() {
		e.monitor.RecordRejection("terminal")
		return nil, fmt.Errorf("%w: order %s is already %s", ErrInvalidTransition, orderID, from)
	}
	if from == target {
		log.Debug("transition already applied")
		return order, nil
	}
	if !CanTransition(from, target) {
		e.monitor.RecordRejection("unreachable")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
	}

	now := e.now().UTC().Truncate(time.Millisecond)
	last, _ := order.Latest()
	if now.Before(last.UpdatedAt) {
		now = last.UpdatedAt
	}

	note := strings.TrimSpace(req.Note)
	entry := models.TimelineEntry{
		OrderID:   orderID,
		Seq:       len(order.Timeline) + 1,
		Status:    target,
		UpdatedAt: now,
		ActorID:   req.ActorID,
	}
	if note != "" {
		entry.Note = &note
	}

	assignee := order.AssigneeID
	if (target == models.StatusAssigned || target == models.StatusPreparing) && req.ActorID != nil {
		assignee = req.ActorID
	}

	updated, err := e.store.ApplyTransition(ctx, orderID, Mutation{
		ExpectedVersion: order.StatusVersion,
		Entry:           entry,
		ETA:             e.policy.Next(order, target, now, note != ""),
		AssigneeID:      assignee,
		Base:            order,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.monitor.RecordRejection("conflict")
		}
		utils.ErrorLogger.WithFields(logrus.Fields{"order_id": orderID, "target": target}).
			WithError(err).Error("failed to apply transition")
		return nil, err
	}

	e.monitor.RecordTransition(from, target, now.Sub(last.UpdatedAt))
	log.WithField("from", from).Info("order transitioned")

	e.publisher.Publish(kds.NewStatusUpdate(updated))
	return updated, nil
}

// Cancel is RequestTransition to cancelled with a reason.
func (e *TransitionEngine) Cancel(ctx context.Context, orderID, reason string, actorID *uint) (*models.Order, error) {
	return e.RequestTransition(ctx, orderID, models.StatusCancelled, TransitionRequest{Note: reason, ActorID: actorID})
}

const maxOrderIDLen = 64

// PlaceOrder creates a pending order. An empty id gets a generated one. The
// initial snapshot is published so kitchen screens see the new order.
func (e *TransitionEngine) PlaceOrder(ctx context.Context, id string, items []models.OrderItem) (*models.Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if err := validateOrder(id, items); err != nil {
		return nil, err
	}

	order, err := e.store.Create(ctx, id, items)
	if err != nil {
		return nil, err
	}

	e.monitor.RecordPlaced()
	utils.InfoLogger.WithFields(logrus.Fields{"order_id": id, "items": len(items)}).Info("order placed")

	e.publisher.Publish(kds.NewStatusUpdate(order))
	return order, nil
}

func validateOrder(id string, items []models.OrderItem) error {
	if len(id) > maxOrderIDLen {
		return fmt.Errorf("%w: id longer than %d characters", ErrInvalidOrder, maxOrderIDLen)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			return fmt.Errorf("%w: item %d has no name", ErrInvalidOrder, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidOrder, i)
		}
		if it.PrepMinutes < 0 {
			return fmt.Errorf("%w: item %d prep time is negative", ErrInvalidOrder, i)
		}
	}
	return nil
}
