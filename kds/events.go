package kds

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/order-tracker/models"
)

type EventKind string

const (
	KindStatusUpdate EventKind = "statusUpdate"
	KindReviewPrompt EventKind = "promptReview"
)

var ErrUnknownEvent = errors.New("unknown event kind")

// Event is either a StatusUpdate or a ReviewPrompt. The unexported method
// keeps the set closed.
type Event interface {
	Kind() EventKind
	orderKey() string
}

// OrderOf returns the order an event belongs to.
func OrderOf(e Event) string {
	return e.orderKey()
}

type TimelineItem struct {
	Status    models.OrderStatus `json:"status"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Note      *string            `json:"note"`
}

// StatusUpdate carries the full order state after a transition.
type StatusUpdate struct {
	OrderID       string             `json:"orderId"`
	Status        models.OrderStatus `json:"status"`
	KitchenStatus string             `json:"kitchenStatus"`
	Timeline      []TimelineItem     `json:"timeline"`
	CurrentETA    *time.Time         `json:"currentETA"`
}

func (StatusUpdate) Kind() EventKind { return KindStatusUpdate }
func (u StatusUpdate) orderKey() string { return u.OrderID }

// NewStatusUpdate snapshots order. The result shares no memory with it.
func NewStatusUpdate(order *models.Order) StatusUpdate {
	u := StatusUpdate{
		OrderID:       order.ID,
		Status:        order.Status,
		KitchenStatus: models.KitchenLabel(order.Status),
		Timeline:      make([]TimelineItem, 0, len(order.Timeline)),
	}
	for _, e := range order.Timeline {
		item := TimelineItem{Status: e.Status, UpdatedAt: e.UpdatedAt}
		if e.Note != nil {
			n := *e.Note
			item.Note = &n
		}
		u.Timeline = append(u.Timeline, item)
	}
	if order.CurrentETA != nil {
		eta := *order.CurrentETA
		u.CurrentETA = &eta
	}
	return u
}

// ReviewPrompt asks the guest to review a delivered order.
type ReviewPrompt struct {
	OrderID     string    `json:"orderId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

func (ReviewPrompt) Kind() EventKind { return KindReviewPrompt }
func (p ReviewPrompt) orderKey() string { return p.OrderID }

// Message is the wire frame sent to sessions.
type Message struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func Encode(e Event) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch ev := e.(type) {
	case StatusUpdate:
		data, err = json.Marshal(ev)
	case ReviewPrompt:
		data, err = json.Marshal(ev)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: e.Kind(), Data: data})
}

func Decode(b []byte) (Event, error) {
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, err
	}
	return decodeData(msg.Event, msg.Data)
}

func decodeData(kind EventKind, data json.RawMessage) (Event, error) {
	switch kind {
	case KindStatusUpdate:
		var u StatusUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, err
		}
		return u, nil
	case KindReviewPrompt:
		var p ReviewPrompt
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
}
