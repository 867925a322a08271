package models

import (
	"time"

	"gorm.io/gorm"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusAssigned  OrderStatus = "assigned"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// HappyPath is the forward sequence a guest sees in the tracker.
var HappyPath = []OrderStatus{
	StatusPending,
	StatusAssigned,
	StatusPreparing,
	StatusReady,
	StatusDelivered,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// KitchenLabel derives the label shown on kitchen screens. It is the only
// source of kitchen_status; clients never write it.
func KitchenLabel(s OrderStatus) string {
	switch s {
	case StatusPending:
		return "queued"
	case StatusAssigned:
		return "accepted"
	case StatusPreparing:
		return "preparing"
	case StatusReady:
		return "ready"
	case StatusDelivered:
		return "served"
	case StatusCancelled:
		return "void"
	}
	return "unknown"
}

type Order struct {
	ID            string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Status        OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	KitchenStatus string          `gorm:"type:varchar(20);not null" json:"kitchen_status"`
	StatusVersion int             `gorm:"not null;default:0" json:"-"`
	CurrentETA    *time.Time      `json:"current_eta,omitempty"`
	AssigneeID    *uint           `gorm:"index" json:"assignee_id,omitempty"`
	Items         []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"items"`
	Timeline      []TimelineEntry `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"timeline"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`

	reached map[OrderStatus]int
}

// AfterFind rebuilds the status index once the timeline has been preloaded.
func (o *Order) AfterFind(tx *gorm.DB) error {
	o.reindex()
	return nil
}

func (o *Order) reindex() {
	o.reached = make(map[OrderStatus]int, len(o.Timeline))
	for i, e := range o.Timeline {
		o.reached[e.Status] = i
	}
}

// AppendEntry adds an entry to the in-memory timeline and keeps Status and the
// status index in step with it.
func (o *Order) AppendEntry(e TimelineEntry) {
	if o.reached == nil {
		o.reindex()
	}
	o.Timeline = append(o.Timeline, e)
	o.reached[e.Status] = len(o.Timeline) - 1
	o.Status = e.Status
	o.KitchenStatus = KitchenLabel(e.Status)
}

// Reached reports the latest timeline entry recorded for status.
func (o *Order) Reached(status OrderStatus) (TimelineEntry, bool) {
	if o.reached == nil {
		o.reindex()
	}
	i, ok := o.reached[status]
	if !ok {
		return TimelineEntry{}, false
	}
	return o.Timeline[i], true
}

// Latest returns the most recent timeline entry.
func (o *Order) Latest() (TimelineEntry, bool) {
	if len(o.Timeline) == 0 {
		return TimelineEntry{}, false
	}
	return o.Timeline[len(o.Timeline)-1], true
}

// Clone returns a copy that shares no slices or pointers with o.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.Timeline = make([]TimelineEntry, len(o.Timeline))
	for i, e := range o.Timeline {
		c.Timeline[i] = e.clone()
	}
	if o.CurrentETA != nil {
		eta := *o.CurrentETA
		c.CurrentETA = &eta
	}
	if o.AssigneeID != nil {
		a := *o.AssigneeID
		c.AssigneeID = &a
	}
	c.reached = nil
	c.reindex()
	return &c
}
