package models

import "time"

// TimelineEntry records one status an order entered. Seq is its 1-based
// position in the order's timeline and is unique per order.
type TimelineEntry struct {
	ID      uint        `gorm:"primaryKey" json:"-"`
	OrderID string      `gorm:"type:varchar(64);not null;uniqueIndex:idx_timeline_order_seq" json:"-"`
	Seq     int         `gorm:"not null;uniqueIndex:idx_timeline_order_seq" json:"seq"`
	Status  OrderStatus `gorm:"type:varchar(20);not null" json:"status"`
	// Server-assigned; gorm must not overwrite it.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
	Note      *string   `gorm:"type:text" json:"note,omitempty"`
	ActorID   *uint     `json:"actor_id,omitempty"`
}

func (e TimelineEntry) clone() TimelineEntry {
	if e.Note != nil {
		n := *e.Note
		e.Note = &n
	}
	if e.ActorID != nil {
		a := *e.ActorID
		e.ActorID = &a
	}
	return e
}
