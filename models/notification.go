package models

import (
	"time"
)

const (
	NotificationOrderDelivered = "order_delivered"
	NotificationOrderCancelled = "order_cancelled"
)

// Notification is a staff-facing record of a notable order event.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   string    `gorm:"type:varchar(64);not null;index" json:"order_id"`
	Kind      string    `gorm:"type:varchar(32);not null" json:"kind"`
	Title     *string   `gorm:"type:varchar(100)" json:"title,omitempty"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
