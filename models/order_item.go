package models

import (
	"time"
)

type OrderItem struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	OrderID string `gorm:"type:varchar(64);not null;index" json:"order_id"`
	Name    string `gorm:"type:varchar(100);not null" json:"name"`
	// Quantity does not scale the estimate; a line is cooked as one batch.
	Quantity    int       `gorm:"not null" json:"quantity"`
	PrepMinutes int       `gorm:"not null;default:0" json:"prep_minutes"`
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// PrepEstimate returns the item's preparation time, or def when the menu has
// no estimate for it.
func (i OrderItem) PrepEstimate(def time.Duration) time.Duration {
	if i.PrepMinutes <= 0 {
		return def
	}
	return time.Duration(i.PrepMinutes) * time.Minute
}
