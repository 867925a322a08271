package services

import (
	"context"
	"fmt"

	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/models"
	"gorm.io/gorm"
)

// NotificationSink records a staff notification when an order is delivered
// or cancelled. It runs behind a kds.AsyncSink.
type NotificationSink struct {
	db *gorm.DB
}

func NewNotificationSink(db *gorm.DB) *NotificationSink {
	return &NotificationSink{db: db}
}

func (s *NotificationSink) Handle(ctx context.Context, e kds.Event) error {
	u, ok := e.(kds.StatusUpdate)
	if !ok {
		return nil
	}

	var n models.Notification
	switch u.Status {
	case models.StatusDelivered:
		title := "Order delivered"
		n = models.Notification{
			OrderID: u.OrderID,
			Kind:    models.NotificationOrderDelivered,
			Title:   &title,
			Message: fmt.Sprintf("Order %s was delivered", u.OrderID),
		}
	case models.StatusCancelled:
		title := "Order cancelled"
		msg := fmt.Sprintf("Order %s was cancelled", u.OrderID)
		if k := len(u.Timeline); k > 0 && u.Timeline[k-1].Note != nil {
			msg += ": " + *u.Timeline[k-1].Note
		}
		n = models.Notification{
			OrderID: u.OrderID,
			Kind:    models.NotificationOrderCancelled,
			Title:   &title,
			Message: msg,
		}
	default:
		return nil
	}

	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("save notification for %s: %w", u.OrderID, err)
	}
	return nil
}

// List returns the most recent notifications first.
func (s *NotificationSink) List(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Notification
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}
