package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/order-tracker/models"
	"gorm.io/gorm"
)

// OrderStore is the only writer of order records. The transition engine is
// its sole caller for ApplyTransition.
type OrderStore interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, id string, items []models.OrderItem) (*models.Order, error)
	ApplyTransition(ctx context.Context, id string, m Mutation) (*models.Order, error)
	List(ctx context.Context, statuses ...models.OrderStatus) ([]models.Order, error)
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error)
}

// Mutation is one validated transition, ready to be written.
type Mutation struct {
	// ExpectedVersion must match the stored status_version or the write fails
	// with ErrConflict.
	ExpectedVersion int
	Entry           models.TimelineEntry
	ETA             *time.Time
	AssigneeID      *uint
	// Base is the snapshot the mutation was computed from. When set, the
	// result is Base plus Entry instead of a reload. Base is not modified.
	Base            *models.Order
}

type GormOrderStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormOrderStore(db *gorm.DB) *GormOrderStore {
	return &GormOrderStore{db: db, now: time.Now}
}

// WithClock replaces the clock used to stamp seed entries.
func (s *GormOrderStore) WithClock(now func() time.Time) *GormOrderStore {
	s.now = now
	return s
}

func (s *GormOrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	return s.load(s.db.WithContext(ctx), id)
}

func (s *GormOrderStore) load(tx *gorm.DB, id string) (*models.Order, error) {
	var order models.Order
	err := tx.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return &order, nil
}

// Create stores a new pending order with its seed timeline entry.
func (s *GormOrderStore) Create(ctx context.Context, id string, items []models.OrderItem) (*models.Order, error) {
	now := s.now().UTC().Truncate(time.Millisecond)

	order := models.Order{
		ID:            id,
		Status:        models.StatusPending,
		KitchenStatus: models.KitchenLabel(models.StatusPending),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, it := range items {
		it.ID = 0
		it.OrderID = id
		it.CreatedAt = now
		order.Items = append(order.Items, it)
	}
	order.Timeline = []models.TimelineEntry{{
		OrderID:   id,
		Seq:       1,
		Status:    models.StatusPending,
		UpdatedAt: now,
	}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
		}
		if err := tx.Create(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ApplyTransition writes m atomically: a compare-and-swap on status_version,
// then the timeline insert. Nothing is written when either step fails.
func (s *GormOrderStore) ApplyTransition(ctx context.Context, id string, m Mutation) (*models.Order, error) {
	var updated *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status_version = ?", id, m.ExpectedVersion).
			Updates(map[string]interface{}{
				"status":         m.Entry.Status,
				"kitchen_status": models.KitchenLabel(m.Entry.Status),
				"current_eta":    m.ETA,
				"assignee_id":    m.AssigneeID,
				"status_version": gorm.Expr("status_version + 1"),
				"updated_at":     m.Entry.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			var count int64
			if err := tx.Model(&models.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
			}
			return fmt.Errorf("%w: %s at version %d", ErrConflict, id, m.ExpectedVersion)
		}

		entry := m.Entry
		entry.ID = 0
		entry.OrderID = id
		if err := tx.Create(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s seq %d", ErrConflict, id, entry.Seq)
			}
			return err
		}

		if m.Base != nil {
			updated = applyToSnapshot(m.Base, entry, m)
			return nil
		}
		o, err := s.load(tx, id)
		if err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyToSnapshot mirrors the row update onto a copy of base.
func applyToSnapshot(base *models.Order, entry models.TimelineEntry, m Mutation) *models.Order {
	o := base.Clone()
	o.AppendEntry(entry)
	o.StatusVersion = m.ExpectedVersion + 1
	o.UpdatedAt = entry.UpdatedAt
	o.CurrentETA = nil
	if m.ETA != nil {
		eta := *m.ETA
		o.CurrentETA = &eta
	}
	o.AssigneeID = nil
	if m.AssigneeID != nil {
		a := *m.AssigneeID
		o.AssigneeID = &a
	}
	return o
}

// List returns orders in the given statuses, oldest first. No statuses means
// every order.
func (s *GormOrderStore) List(ctx context.Context, statuses ...models.OrderStatus) ([]models.Order, error) {
	q := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Order("created_at ASC, id ASC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *GormOrderStore) CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	counts := make(map[models.OrderStatus]int64, len(models.HappyPath)+1)
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
