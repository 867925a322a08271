package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-tracker/database"
	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/models"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kds.Event
}

func (p *recordingPublisher) Publish(e kds.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) updates() []kds.StatusUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []kds.StatusUpdate
	for _, e := range p.events {
		if u, ok := e.(kds.StatusUpdate); ok {
			out = append(out, u)
		}
	}
	return out
}

type testEnv struct {
	db     *gorm.DB
	store  *GormOrderStore
	engine *TransitionEngine
	pub    *recordingPublisher
	clock  *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)

	clock := newFakeClock()
	store := NewGormOrderStore(db).WithClock(clock.Now)
	pub := &recordingPublisher{}
	engine := NewTransitionEngine(store, pub, DefaultETAPolicy()).WithClock(clock.Now)
	return &testEnv{db: db, store: store, engine: engine, pub: pub, clock: clock}
}

func sampleItems() []models.OrderItem {
	return []models.OrderItem{
		{Name: "Nasi Goreng", Quantity: 2, PrepMinutes: 12},
		{Name: "Es Teh", Quantity: 1},
	}
}

// assertInvariants checks the properties every stored order must hold.
func assertInvariants(t *testing.T, o *models.Order) {
	t.Helper()
	require.NotEmpty(t, o.Timeline)
	for i := 1; i < len(o.Timeline); i++ {
		require.False(t, o.Timeline[i].UpdatedAt.Before(o.Timeline[i-1].UpdatedAt), "timeline goes backwards at %d", i)
		require.Equal(t, i+1, o.Timeline[i].Seq)
	}
	last := o.Timeline[len(o.Timeline)-1]
	require.Equal(t, last.Status, o.Status)
	require.Equal(t, models.KitchenLabel(o.Status), o.KitchenStatus)
	if o.CurrentETA != nil {
		require.True(t, o.CurrentETA.After(last.UpdatedAt), "eta %v not after %v", o.CurrentETA, last.UpdatedAt)
	}
	if o.Status.Terminal() {
		require.Nil(t, o.CurrentETA)
	}
}
