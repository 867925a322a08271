package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-tracker/database"
	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/models"
)

func TestGetTimeline(t *testing.T) {
	env := newTestEnv(t)
	svc := NewTimelineService(env.store)
	place(t, env, "O1")
	advance(t, env, "O1", models.StatusAssigned, models.StatusPreparing)

	view, err := svc.GetTimeline(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, "O1", view.OrderID)
	assert.Equal(t, models.StatusPreparing, view.Status)
	assert.Equal(t, "preparing", view.KitchenStatus)
	assert.Len(t, view.Timeline, 3)
	require.NotNil(t, view.CurrentETA)

	require.Len(t, view.Steps, len(models.HappyPath))
	reached := map[models.OrderStatus]bool{}
	for _, s := range view.Steps {
		reached[s.Status] = s.Reached
		if s.Reached {
			assert.NotNil(t, s.At)
		}
	}
	assert.True(t, reached[models.StatusPending])
	assert.True(t, reached[models.StatusAssigned])
	assert.True(t, reached[models.StatusPreparing])
	assert.False(t, reached[models.StatusReady])
	assert.False(t, reached[models.StatusDelivered])
}

func TestGetTimelineCancelledStep(t *testing.T) {
	env := newTestEnv(t)
	svc := NewTimelineService(env.store)
	place(t, env, "O1")
	advance(t, env, "O1", models.StatusCancelled)

	view, err := svc.GetTimeline(context.Background(), "O1")
	require.NoError(t, err)
	last := view.Steps[len(view.Steps)-1]
	assert.Equal(t, models.StatusCancelled, last.Status)
	assert.True(t, last.Reached)
	assert.Nil(t, view.CurrentETA)
}

func TestGetTimelineMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := NewTimelineService(env.store).GetTimeline(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

type memSession struct {
	id   string
	mu   sync.Mutex
	msgs [][]byte
}

func (m *memSession) ID() string { return m.id }
func (m *memSession) Close() {}
func (m *memSession) Send(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, b)
	return nil
}

func (m *memSession) last(t *testing.T) kds.Event {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs)
	e, err := kds.Decode(m.msgs[len(m.msgs)-1])
	require.NoError(t, err)
	return e
}

// Live subscribers get the event; late ones resync through GetTimeline and
// see the same state.
func TestSubscriberAndLateJoinerAgree(t *testing.T) {
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	hub := kds.NewHub(kds.WithReviewDelay(time.Hour))
	defer hub.Close()
	store := NewGormOrderStore(db)
	engine := NewTransitionEngine(store, hub, DefaultETAPolicy())
	svc := NewTimelineService(store)
	ctx := context.Background()

	_, err = engine.PlaceOrder(ctx, "O1", sampleItems())
	require.NoError(t, err)

	early := &memSession{id: "early"}
	hub.Register(early)
	require.NoError(t, hub.Subscribe("O1", "early"))

	_, err = engine.RequestTransition(ctx, "O1", models.StatusAssigned, TransitionRequest{})
	require.NoError(t, err)

	u, ok := early.last(t).(kds.StatusUpdate)
	require.True(t, ok)
	assert.Equal(t, models.StatusAssigned, u.Status)

	view, err := svc.GetTimeline(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, u.Status, view.Status)
	assert.Equal(t, len(u.Timeline), len(view.Timeline))
}
