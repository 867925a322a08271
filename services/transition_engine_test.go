package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-tracker/models"
)

func place(t *testing.T, env *testEnv, id string) *models.Order {
	t.Helper()
	o, err := env.engine.PlaceOrder(context.Background(), id, sampleItems())
	require.NoError(t, err)
	return o
}

func advance(t *testing.T, env *testEnv, id string, statuses ...models.OrderStatus) *models.Order {
	t.Helper()
	var o *models.Order
	for _, s := range statuses {
		env.clock.Advance(time.Minute)
		var err error
		o, err = env.engine.RequestTransition(context.Background(), id, s, TransitionRequest{})
		require.NoError(t, err, "-> %s", s)
	}
	return o
}

func TestLifecycleScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// create
	o := place(t, env, "O1")
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Len(t, o.Timeline, 1)

	// assigned
	env.clock.Advance(time.Minute)
	o, err := env.engine.RequestTransition(ctx, "O1", models.StatusAssigned, TransitionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, o.Status)
	assert.Len(t, o.Timeline, 2)
	require.NotNil(t, o.CurrentETA)
	assert.True(t, o.CurrentETA.After(env.clock.Now()))

	// ready skips preparing
	_, err = env.engine.RequestTransition(ctx, "O1", models.StatusReady, TransitionRequest{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	got, err := env.store.Get(ctx, "O1")
	require.NoError(t, err)
	assert.Len(t, got.Timeline, 2)

	// preparing, then delivered skips ready
	advance(t, env, "O1", models.StatusPreparing)
	_, err = env.engine.RequestTransition(ctx, "O1", models.StatusDelivered, TransitionRequest{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// cancel from preparing
	o, err = env.engine.Cancel(ctx, "O1", "kitchen out of stock", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, o.Status)
	assert.Nil(t, o.CurrentETA)
	require.NotNil(t, o.Timeline[len(o.Timeline)-1].Note)
	assert.Equal(t, "kitchen out of stock", *o.Timeline[len(o.Timeline)-1].Note)

	_, err = env.engine.RequestTransition(ctx, "O1", models.StatusReady, TransitionRequest{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assertInvariants(t, o)
}

func TestHappyPathToDelivered(t *testing.T) {
	env := newTestEnv(t)
	place(t, env, "O1")

	o := advance(t, env, "O1", models.StatusAssigned, models.StatusPreparing, models.StatusReady, models.StatusDelivered)

	assert.Equal(t, models.StatusDelivered, o.Status)
	assert.Equal(t, "served", o.KitchenStatus)
	assert.Len(t, o.Timeline, 5)
	assert.Nil(t, o.CurrentETA)
	assertInvariants(t, o)
	// one event per placement and per transition
	assert.Len(t, env.pub.updates(), 5)
}

func TestTransitionOnMissingOrder(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.RequestTransition(context.Background(), "ghost", models.StatusAssigned, TransitionRequest{})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Empty(t, env.pub.updates())
}

func TestUnknownTargetRejected(t *testing.T) {
	env := newTestEnv(t)
	place(t, env, "O1")
	_, err := env.engine.RequestTransition(context.Background(), "O1", models.OrderStatus("teleported"), TransitionRequest{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalRejectsEveryTarget(t *testing.T) {
	all := []models.OrderStatus{
		models.StatusPending, models.StatusAssigned, models.StatusPreparing,
		models.StatusReady, models.StatusDelivered, models.StatusCancelled,
	}
	for _, terminal := range []models.OrderStatus{models.StatusDelivered, models.StatusCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			env := newTestEnv(t)
			place(t, env, "O1")
			var before *models.Order
			if terminal == models.StatusDelivered {
				before = advance(t, env, "O1", models.StatusAssigned, models.StatusPreparing, models.StatusReady, models.StatusDelivered)
			} else {
				before = advance(t, env, "O1", models.StatusCancelled)
			}
			published := len(env.pub.updates())

			for _, target := range all {
				_, err := env.engine.RequestTransition(context.Background(), "O1", target, TransitionRequest{})
				assert.ErrorIs(t, err, ErrInvalidTransition, "target %s", target)
			}

			after, err := env.store.Get(context.Background(), "O1")
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status)
			assert.Equal(t, len(before.Timeline), len(after.Timeline))
			assert.Len(t, env.pub.updates(), published)
		})
	}
}

func TestSameStatusIsNoop(t *testing.T) {
	env := newTestEnv(t)
	place(t, env, "O1")
	first := advance(t, env, "O1", models.StatusAssigned)
	published := len(env.pub.updates())

	env.clock.Advance(time.Minute)
	second, err := env.engine.RequestTransition(context.Background(), "O1", models.StatusAssigned, TransitionRequest{Note: "again"})
	require.NoError(t, err)

	assert.Len(t, second.Timeline, len(first.Timeline))
	assert.WithinDuration(t, first.Timeline[len(first.Timeline)-1].UpdatedAt, second.Timeline[len(second.Timeline)-1].UpdatedAt, 0)
	assert.Len(t, env.pub.updates(), published)
}

func TestConcurrentDuplicateRequests(t *testing.T) {
	env := newTestEnv(t)
	place(t, env, "O1")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.RequestTransition(context.Background(), "O1", models.StatusAssigned, TransitionRequest{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidTransition), "unexpected error %v", err)
		}
	}

	o, err := env.store.Get(context.Background(), "O1")
	require.NoError(t, err)
	assigned := 0
	for _, e := range o.Timeline {
		if e.Status == models.StatusAssigned {
			assigned++
		}
	}
	assert.Equal(t, 1, assigned)
	assert.Len(t, o.Timeline, 2)
	// placement plus exactly one transition
	assert.Len(t, env.pub.updates(), 2)
}

func TestConcurrentOrdersProceedIndependently(t *testing.T) {
	env := newTestEnv(t)
	ids := []string{"A", "B", "C", "D"}
	for _, id := range ids {
		place(t, env, id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, s := range []models.OrderStatus{models.StatusAssigned, models.StatusPreparing, models.StatusReady} {
				_, err := env.engine.RequestTransition(context.Background(), id, s, TransitionRequest{})
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		o, err := env.store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReady, o.Status)
		assertInvariants(t, o)
	}
}

func TestTimestampsNeverGoBackwards(t *testing.T) {
	env := newTestEnv(t)
	place(t, env, "O1")
	env.clock.Advance(time.Minute)
	o, err := env.engine.RequestTransition(context.Background(), "O1", models.StatusAssigned, TransitionRequest{})
	require.NoError(t, err)

	// clock steps back, e.g. after an NTP correction
	env.clock.Advance(-10 * time.Minute)
	o, err = env.engine.RequestTransition(context.Background(), "O1", models.StatusPreparing, TransitionRequest{})
	require.NoError(t, err)

	assert.WithinDuration(t, o.Timeline[1].UpdatedAt, o.Timeline[2].UpdatedAt, 0)
	assertInvariants(t, o)
}

func TestAssigneeFollowsActor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	place(t, env, "O1")
	chef, waiter := uint(7), uint(9)

	o, err := env.engine.RequestTransition(ctx, "O1", models.StatusAssigned, TransitionRequest{ActorID: &chef})
	require.NoError(t, err)
	require.NotNil(t, o.AssigneeID)
	assert.Equal(t, chef, *o.AssigneeID)
	assert.Equal(t, chef, *o.Timeline[1].ActorID)

	advance(t, env, "O1", models.StatusPreparing)
	o, err = env.engine.RequestTransition(ctx, "O1", models.StatusReady, TransitionRequest{ActorID: &waiter})
	require.NoError(t, err)
	// ready does not reassign
	assert.Equal(t, chef, *o.AssigneeID)
	assert.Equal(t, waiter, *o.Timeline[3].ActorID)
}

func TestPreparingETANeedsNoteToSlip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.engine.PlaceOrder(ctx, "O1", []models.OrderItem{{Name: "Rendang", Quantity: 1, PrepMinutes: 20}})
	require.NoError(t, err)

	o, err := env.engine.RequestTransition(ctx, "O1", models.StatusAssigned, TransitionRequest{})
	require.NoError(t, err)
	promised := *o.CurrentETA

	// starting 5 minutes later would push the estimate out by 5 minutes
	env.clock.Advance(5 * time.Minute)
	o, err = env.engine.RequestTransition(ctx, "O1", models.StatusPreparing, TransitionRequest{})
	require.NoError(t, err)
	assert.WithinDuration(t, promised, *o.CurrentETA, 0)
	assertInvariants(t, o)
}

func TestPlaceOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := map[string][]models.OrderItem{
		"no items":      nil,
		"blank name":    {{Name: " ", Quantity: 1}},
		"zero quantity": {{Name: "Tea", Quantity: 0}},
		"negative prep": {{Name: "Tea", Quantity: 1, PrepMinutes: -1}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.engine.PlaceOrder(ctx, "", items)
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
	assert.Empty(t, env.pub.updates())
}

func TestPlaceOrderGeneratesID(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.engine.PlaceOrder(context.Background(), "", sampleItems())
	require.NoError(t, err)
	assert.Len(t, o.ID, 36)

	updates := env.pub.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, o.ID, updates[0].OrderID)
	assert.Equal(t, models.StatusPending, updates[0].Status)
}

func TestPlaceOrderDuplicate(t *testing.T) {
	env := newTestEnv(t)
	place(t, env, "O1")
	_, err := env.engine.PlaceOrder(context.Background(), "O1", sampleItems())
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	assert.Len(t, env.pub.updates(), 1)
}

func TestPublishedEventMatchesSnapshot(t *testing.T) {
	env := newTestEnv(t)
	place(t, env, "O1")
	o := advance(t, env, "O1", models.StatusAssigned)

	updates := env.pub.updates()
	last := updates[len(updates)-1]
	assert.Equal(t, o.ID, last.OrderID)
	assert.Equal(t, o.Status, last.Status)
	assert.Equal(t, o.KitchenStatus, last.KitchenStatus)
	assert.Len(t, last.Timeline, len(o.Timeline))
	require.NotNil(t, last.CurrentETA)
	assert.WithinDuration(t, *o.CurrentETA, *last.CurrentETA, 0)
}
