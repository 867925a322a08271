package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededOrder() *Order {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	note := "no chili"
	eta := at.Add(10 * time.Minute)
	o := &Order{
		ID:         "O1",
		Status:     StatusPending,
		CurrentETA: &eta,
		Items:      []OrderItem{{Name: "Soto", Quantity: 1}},
		Timeline:   []TimelineEntry{{OrderID: "O1", Seq: 1, Status: StatusPending, UpdatedAt: at, Note: &note}},
	}
	o.reindex()
	return o
}

func TestAppendEntryKeepsIndexCurrent(t *testing.T) {
	o := seededOrder()
	_, ok := o.Reached(StatusAssigned)
	require.False(t, ok)

	at := o.Timeline[0].UpdatedAt.Add(time.Minute)
	o.AppendEntry(TimelineEntry{OrderID: "O1", Seq: 2, Status: StatusAssigned, UpdatedAt: at})

	e, ok := o.Reached(StatusAssigned)
	require.True(t, ok)
	assert.Equal(t, 2, e.Seq)
	assert.Equal(t, StatusAssigned, o.Status)
	assert.Equal(t, "accepted", o.KitchenStatus)

	latest, _ := o.Latest()
	assert.Equal(t, e, latest)
}

func TestAppendEntryWithoutIndex(t *testing.T) {
	o := &Order{Timeline: []TimelineEntry{{Seq: 1, Status: StatusPending}}}
	o.AppendEntry(TimelineEntry{Seq: 2, Status: StatusCancelled})

	_, ok := o.Reached(StatusPending)
	assert.True(t, ok)
	_, ok = o.Reached(StatusCancelled)
	assert.True(t, ok)
}

func TestCloneSharesNothing(t *testing.T) {
	o := seededOrder()
	c := o.Clone()

	*c.Timeline[0].Note = "changed"
	c.CurrentETA = nil
	c.Items[0].Name = "Rawon"
	c.AppendEntry(TimelineEntry{Seq: 2, Status: StatusAssigned})

	assert.Equal(t, "no chili", *o.Timeline[0].Note)
	assert.NotNil(t, o.CurrentETA)
	assert.Equal(t, "Soto", o.Items[0].Name)
	assert.Len(t, o.Timeline, 1)
	_, ok := o.Reached(StatusAssigned)
	assert.False(t, ok)
}
