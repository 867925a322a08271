package kds

import (
	"context"
	"sync/atomic"

	"github.com/yeremiapane/order-tracker/utils"
)

// SinkFunc handles one event on the sink's own goroutine.
type SinkFunc func(ctx context.Context, e Event) error

// AsyncSink queues events for a slow consumer such as a broker or the
// database. When the queue is full new events are dropped.
type AsyncSink struct {
	name    string
	handle  SinkFunc
	queue   chan Event
	dropped atomic.Int64
}

func NewAsyncSink(name string, size int, handle SinkFunc) *AsyncSink {
	if size <= 0 {
		size = 256
	}
	return &AsyncSink{
		name:   name,
		handle: handle,
		queue:  make(chan Event, size),
	}
}

func (s *AsyncSink) Forward(e Event) {
	select {
	case s.queue <- e:
	default:
		s.dropped.Add(1)
		utils.ErrorLogger.WithField("sink", s.name).WithField("order_id", OrderOf(e)).Warn("sink queue full, event dropped")
	}
}

// Run drains the queue until ctx is done.
func (s *AsyncSink) Run(ctx context.Context) {
	utils.InfoLogger.WithField("sink", s.name).Info("event sink started")
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			if err := s.handle(ctx, e); err != nil {
				utils.ErrorLogger.WithField("sink", s.name).
					WithField("order_id", OrderOf(e)).
					WithError(err).Error("sink failed to handle event")
			}
		}
	}
}

func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}
