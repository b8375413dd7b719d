package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/events"
)

// ErrForwardQueueFull is returned when an event is dropped because the buffer is full.
var ErrForwardQueueFull = errors.New("event forward queue full")

const closeDrainTimeout = 5 * time.Second

// EventForwarder hands events to a slower Publisher from a single background
// goroutine. Publish only enqueues, so callers on the request path never wait
// on the broker. Events that do not fit in the buffer are dropped.
type EventForwarder struct {
	next    events.Publisher
	queue   chan events.Event
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewEventForwarder starts the drain goroutine. timeout bounds each downstream publish.
func NewEventForwarder(next events.Publisher, buffer int, timeout time.Duration, logger *zap.Logger) *EventForwarder {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &EventForwarder{
		next:    next,
		queue:   make(chan events.Event, buffer),
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

// Publish enqueues event without blocking. The caller's context is not carried
// over: the request may finish long before the broker is reached.
func (f *EventForwarder) Publish(_ context.Context, event events.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return events.ErrPublisherClosed
	}
	select {
	case f.queue <- event:
		return nil
	default:
		f.dropped.Add(1)
		return fmt.Errorf("%w: dropped %s for ticket %d", ErrForwardQueueFull, event.Type, event.TicketID)
	}
}

// Dropped reports how many events were discarded on a full buffer.
func (f *EventForwarder) Dropped() int64 {
	return f.dropped.Load()
}

func (f *EventForwarder) run() {
	defer close(f.done)
	for event := range f.queue {
		ctx, cancel := f.publishContext()
		err := f.next.Publish(ctx, event)
		cancel()
		if err != nil {
			f.logger.Warn("event forward failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Int64("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

func (f *EventForwarder) publishContext() (context.Context, context.CancelFunc) {
	if f.timeout > 0 {
		return context.WithTimeout(f.ctx, f.timeout)
	}
	return context.WithCancel(f.ctx)
}

// Close stops accepting events, gives queued ones a short grace period to drain,
// abandons the rest and closes the downstream publisher.
func (f *EventForwarder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()

	select {
	case <-f.done:
	case <-time.After(closeDrainTimeout):
		f.logger.Warn("event forwarder drain timed out", zap.Int("pending", len(f.queue)))
		f.cancel()
		<-f.done
	}
	f.cancel()

	if dropped := f.Dropped(); dropped > 0 {
		f.logger.Warn("events dropped on full forward queue", zap.Int64("count", dropped))
	}
	return f.next.Close()
}
