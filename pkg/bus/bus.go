// Package bus multiplexes input events from heterogeneous drivers into the
// single fulfillment pipeline, and fans observability events out to
// subscribers.
package bus

import (
	"context"
	"sync"
	"time"
)

// defaultBufferSize bounds the input channel. Publishing blocks once the
// pipeline falls this far behind, which is the backpressure contract drivers
// rely on.
const defaultBufferSize = 100

type Bus struct {
	input chan InputEvent

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func New() *Bus {
	return &Bus{
		input:            make(chan InputEvent, defaultBufferSize),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// PublishInput places one driver input event onto the shared pipeline.
// Blocks while the buffer is full; returns false when ctx or the bus is done.
func (b *Bus) PublishInput(ctx context.Context, ev InputEvent) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	case b.input <- ev:
		return true
	}
}

// ConsumeInput blocks for the next input event.
func (b *Bus) ConsumeInput(ctx context.Context) (InputEvent, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return InputEvent{}, false
	case <-b.done:
		return InputEvent{}, false
	case ev := <-b.input:
		return ev, true
	}
}

// PublishEvent broadcasts an observability event to all subscribers without
// blocking: slow subscribers drop events instead of stalling the publisher.
func (b *Bus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	b.mu.RLock()
	subs := make([]chan Event, 0, len(b.eventSubscribers))
	for _, ch := range b.eventSubscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}

	return true
}

// SubscribeEvents registers an event subscriber with the given buffer size.
// The returned cancel function unsubscribes and closes the channel.
func (b *Bus) SubscribeEvents(_ context.Context, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextEventSubscriberID
	b.nextEventSubscriberID++
	b.eventSubscribers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.eventSubscribers[id]; ok {
			delete(b.eventSubscribers, id)
			close(ch)
		}
	}
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.eventSubscribers {
			close(ch)
			delete(b.eventSubscribers, id)
		}
		b.mu.Unlock()
	})
}
