// Package bus provides an in-process publish/subscribe primitive: an unbounded
// multi-producer single-consumer Channel, cheap Emitter handles bound to it, and
// a Bus that delivers every event to an ordered list of handlers from a single
// dispatch goroutine.
package bus

import (
	"context"
	"sync"
)

// Channel is an unbounded multi-producer, single-consumer FIFO queue.
// Send never blocks; Receive blocks until an item is available.
type Channel[E any] struct {
	mu     sync.Mutex
	items  []E
	notify chan struct{}
}

// NewChannel creates an empty channel.
func NewChannel[E any]() *Channel[E] {
	return &Channel[E]{
		notify: make(chan struct{}, 1),
	}
}

// Send appends an item to the tail of the queue and returns immediately.
func (c *Channel[E]) Send(item E) {
	c.mu.Lock()
	c.items = append(c.items, item)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Receive removes and returns the head of the queue, blocking until an item
// is available or ctx is done.
func (c *Channel[E]) Receive(ctx context.Context) (E, error) {
	for {
		if item, ok := c.pop(); ok {
			return item, nil
		}

		select {
		case <-c.notify:
		case <-ctx.Done():
			var zero E
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (c *Channel[E]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Channel[E]) pop() (E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero E
	if len(c.items) == 0 {
		return zero, false
	}

	item := c.items[0]
	c.items[0] = zero
	c.items = c.items[1:]

	// Drop the backing array once drained so a burst doesn't pin memory.
	if len(c.items) == 0 {
		c.items = nil
	}

	return item, true
}

// Emitter is a copyable producer handle bound to one Channel.
type Emitter[E any] struct {
	ch *Channel[E]
}

// Emit enqueues an event. It never blocks.
func (e Emitter[E]) Emit(event E) {
	if e.ch == nil {
		return
	}
	e.ch.Send(event)
}
