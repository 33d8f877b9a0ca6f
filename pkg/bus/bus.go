package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrDispatchStarted is returned by Register once Tick or Run has been called.
var ErrDispatchStarted = errors.New("bus: dispatch already started")

// Handler consumes events delivered by a Bus. Handle is called from the
// dispatch goroutine and must not block on external I/O or foreign locks:
// dispatch is serial, so a slow handler stalls every downstream event.
type Handler[E any] interface {
	Handle(ctx context.Context, event E) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc[E any] func(ctx context.Context, event E) error

// Handle calls f(ctx, event).
func (f HandlerFunc[E]) Handle(ctx context.Context, event E) error {
	return f(ctx, event)
}

// Bus owns the consuming end of a Channel and the ordered handler list.
type Bus[E any] struct {
	ch     *Channel[E]
	logger *zap.SugaredLogger

	mu       sync.Mutex
	handlers []Handler[E]
	started  bool

	delivered atomic.Uint64
	lastTick  atomic.Int64
}

// New creates a bus with its own channel.
func New[E any](logger *zap.SugaredLogger) *Bus[E] {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bus[E]{
		ch:     NewChannel[E](),
		logger: logger,
	}
}

// Emitter returns a producer handle for this bus.
func (b *Bus[E]) Emitter() Emitter[E] {
	return Emitter[E]{ch: b.ch}
}

// Register appends h to the handler list. Handlers are invoked in
// registration order. Registration is only allowed before dispatch starts.
func (b *Bus[E]) Register(h Handler[E]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrDispatchStarted
	}
	b.handlers = append(b.handlers, h)
	return nil
}

// Tick blocks until one event is available and delivers it to every handler
// before returning. It only returns an error when ctx is done.
func (b *Bus[E]) Tick(ctx context.Context) error {
	handlers := b.start()

	event, err := b.ch.Receive(ctx)
	if err != nil {
		return err
	}

	for _, h := range handlers {
		b.deliver(ctx, h, event)
	}

	b.delivered.Add(1)
	b.lastTick.Store(time.Now().UnixNano())
	return nil
}

// Run drives Tick until ctx is cancelled. It is meant to own a dedicated goroutine.
func (b *Bus[E]) Run(ctx context.Context) {
	b.logger.Infow("event bus dispatch started", "handlers", b.HandlerCount())
	for {
		if err := b.Tick(ctx); err != nil {
			b.logger.Infow("event bus dispatch stopped",
				"delivered", b.delivered.Load(),
				"pending", b.ch.Len(),
			)
			return
		}
	}
}

// Pending returns the number of events waiting for dispatch.
func (b *Bus[E]) Pending() int {
	return b.ch.Len()
}

// Delivered returns the number of events dispatched so far.
func (b *Bus[E]) Delivered() uint64 {
	return b.delivered.Load()
}

// LastTick returns when the last event finished dispatching, zero if none has.
func (b *Bus[E]) LastTick() time.Time {
	ns := b.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// HandlerCount returns the number of registered handlers.
func (b *Bus[E]) HandlerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func (b *Bus[E]) start() []Handler[E] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	return b.handlers
}

func (b *Bus[E]) deliver(ctx context.Context, h Handler[E], event E) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("event handler panicked",
				"handler", fmt.Sprintf("%T", h),
				"event", fmt.Sprintf("%T", event),
				"panic", r,
			)
		}
	}()

	if err := h.Handle(ctx, event); err != nil {
		b.logger.Warnw("event handler failed",
			"handler", fmt.Sprintf("%T", h),
			"event", fmt.Sprintf("%T", event),
			"error", err,
		)
	}
}
