package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stamped struct {
	producer int
	seq      int
}

type recorder struct {
	mu     sync.Mutex
	events []stamped
}

func (r *recorder) Handle(_ context.Context, e stamped) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) snapshot() []stamped {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stamped, len(r.events))
	copy(out, r.events)
	return out
}

func TestChannel_FIFO(t *testing.T) {
	ch := NewChannel[int]()
	for i := 0; i < 5; i++ {
		ch.Send(i)
	}
	assert.Equal(t, 5, ch.Len())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, ch.Len())
}

func TestBus_TickBlocksUntilEventAvailable(t *testing.T) {
	b := New[stamped](nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := b.Tick(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, b.Delivered())

	done := make(chan error, 1)
	go func() { done <- b.Tick(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	b.Emitter().Emit(stamped{seq: 1})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("tick did not return after emit")
	}
	assert.Equal(t, uint64(1), b.Delivered())
	assert.False(t, b.LastTick().IsZero())
}

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	b := New[stamped](nil)

	var mu sync.Mutex
	var calls []string
	for _, name := range []string{"queue", "engine", "notifier"} {
		name := name
		require.NoError(t, b.Register(HandlerFunc[stamped](func(context.Context, stamped) error {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			return nil
		})))
	}

	b.Emitter().Emit(stamped{})
	require.NoError(t, b.Tick(context.Background()))

	assert.Equal(t, []string{"queue", "engine", "notifier"}, calls)
}

func TestBus_RegisterAfterDispatchStarted(t *testing.T) {
	b := New[stamped](nil)
	b.Emitter().Emit(stamped{})
	require.NoError(t, b.Tick(context.Background()))

	err := b.Register(&recorder{})
	assert.ErrorIs(t, err, ErrDispatchStarted)
}

func TestBus_HandlerFailuresDoNotStopDelivery(t *testing.T) {
	b := New[stamped](nil)

	require.NoError(t, b.Register(HandlerFunc[stamped](func(context.Context, stamped) error {
		return errors.New("boom")
	})))
	require.NoError(t, b.Register(HandlerFunc[stamped](func(_ context.Context, e stamped) error {
		if e.seq == 1 {
			panic("handler exploded")
		}
		return nil
	})))
	rec := &recorder{}
	require.NoError(t, b.Register(rec))

	em := b.Emitter()
	em.Emit(stamped{seq: 1})
	em.Emit(stamped{seq: 2})

	ctx := context.Background()
	require.NoError(t, b.Tick(ctx))
	require.NoError(t, b.Tick(ctx))

	assert.Equal(t, []stamped{{seq: 1}, {seq: 2}}, rec.snapshot())
}

func TestBus_ConcurrentProducersObserveOneTotalOrder(t *testing.T) {
	const producers = 8
	const perProducer = 200

	b := New[stamped](nil)
	first, second := &recorder{}, &recorder{}
	require.NoError(t, b.Register(first))
	require.NoError(t, b.Register(second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		em := b.Emitter()
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				em.Emit(stamped{producer: p, seq: i})
			}
		}(p)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(second.snapshot()) == producers*perProducer
	}, 2*time.Second, 5*time.Millisecond)

	a, c := first.snapshot(), second.snapshot()
	assert.Equal(t, a, c, "handlers must observe the same order")

	// Per-producer FIFO is preserved inside the global order.
	next := make([]int, producers)
	for _, e := range a {
		assert.Equal(t, next[e.producer], e.seq)
		next[e.producer]++
	}
}

func TestEmitter_ZeroValueIsNoop(t *testing.T) {
	var em Emitter[int]
	assert.NotPanics(t, func() { em.Emit(1) })
}
