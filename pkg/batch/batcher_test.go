package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sink struct {
	mu      sync.Mutex
	batches [][]int
}

func (s *sink) process(_ context.Context, items []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, items)
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestBatcher_FlushesWhenFull(t *testing.T) {
	s := &sink{}
	b := NewBatcher(3, time.Hour, s.process, nil)
	defer b.Stop()

	for i := 0; i < 3; i++ {
		b.Add(i)
	}

	assert.Eventually(t, func() bool { return s.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	s := &sink{}
	b := NewBatcher(100, 10*time.Millisecond, s.process, nil)
	defer b.Stop()

	b.Add(1)
	assert.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_StopFlushesPending(t *testing.T) {
	s := &sink{}
	b := NewBatcher(100, time.Hour, s.process, nil)

	b.Add(1)
	b.Add(2)
	b.Stop()
	b.Stop()

	assert.Equal(t, 2, s.count())
}

func TestBatcher_ReportsErrors(t *testing.T) {
	var dropped int
	b := NewBatcher(10, time.Hour, func(context.Context, []string) error {
		return errors.New("redis down")
	}, func(_ error, n int) { dropped = n })

	b.Add("a")
	b.Add("b")
	err := b.Flush(context.Background())
	b.Stop()

	assert.Error(t, err)
	assert.Equal(t, 2, dropped)
}
