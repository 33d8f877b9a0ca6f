package services

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/optimize"
)

var errBroadcasterClosed = errors.New("broadcaster closed")

// Broadcaster fans one room's PCM stream out to its listeners. Write is
// called by the room's playback goroutine only; a listener that cannot keep
// up loses chunks rather than slowing the writer.
type Broadcaster struct {
	roomID     domain.RoomID
	header     []byte
	bufferSize int

	mu        sync.RWMutex
	listeners map[domain.ListenerID]*listener
	closed    bool
}

func NewBroadcaster(roomID domain.RoomID, header []byte, bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Broadcaster{
		roomID:     roomID,
		header:     header,
		bufferSize: bufferSize,
		listeners:  make(map[domain.ListenerID]*listener),
	}
}

// Subscribe attaches a listener at the live position. onClose runs once,
// after the listener has been detached.
func (b *Broadcaster) Subscribe(id domain.ListenerID, onClose func()) (ports.Listener, error) {
	l := &listener{
		id:      id,
		roomID:  b.roomID,
		pending: optimize.Clone(b.header),
		ch:      make(chan []byte, b.bufferSize),
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
	}
	l.onClose = func() {
		b.remove(id)
		if onClose != nil {
			onClose()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBroadcasterClosed
	}
	b.listeners[id] = l
	return l, nil
}

// Write copies chunk once and offers it to every listener without blocking.
// It returns how many listeners received it and how many dropped it.
func (b *Broadcaster) Write(chunk []byte) (delivered, dropped int) {
	if len(chunk) == 0 {
		return 0, 0
	}
	shared := optimize.Clone(chunk)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, l := range b.listeners {
		select {
		case l.ch <- shared:
			delivered++
		default:
			l.dropped.Add(1)
			dropped++
		}
	}
	return delivered, dropped
}

func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close ends every attached listener's stream. Buffered chunks are still
// readable; after them Read returns io.EOF.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	ls := make([]*listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		ls = append(ls, l)
	}
	b.mu.Unlock()

	for _, l := range ls {
		l.endOnce.Do(func() { close(l.ended) })
	}
}

func (b *Broadcaster) remove(id domain.ListenerID) {
	b.mu.Lock()
	delete(b.listeners, id)
	b.mu.Unlock()
}

// listener implements ports.Listener. Read must not be called concurrently.
type listener struct {
	id      domain.ListenerID
	roomID  domain.RoomID
	pending []byte

	ch    chan []byte
	done  chan struct{}
	ended chan struct{}

	closeOnce sync.Once
	endOnce   sync.Once
	onClose   func()
	dropped   atomic.Uint64
}

func (l *listener) ID() domain.ListenerID { return l.id }
func (l *listener) RoomID() domain.RoomID { return l.roomID }
func (l *listener) Dropped() uint64       { return l.dropped.Load() }

func (l *listener) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if len(l.pending) == 0 {
		select {
		case chunk := <-l.ch:
			l.pending = chunk
		case <-l.done:
			return 0, io.ErrClosedPipe
		case <-l.ended:
			select {
			case chunk := <-l.ch:
				l.pending = chunk
			default:
				return 0, io.EOF
			}
		}
	}

	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Close detaches the listener. It never affects playback or other listeners.
func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.onClose()
	})
	return nil
}
