package services

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readN(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	return buf
}

func TestBroadcaster_HeaderPrecedesAudio(t *testing.T) {
	b := NewBroadcaster("room-1", []byte("RIFF"), 4)
	l, err := b.Subscribe("l1", nil)
	require.NoError(t, err)

	delivered, dropped := b.Write([]byte("pcm"))
	assert.Equal(t, 1, delivered)
	assert.Zero(t, dropped)

	assert.Equal(t, []byte("RIFFpcm"), readN(t, l, 7))
}

func TestBroadcaster_SlowListenerDoesNotAffectOthers(t *testing.T) {
	b := NewBroadcaster("room-1", nil, 2)
	slow, err := b.Subscribe("slow", nil)
	require.NoError(t, err)
	fast, err := b.Subscribe("fast", nil)
	require.NoError(t, err)

	var got []byte
	for i := 0; i < 5; i++ {
		b.Write([]byte{byte('a' + i)})
		got = append(got, readN(t, fast, 1)...)
	}

	assert.Equal(t, []byte("abcde"), got)
	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Zero(t, fast.Dropped())
	// The slow listener keeps the oldest buffered chunks.
	assert.Equal(t, []byte("ab"), readN(t, slow, 2))
}

func TestBroadcaster_WriteCopiesChunk(t *testing.T) {
	b := NewBroadcaster("room-1", nil, 1)
	l, err := b.Subscribe("l1", nil)
	require.NoError(t, err)

	chunk := []byte("abc")
	b.Write(chunk)
	chunk[0] = 'x'

	assert.Equal(t, []byte("abc"), readN(t, l, 3))
}

func TestBroadcaster_ListenerClose(t *testing.T) {
	b := NewBroadcaster("room-1", nil, 1)
	closed := make(chan struct{})
	l, err := b.Subscribe("l1", func() { close(closed) })
	require.NoError(t, err)
	other, err := b.Subscribe("l2", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Listeners())

	readErr := make(chan error, 1)
	go func() {
		_, err := l.Read(make([]byte, 8))
		readErr <- err
	}()

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	select {
	case err := <-readErr:
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(time.Second):
		t.Fatal("blocked read not released by close")
	}
	<-closed
	assert.Equal(t, 1, b.Listeners())

	delivered, _ := b.Write([]byte("x"))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []byte("x"), readN(t, other, 1))
}

func TestBroadcaster_CloseEndsStreams(t *testing.T) {
	b := NewBroadcaster("room-1", nil, 4)
	l, err := b.Subscribe("l1", nil)
	require.NoError(t, err)

	b.Write([]byte("tail"))
	b.Close()

	data, err := io.ReadAll(l)
	require.NoError(t, err)
	assert.Equal(t, []byte("tail"), data)

	_, err = b.Subscribe("late", nil)
	assert.ErrorIs(t, err, errBroadcasterClosed)
}
