package signal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/services"
	"vinyl/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type silentDecoder struct{}

func (silentDecoder) Decode(context.Context, domain.Source) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (silentDecoder) StreamHeader() []byte { return nil }
func (silentDecoder) BytesPerSecond() int  { return 0 }
func (silentDecoder) FrameSize() int       { return 4 }

type wireMessage struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func newTestNotifier(t *testing.T, store *services.Store) (*Notifier, *httptest.Server) {
	n := NewNotifier(store, Config{PingInterval: time.Second, SendBuffer: 8}, zaptest.NewLogger(t).Sugar())
	n.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Serve(w, r, domain.RoomID(r.URL.Query().Get("room")), "u1")
	}))
	t.Cleanup(func() {
		n.Close()
		srv.Close()
	})
	return n, srv
}

func dial(t *testing.T, n *Notifier, srv *httptest.Server, room domain.RoomID) *websocket.Conn {
	t.Helper()
	before := n.Clients(room)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + string(room)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return n.Clients(room) == before+1 }, time.Second, time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNotifier_RoomScopedEvents(t *testing.T) {
	n, srv := newTestNotifier(t, nil)
	a := dial(t, n, srv, "room-a")
	b := dial(t, n, srv, "room-b")

	track := domain.NewPendingTrack("t1", domain.YouTubeVideo{URL: "https://www.youtube.com/watch?v=x"}, "u1")
	require.NoError(t, n.Handle(context.Background(), domain.TrackQueued{RoomID: "room-a", QueueID: "room-a", Track: track}))
	require.NoError(t, n.Handle(context.Background(), domain.TrackEnded{RoomID: "room-b", TrackID: "t9", Err: "boom"}))

	msg := readMessage(t, a)
	assert.Equal(t, "queue.track_queued", msg.Type)
	assert.Equal(t, "room-a", msg.RoomID)
	assert.Equal(t, 2024, msg.Timestamp.Year())

	var payload struct {
		QueueID string `json:"queue_id"`
		Track   struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"track"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "t1", payload.Track.ID)
	assert.Equal(t, "pending", payload.Track.Status)

	msg = readMessage(t, b)
	assert.Equal(t, "audio.track_ended", msg.Type)
	assert.JSONEq(t, `{"track_id":"t9","error":"boom"}`, string(msg.Payload))
}

func TestNotifier_RoomCreatedGoesToEveryone(t *testing.T) {
	n, srv := newTestNotifier(t, nil)
	a := dial(t, n, srv, "room-a")
	b := dial(t, n, srv, "room-b")

	require.NoError(t, n.Handle(context.Background(), domain.RoomCreated{Room: domain.Room{ID: "room-c", Name: "New"}}))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "room.created", msg.Type)
	}
}

func TestNotifier_IngestionEventsRoutedThroughStore(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	store, err := services.NewStore(services.StoreDeps{
		Repo:    memory.NewMemoryRoomRepository(),
		Decoder: silentDecoder{},
	}, services.StoreConfig{}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Start(context.Background()))
	t.Cleanup(store.Shutdown)

	room, err := store.Rooms.CreateRoom(context.Background(), "u1", "Lounge")
	require.NoError(t, err)
	other, err := store.Rooms.CreateRoom(context.Background(), "u1", "Other")
	require.NoError(t, err)

	track := domain.NewPendingTrack("t1", domain.YouTubeVideo{URL: "https://www.youtube.com/watch?v=x"}, "u1")
	require.NoError(t, store.Queues.Push(room.QueueID, track))

	n, srv := newTestNotifier(t, store)
	conn := dial(t, n, srv, room.ID)
	otherConn := dial(t, n, srv, other.ID)

	require.NoError(t, n.Handle(context.Background(), domain.IngestionFailed{TrackID: "t1", Reason: "unavailable"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "ingestion.failed", msg.Type)
	assert.Equal(t, string(room.ID), msg.RoomID)
	assert.JSONEq(t, `{"track_id":"t1","reason":"unavailable"}`, string(msg.Payload))

	otherConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err = otherConn.ReadMessage()
	assert.Error(t, err, "other rooms receive nothing")
}

func TestNotifier_DisconnectRemovesClient(t *testing.T) {
	n, srv := newTestNotifier(t, nil)
	conn := dial(t, n, srv, "room-a")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return n.Clients("room-a") == 0 }, time.Second, time.Millisecond)
}
