package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
	"weak"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

// Notifier pushes bus events to websocket clients subscribed to a room. It
// is a bus handler: Handle encodes each event once per target room and hands
// the frame to each client's writer goroutine without blocking. A client
// whose buffer is full is disconnected.
//
// The store reference is weak so the notifier never keeps the store alive;
// ingestion events are dropped once the store is gone.
type Notifier struct {
	store    weak.Pointer[services.Store]
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[domain.RoomID]map[*client]struct{}

	now func() time.Time
}

type client struct {
	roomID domain.RoomID
	userID domain.UserID
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
	done   chan struct{}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func NewNotifier(store *services.Store, cfg Config, logger *zap.SugaredLogger) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Notifier{
		store: weak.Make(store),
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger:  logger,
		clients: make(map[domain.RoomID]map[*client]struct{}),
		now:     time.Now,
	}
}

// Serve upgrades the request and streams the room's events until the client
// disconnects. The caller has already checked that the room exists.
func (n *Notifier) Serve(w http.ResponseWriter, r *http.Request, roomID domain.RoomID, userID domain.UserID) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.Warnw("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	c := &client{
		roomID: roomID,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, n.cfg.SendBuffer),
		done:   make(chan struct{}),
	}
	n.add(c)
	n.logger.Infow("event client connected", "room_id", roomID, "user_id", userID)

	go n.writePump(c)
	n.readPump(c)

	n.remove(c)
	c.close()
	n.logger.Infow("event client disconnected", "room_id", roomID, "user_id", userID)
}

// Clients returns the number of connected clients in a room.
func (n *Notifier) Clients(roomID domain.RoomID) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients[roomID])
}

func (n *Notifier) Handle(_ context.Context, event domain.Event) error {
	sc, payload := describe(event)
	if payload == nil {
		return nil
	}

	var rooms []domain.RoomID
	switch {
	case sc.all:
		n.mu.RLock()
		for id := range n.clients {
			rooms = append(rooms, id)
		}
		n.mu.RUnlock()
	case sc.room != "":
		rooms = []domain.RoomID{sc.room}
	default:
		store := n.store.Value()
		if store == nil {
			return nil
		}
		rooms = store.RoomsForIngestion(sc.trackID, sc.fingerprint)
	}

	ts := n.now().UTC()
	for _, roomID := range rooms {
		if n.Clients(roomID) == 0 {
			continue
		}
		frame, err := json.Marshal(Message{Type: event.Name(), RoomID: roomID, Timestamp: ts, Payload: payload})
		if err != nil {
			return err
		}
		n.broadcast(roomID, frame)
	}
	return nil
}

// Close disconnects every client.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, set := range n.clients {
		for c := range set {
			c.close()
		}
	}
}

func (n *Notifier) broadcast(roomID domain.RoomID, frame []byte) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for c := range n.clients[roomID] {
		select {
		case c.send <- frame:
		default:
			n.logger.Warnw("event client too slow, disconnecting", "room_id", roomID, "user_id", c.userID)
			c.close()
		}
	}
}

func (n *Notifier) add(c *client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	set, ok := n.clients[c.roomID]
	if !ok {
		set = make(map[*client]struct{})
		n.clients[c.roomID] = set
	}
	set[c] = struct{}{}
}

func (n *Notifier) remove(c *client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if set, ok := n.clients[c.roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(n.clients, c.roomID)
		}
	}
}

// readPump discards client frames; it only exists to process control frames
// and notice disconnects.
func (n *Notifier) readPump(c *client) {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(n.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(n.cfg.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				n.logger.Debugw("event client read error", "room_id", c.roomID, "error", err)
			}
			return
		}
	}
}

func (n *Notifier) writePump(c *client) {
	ticker := time.NewTicker(n.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(n.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(n.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(n.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}
