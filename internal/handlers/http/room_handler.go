package http

import (
	"context"
	"io"
	"net/http"
	"strings"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/services"
	"vinyl/pkg/errors"
	"vinyl/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxReferenceBody = validation.MaxReferenceLength + 1
	streamReadSize   = 16 * 1024
)

// EventStream upgrades a request into a room's push channel.
type EventStream interface {
	Serve(w http.ResponseWriter, r *http.Request, roomID domain.RoomID, userID domain.UserID)
	Clients(roomID domain.RoomID) int
}

type RoomHandler struct {
	store  *services.Store
	events EventStream
	mime   string
	logger *zap.SugaredLogger
}

func NewRoomHandler(sc *services.Context, events EventStream, mime string, logger *zap.SugaredLogger) *RoomHandler {
	return &RoomHandler{
		store:  sc.Store,
		events: events,
		mime:   mime,
		logger: logger,
	}
}

// SetupRoutes mounts the room API behind auth. Streaming routes also pass
// through the connection limiter.
func (h *RoomHandler) SetupRoutes(router *gin.Engine, auth, connections gin.HandlerFunc) {
	rooms := router.Group("/rooms", auth)
	{
		rooms.POST("", h.CreateRoom)
		rooms.GET("", h.ListRooms)
		rooms.GET("/:id", h.GetRoom)
		rooms.POST("/:id/queue", h.AddToQueue)
		rooms.GET("/:id/queue", h.GetQueue)
		rooms.GET("/:id/stats", h.GetRoomStats)
		rooms.GET("/:id/stream", connections, h.Stream)
		rooms.GET("/:id/events", connections, h.Events)
	}
}

func session(c *gin.Context) (domain.Session, bool) {
	s, err := services.SessionFromContext(c.Request.Context())
	if err != nil {
		c.Error(errors.NewUnauthorizedError("session required"))
		return domain.Session{}, false
	}
	return s, true
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	room, err := h.store.Rooms.CreateRoom(c.Request.Context(), s.User, req.Name)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Rooms.Rooms())
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.store.Rooms.Room(domain.RoomID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// AddToQueue takes the raw request body as the reference and answers with a
// plain-text confirmation.
func (h *RoomHandler) AddToQueue(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	roomID := domain.RoomID(c.Param("id"))
	if _, err := h.store.Rooms.Room(roomID); err != nil {
		c.Error(err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxReferenceBody))
	if err != nil {
		c.Error(errors.NewInvalidInputError("could not read request body"))
		return
	}
	reference := strings.TrimSpace(string(body))
	if err := validation.ValidateReference(reference); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	input, err := h.store.Ingest.Parse(reference)
	if err != nil {
		c.Error(errors.NewParseError(reference))
		return
	}

	track, err := h.store.Rooms.AddInput(c.Request.Context(), s.User, roomID, input)
	if err != nil {
		c.Error(err)
		return
	}
	c.String(http.StatusOK, "Added %s to the queue", track.Display())
}

func (h *RoomHandler) GetQueue(c *gin.Context) {
	queue, err := h.store.Rooms.Queue(domain.RoomID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, queue)
}

func (h *RoomHandler) GetRoomStats(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	if _, err := h.store.Rooms.Room(roomID); err != nil {
		c.Error(err)
		return
	}

	state, nowPlaying, _ := h.store.Playback.State(roomID)
	stats := h.store.Metrics.RoomStats(roomID)
	stats.NowPlaying = nowPlaying

	c.JSON(http.StatusOK, gin.H{
		"stats":     stats,
		"state":     state.String(),
		"listeners": h.store.Playback.Listeners(roomID),
		"clients":   h.events.Clients(roomID),
		"queued":    h.store.Queues.Len(domain.QueueIDFor(roomID)),
		"ingest":    h.store.Ingest.Stats(),
	})
}

// Stream attaches the request to the room broadcast as a never-ending WAV
// file. The listener is detached when the client goes away.
func (h *RoomHandler) Stream(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	roomID := domain.RoomID(c.Param("id"))

	listener, err := h.store.Rooms.Connect(s.User, roomID)
	if err != nil {
		c.Error(err)
		return
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	c.Header("Content-Type", h.mime)
	c.Header("Cache-Control", "no-store")
	c.Header("Transfer-Encoding", "chunked")
	c.Header("Content-Disposition", `inline; filename="stream.wav"`)
	c.Status(http.StatusOK)

	h.logger.Infow("listener attached",
		"room_id", roomID,
		"listener_id", listener.ID(),
		"user_id", s.User,
	)

	buf := make([]byte, streamReadSize)
	c.Stream(func(w io.Writer) bool {
		n, err := listener.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return false
			}
		}
		return err == nil
	})

	h.logger.Infow("listener detached",
		"room_id", roomID,
		"listener_id", listener.ID(),
		"dropped_chunks", listener.Dropped(),
	)
}

func (h *RoomHandler) Events(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	roomID := domain.RoomID(c.Param("id"))
	if _, err := h.store.Rooms.Room(roomID); err != nil {
		c.Error(err)
		return
	}
	h.events.Serve(c.Writer, c.Request, roomID, s.User)
}
