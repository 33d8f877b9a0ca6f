package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/bus"
	"vinyl/pkg/optimize"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type PlayerState int32

const (
	StateIdle PlayerState = iota
	StatePlaying
)

func (s PlayerState) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

type PlaybackConfig struct {
	ChunkSize      int
	ListenerBuffer int
	// IdlePoll bounds how long an idle room waits between queue checks when
	// no wake-up arrives.
	IdlePoll time.Duration
}

// PlaybackObserver receives per-chunk fan-out counts. Implementations must
// not block.
type PlaybackObserver interface {
	ObserveChunk(roomID domain.RoomID, bytes, delivered, dropped int)
}

type player struct {
	roomID      domain.RoomID
	queueID     domain.QueueID
	wake        chan struct{}
	broadcaster *Broadcaster
	state       atomic.Int32
	nowPlaying  atomic.Value // domain.TrackID
}

// PlaybackService runs one Idle/Playing loop per room: it decodes the head
// of the room's queue, paces it to real time and fans it out to listeners.
type PlaybackService struct {
	queues   *QueueService
	decoder  ports.Decoder
	observer PlaybackObserver
	emitter  bus.Emitter[domain.Event]
	logger   *zap.SugaredLogger
	cfg      PlaybackConfig
	frame    int
	pool     *optimize.BytePool

	mu      sync.Mutex
	players map[domain.RoomID]*player
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

func NewPlaybackService(
	queues *QueueService,
	decoder ports.Decoder,
	emitter bus.Emitter[domain.Event],
	cfg PlaybackConfig,
	logger *zap.SugaredLogger,
) *PlaybackService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 16 * 1024
	}
	frame := decoder.FrameSize()
	if frame <= 0 {
		frame = 1
	}
	// Chunks are cut on frame boundaries, so the buffer holds whole frames.
	cfg.ChunkSize -= cfg.ChunkSize % frame
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = frame
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PlaybackService{
		queues:  queues,
		decoder: decoder,
		emitter: emitter,
		logger:  logger,
		cfg:     cfg,
		frame:   frame,
		pool:    optimize.NewBytePool(cfg.ChunkSize),
		players: make(map[domain.RoomID]*player),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetObserver must be called before the first Start.
func (s *PlaybackService) SetObserver(o PlaybackObserver) {
	s.observer = o
}

// Start launches the playback loop for a room. Starting a room twice is a
// no-op.
func (s *PlaybackService) Start(roomID domain.RoomID, queueID domain.QueueID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.players[roomID]; ok {
		return
	}

	p := &player{
		roomID:      roomID,
		queueID:     queueID,
		wake:        make(chan struct{}, 1),
		broadcaster: NewBroadcaster(roomID, s.decoder.StreamHeader(), s.cfg.ListenerBuffer),
	}
	p.nowPlaying.Store(domain.TrackID(""))
	s.players[roomID] = p

	s.wg.Add(1)
	go s.loop(p)
}

// Subscribe attaches a listener to the room's live output.
func (s *PlaybackService) Subscribe(roomID domain.RoomID, id domain.ListenerID, onClose func()) (ports.Listener, error) {
	p, ok := s.player(roomID)
	if !ok {
		return nil, fmt.Errorf("subscribe to %s: %w", roomID, domain.ErrRoomNotFound)
	}
	l, err := p.broadcaster.Subscribe(id, onClose)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", roomID, domain.ErrStoreClosed)
	}
	return l, nil
}

// State reports the room's player state and the track it is playing.
func (s *PlaybackService) State(roomID domain.RoomID) (PlayerState, domain.TrackID, bool) {
	p, ok := s.player(roomID)
	if !ok {
		return StateIdle, "", false
	}
	return PlayerState(p.state.Load()), p.nowPlaying.Load().(domain.TrackID), true
}

func (s *PlaybackService) Listeners(roomID domain.RoomID) int {
	if p, ok := s.player(roomID); ok {
		return p.broadcaster.Listeners()
	}
	return 0
}

// Handle wakes idle rooms whose queue head may have become playable. It only
// performs non-blocking sends.
func (s *PlaybackService) Handle(_ context.Context, event domain.Event) error {
	switch e := event.(type) {
	case domain.TrackQueued:
		if p, ok := s.player(e.RoomID); ok {
			p.signal()
		}
	case domain.IngestionResolved, domain.IngestionFailed:
		s.mu.Lock()
		for _, p := range s.players {
			p.signal()
		}
		s.mu.Unlock()
	}
	return nil
}

// Stop ends every room loop, then closes all listener streams.
func (s *PlaybackService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		p.broadcaster.Close()
	}
}

func (s *PlaybackService) player(roomID domain.RoomID) (*player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[roomID]
	return p, ok
}

func (p *player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (s *PlaybackService) loop(p *player) {
	defer s.wg.Done()
	log := s.logger.With("room_id", p.roomID)
	log.Debugw("playback loop started")

	for {
		if s.ctx.Err() != nil {
			log.Debugw("playback loop stopped")
			return
		}

		next, ok := s.queues.Next(p.queueID)
		switch {
		case !ok, next.Pending():
			s.idle(p)

		case next.Resolved():
			err := s.play(p, next)
			if s.ctx.Err() != nil {
				// Shutdown interrupted the track; leave the queue untouched.
				continue
			}
			s.finish(p, next.ID)

			ended := domain.TrackEnded{RoomID: p.roomID, TrackID: next.ID}
			if err != nil {
				ended.Err = err.Error()
				log.Warnw("track playback failed", "track_id", next.ID, "error", err)
			}
			s.emitter.Emit(ended)
		}
	}
}

func (s *PlaybackService) idle(p *player) {
	p.state.Store(int32(StateIdle))
	p.nowPlaying.Store(domain.TrackID(""))

	timer := time.NewTimer(s.cfg.IdlePoll)
	defer timer.Stop()

	select {
	case <-p.wake:
	case <-timer.C:
	case <-s.ctx.Done():
	}
}

// finish dequeues the played track together with the failed tracks that
// were skipped to reach it. The playback loop is the only remover, so the
// queue front can only hold those tracks.
func (s *PlaybackService) finish(p *player, played domain.TrackID) {
	for {
		head, ok := s.queues.Head(p.queueID)
		if !ok || (head.ID != played && !head.Failed()) {
			s.logger.Warnw("queue head changed under playback",
				"room_id", p.roomID,
				"expected", played,
				"head", head.ID,
			)
			return
		}
		s.queues.Dequeue(p.queueID)
		if head.ID == played {
			return
		}
	}
}

func (s *PlaybackService) play(p *player, track domain.Track) error {
	p.state.Store(int32(StatePlaying))
	p.nowPlaying.Store(track.ID)
	s.emitter.Emit(domain.TrackStarted{RoomID: p.roomID, Track: track})

	rc, err := s.decoder.Decode(s.ctx, track.Source)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	defer rc.Close()

	buf := s.pool.Get()
	defer s.pool.Put(buf)

	limit := rate.Inf
	if bps := s.decoder.BytesPerSecond(); bps > 0 {
		limit = rate.Limit(bps)
	}
	limiter := rate.NewLimiter(limit, len(buf))

	// A listener that drops a chunk must stay frame aligned, so only whole
	// frames are written and a partial tail waits for the next read.
	filled := 0
	for {
		n, err := rc.Read(buf[filled:])
		filled += n
		if whole := filled - filled%s.frame; whole > 0 {
			if werr := limiter.WaitN(s.ctx, whole); werr != nil {
				return werr
			}
			delivered, dropped := p.broadcaster.Write(buf[:whole])
			if s.observer != nil {
				s.observer.ObserveChunk(p.roomID, whole, delivered, dropped)
			}
			filled = copy(buf, buf[whole:filled])
		}
		if errors.Is(err, io.EOF) {
			if filled > 0 {
				s.logger.Debugw("discarding partial pcm frame", "room_id", p.roomID, "bytes", filled)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read pcm: %w", err)
		}
	}
}
