package services

import (
	"context"
	"fmt"
	"sync"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/bus"

	"go.uber.org/zap"
)

type StoreDeps struct {
	Repo     ports.RoomRepository
	Parsers  []ports.Parser
	Prober   ports.Prober
	Resolver ports.Resolver
	Decoder  ports.Decoder
}

type StoreConfig struct {
	Ingest   IngestConfig
	Playback PlaybackConfig
}

// Store owns the room, queue, ingestion and playback components and the
// event bus that binds them. Every component emits through the same bus;
// the queue store, the playback engine and the stats service are registered
// as its first handlers, in that order.
type Store struct {
	bus *bus.Bus[domain.Event]

	Rooms    *RoomService
	Queues   *QueueService
	Ingest   *IngestService
	Playback *PlaybackService
	Metrics  *MetricsService

	logger *zap.SugaredLogger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	shutdown bool
}

func NewStore(deps StoreDeps, cfg StoreConfig, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	b := bus.New[domain.Event](logger.Named("bus"))
	em := b.Emitter()

	queues := NewQueueService(em, logger.Named("queue"))
	ingest := NewIngestService(deps.Parsers, deps.Prober, deps.Resolver, em, cfg.Ingest, logger.Named("ingest"))
	playback := NewPlaybackService(queues, deps.Decoder, em, cfg.Playback, logger.Named("playback"))
	rooms := NewRoomService(deps.Repo, queues, ingest, playback, em, logger.Named("rooms"))
	metrics := NewMetricsService()

	for _, h := range []bus.Handler[domain.Event]{queues, playback, metrics} {
		if err := b.Register(h); err != nil {
			return nil, fmt.Errorf("register %T: %w", h, err)
		}
	}

	return &Store{
		bus:      b,
		Rooms:    rooms,
		Queues:   queues,
		Ingest:   ingest,
		Playback: playback,
		Metrics:  metrics,
		logger:   logger,
	}, nil
}

// Register adds a handler after the built-in ones. It fails once Start has
// begun dispatching.
func (s *Store) Register(h bus.Handler[domain.Event]) error {
	return s.bus.Register(h)
}

func (s *Store) Emitter() bus.Emitter[domain.Event] {
	return s.bus.Emitter()
}

func (s *Store) Bus() *bus.Bus[domain.Event] {
	return s.bus
}

// Start restores persisted rooms, then starts the ingest workers and the
// dispatch goroutine. A restore failure is returned before anything runs.
func (s *Store) Start(ctx context.Context) error {
	if err := s.Rooms.Restore(ctx); err != nil {
		return err
	}

	busCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.Ingest.Start(context.Background())
	go func() {
		defer close(done)
		s.bus.Run(busCtx)
	}()
	return nil
}

// Shutdown stops playback (closing every listener stream), then ingestion,
// then the dispatch goroutine. Events emitted after that are dropped.
func (s *Store) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	s.Playback.Stop()
	s.Ingest.Stop()

	if cancel != nil {
		cancel()
		<-done
	}
	s.logger.Infow("store stopped", "events_delivered", s.bus.Delivered(), "events_pending", s.bus.Pending())
}

// RoomsForIngestion reports the rooms affected by an ingestion event.
func (s *Store) RoomsForIngestion(trackID domain.TrackID, fingerprint string) []domain.RoomID {
	return s.Queues.RoomsForIngestion(trackID, fingerprint)
}

// Context is the process-wide composition root handed to the HTTP layer.
type Context struct {
	Store *Store
	Auth  AuthService
}
