package services

import (
	"context"
	"sync"
	"time"

	"vinyl/internal/core/domain"
)

// MetricsService keeps per-room counters derived from the event stream. It
// is registered as a bus handler and never looks at store state directly.
type MetricsService struct {
	mu sync.RWMutex

	rooms map[domain.RoomID]*domain.RoomStats
	// trackRooms maps queued tracks to their room so ingestion failures,
	// which carry no room id, can be attributed.
	trackRooms map[domain.TrackID]domain.RoomID

	now func() time.Time
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		rooms:      make(map[domain.RoomID]*domain.RoomStats),
		trackRooms: make(map[domain.TrackID]domain.RoomID),
		now:        time.Now,
	}
}

func (m *MetricsService) Handle(_ context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := event.(type) {
	case domain.RoomCreated:
		m.stats(e.Room.ID)

	case domain.ListenerJoined:
		st := m.stats(e.RoomID)
		st.Listeners++
		if st.Listeners > st.PeakListeners {
			st.PeakListeners = st.Listeners
		}

	case domain.ListenerLeft:
		st := m.stats(e.RoomID)
		if st.Listeners > 0 {
			st.Listeners--
		}

	case domain.TrackQueued:
		m.stats(e.RoomID).TracksQueued++
		m.trackRooms[e.Track.ID] = e.RoomID

	case domain.TrackDequeued:
		m.stats(e.RoomID)
		delete(m.trackRooms, e.TrackID)

	case domain.TrackStarted:
		m.stats(e.RoomID).NowPlaying = e.Track.ID

	case domain.TrackEnded:
		st := m.stats(e.RoomID)
		st.NowPlaying = ""
		if e.Err == "" {
			st.TracksPlayed++
		} else {
			st.TracksFailed++
		}

	case domain.IngestionFailed:
		if roomID, ok := m.trackRooms[e.TrackID]; ok {
			m.stats(roomID).TracksFailed++
		}

	case domain.IngestionProbed, domain.IngestionResolved:
	}
	return nil
}

// RoomStats returns a copy of the counters for roomID. Rooms with no events
// yet report zero values.
func (m *MetricsService) RoomStats(roomID domain.RoomID) domain.RoomStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st, ok := m.rooms[roomID]; ok {
		return *st
	}
	return domain.RoomStats{RoomID: roomID}
}

// stats must be called with mu held. It also stamps LastActivity.
func (m *MetricsService) stats(roomID domain.RoomID) *domain.RoomStats {
	st, ok := m.rooms[roomID]
	if !ok {
		st = &domain.RoomStats{RoomID: roomID}
		m.rooms[roomID] = st
	}
	st.LastActivity = m.now()
	return st
}
