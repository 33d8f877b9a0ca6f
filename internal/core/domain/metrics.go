package domain

import "time"

type RoomStats struct {
	RoomID        RoomID    `json:"room_id"`
	Listeners     int       `json:"listeners"`
	PeakListeners int       `json:"peak_listeners"`
	TracksQueued  int       `json:"tracks_queued"`
	TracksPlayed  int       `json:"tracks_played"`
	TracksFailed  int       `json:"tracks_failed"`
	NowPlaying    TrackID   `json:"now_playing,omitempty"`
	LastActivity  time.Time `json:"last_activity"`
}
