package domain

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrQueueNotFound        = errors.New("queue not found")
	ErrTrackNotFound        = errors.New("track not found")
	ErrInvalidRoomName      = errors.New("invalid room name")
	ErrUnsupportedReference = errors.New("reference is not recognised by any source parser")
	ErrMissingFields        = errors.New("resolved media is missing required fields")
	ErrPlaylistReference    = errors.New("playlists are not supported")
	ErrRoomExists           = errors.New("room already exists")
	ErrDatabase             = errors.New("database error")
	ErrStoreClosed          = errors.New("store is shut down")
)
