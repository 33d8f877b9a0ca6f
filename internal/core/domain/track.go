package domain

import (
	"fmt"
	"time"
)

type TrackID string

type TrackStatus string

const (
	TrackPending  TrackStatus = "pending"
	TrackResolved TrackStatus = "resolved"
	TrackFailed   TrackStatus = "failed"
)

// Source is the playable audio location a track resolves to.
type Source struct {
	URL string `json:"url"`
}

// Metadata is what a probe learns about an input before its audio is resolved.
type Metadata struct {
	Title   string
	Channel string
}

// Fingerprint is the ingestion cache key. It is derived from the resolved
// title only, so distinct videos sharing a title share a fingerprint.
func (m Metadata) Fingerprint() string {
	return m.Title
}

type Track struct {
	ID          TrackID
	Input       Input
	Status      TrackStatus
	Fingerprint string
	Title       string
	Channel     string
	Source      Source
	Error       string
	SubmittedBy UserID
	AddedAt     time.Time
}

// NewPendingTrack creates the placeholder inserted at submission time.
func NewPendingTrack(id TrackID, input Input, user UserID) Track {
	return Track{
		ID:          id,
		Input:       input,
		Status:      TrackPending,
		SubmittedBy: user,
		AddedAt:     time.Now(),
	}
}

func (t Track) Pending() bool  { return t.Status == TrackPending }
func (t Track) Resolved() bool { return t.Status == TrackResolved }
func (t Track) Failed() bool   { return t.Status == TrackFailed }

// Display renders "<title> by <channel>" once probed, the raw reference before.
func (t Track) Display() string {
	if t.Title == "" {
		return t.Input.Reference()
	}
	channel := t.Channel
	if channel == "" {
		channel = "Unknown"
	}
	return fmt.Sprintf("%s by %s", t.Title, channel)
}

type SerializedTrack struct {
	ID          TrackID     `json:"id"`
	Kind        SourceKind  `json:"kind"`
	Reference   string      `json:"reference"`
	Status      TrackStatus `json:"status"`
	Display     string      `json:"display"`
	Title       string      `json:"title,omitempty"`
	Channel     string      `json:"channel,omitempty"`
	Error       string      `json:"error,omitempty"`
	SubmittedBy UserID      `json:"submitted_by"`
	AddedAt     time.Time   `json:"added_at"`
}

func (t Track) Serialize() SerializedTrack {
	return SerializedTrack{
		ID:          t.ID,
		Kind:        t.Input.Kind(),
		Reference:   t.Input.Reference(),
		Status:      t.Status,
		Display:     t.Display(),
		Title:       t.Title,
		Channel:     t.Channel,
		Error:       t.Error,
		SubmittedBy: t.SubmittedBy,
		AddedAt:     t.AddedAt,
	}
}

type SerializedQueue struct {
	ID     QueueID           `json:"id"`
	RoomID RoomID            `json:"room_id"`
	Tracks []SerializedTrack `json:"tracks"`
}
