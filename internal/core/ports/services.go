package ports

import (
	"context"
	"io"

	"vinyl/internal/core/domain"
)

// Parser recognizes one source kind. Parse reports false when the reference
// is not of its kind.
type Parser interface {
	Name() string
	Parse(reference string) (domain.Input, bool)
}

// Prober learns the metadata an input's fingerprint is derived from. It must
// be cheaper than Resolve.
type Prober interface {
	Probe(ctx context.Context, input domain.Input) (domain.Metadata, error)
}

// Resolver turns an input into a playable audio source.
type Resolver interface {
	Resolve(ctx context.Context, input domain.Input) (domain.Source, error)
}

// Decoder produces raw PCM for a source. StreamHeader is written to every
// listener before the first PCM chunk.
type Decoder interface {
	Decode(ctx context.Context, src domain.Source) (io.ReadCloser, error)
	StreamHeader() []byte
	// BytesPerSecond is the real-time PCM rate used to pace playback.
	BytesPerSecond() int
	// FrameSize is the PCM block align. Every chunk sent to listeners is a
	// whole number of frames.
	FrameSize() int
}

// Listener is one live connection's view of a room broadcast.
type Listener interface {
	io.ReadCloser
	ID() domain.ListenerID
	RoomID() domain.RoomID
	// Dropped counts chunks skipped because the reader fell behind.
	Dropped() uint64
}
