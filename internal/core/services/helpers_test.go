package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/bus"
	"vinyl/pkg/circuitbreaker"
	"vinyl/pkg/retry"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) Handle(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) named(name string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

// runBus registers handlers in order and dispatches until the test ends.
func runBus(t *testing.T, b *bus.Bus[domain.Event], handlers ...bus.Handler[domain.Event]) {
	t.Helper()
	for _, h := range handlers {
		require.NoError(t, b.Register(h))
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

type prefixParser struct {
	name   string
	prefix string
}

func (p prefixParser) Name() string { return p.name }

func (p prefixParser) Parse(ref string) (domain.Input, bool) {
	if !strings.HasPrefix(ref, p.prefix) {
		return nil, false
	}
	return domain.YouTubeVideo{VideoID: strings.TrimPrefix(ref, p.prefix), URL: ref}, true
}

// fakeProber maps references to titles; unknown references fail.
type fakeProber struct {
	titles map[string]string
	calls  atomic.Int32
}

func (p *fakeProber) Probe(_ context.Context, input domain.Input) (domain.Metadata, error) {
	p.calls.Add(1)
	title, ok := p.titles[input.Reference()]
	if !ok {
		return domain.Metadata{}, errors.New("video unavailable")
	}
	return domain.Metadata{Title: title, Channel: "Test Channel"}, nil
}

type fakeResolver struct {
	calls   atomic.Int32
	gate    chan struct{}
	err     error
	failFor int32
}

func (r *fakeResolver) Resolve(ctx context.Context, input domain.Input) (domain.Source, error) {
	n := r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return domain.Source{}, ctx.Err()
		}
	}
	if r.err != nil && (r.failFor == 0 || n <= r.failFor) {
		return domain.Source{}, r.err
	}
	return domain.Source{URL: "https://audio.example/" + input.Reference()}, nil
}

// fakeDecoder plays the same PCM payload for every source. With readSize
// set, each Read returns at most that many bytes.
type fakeDecoder struct {
	header   []byte
	pcm      []byte
	frame    int
	readSize int
	decoded  atomic.Int32
	err      error
}

func (d *fakeDecoder) Decode(_ context.Context, _ domain.Source) (io.ReadCloser, error) {
	d.decoded.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	var r io.Reader = bytes.NewReader(d.pcm)
	if d.readSize > 0 {
		r = &shortReader{r: r, max: d.readSize}
	}
	return io.NopCloser(r), nil
}

func (d *fakeDecoder) StreamHeader() []byte { return d.header }
func (d *fakeDecoder) BytesPerSecond() int  { return 0 }

func (d *fakeDecoder) FrameSize() int {
	if d.frame == 0 {
		return 1
	}
	return d.frame
}

type shortReader struct {
	r   io.Reader
	max int
}

func (s *shortReader) Read(p []byte) (int, error) {
	if len(p) > s.max {
		p = p[:s.max]
	}
	return s.r.Read(p)
}

type fakeRepo struct {
	mu        sync.Mutex
	rooms     []*domain.Room
	createErr error
}

func (r *fakeRepo) Create(_ context.Context, room *domain.Room) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *room
	r.rooms = append(r.rooms, &cp)
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.ID == id {
			cp := *room
			return &cp, nil
		}
	}
	return nil, domain.ErrRoomNotFound
}

func (r *fakeRepo) List(_ context.Context) ([]*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Room, len(r.rooms))
	copy(out, r.rooms)
	return out, nil
}

func (r *fakeRepo) Ping(context.Context) error { return nil }

func testIngestConfig(workers int) IngestConfig {
	return IngestConfig{
		Workers: workers,
		Retry: retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
		Breaker: circuitbreaker.DefaultConfig(),
	}
}

func newTestStore(t *testing.T, repo *fakeRepo, prober *fakeProber, resolver *fakeResolver, decoder *fakeDecoder) *Store {
	t.Helper()
	store, err := NewStore(StoreDeps{
		Repo:     repo,
		Parsers:  []ports.Parser{prefixParser{name: "yt", prefix: "yt:"}},
		Prober:   prober,
		Resolver: resolver,
		Decoder:  decoder,
	}, StoreConfig{
		Ingest: testIngestConfig(2),
		Playback: PlaybackConfig{
			ChunkSize:      64,
			ListenerBuffer: 16,
			IdlePoll:       20 * time.Millisecond,
		},
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return store
}
