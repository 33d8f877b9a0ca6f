package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/bus"
	"vinyl/pkg/cache"
	"vinyl/pkg/circuitbreaker"
	"vinyl/pkg/retry"
	"vinyl/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type IngestConfig struct {
	Workers int
	Retry   retry.Config
	Breaker circuitbreaker.Config
}

type ingestJob struct {
	trackID domain.TrackID
	input   domain.Input
}

// IngestStats is a snapshot of pipeline counters.
type IngestStats struct {
	Backlog       int    `json:"backlog"`
	CacheEntries  int    `json:"cache_entries"`
	CacheHits     uint64 `json:"cache_hits"`
	ResolveCalls  uint64 `json:"resolve_calls"`
	ResolveErrors uint64 `json:"resolve_errors"`
	BreakerState  string `json:"breaker_state"`
}

// IngestService resolves submitted inputs into playable sources. Work runs on
// a fixed worker pool fed by an unbounded job channel, so submission never
// blocks the caller. Outcomes are published as ingestion events.
type IngestService struct {
	parsers  []ports.Parser
	prober   ports.Prober
	resolver ports.Resolver

	// sources is keyed by fingerprint and never evicted.
	sources  *cache.Cache[string, domain.Source]
	probes   singleflight.Group
	resolves singleflight.Group
	retryCfg retry.Config
	breaker  *circuitbreaker.CircuitBreaker

	jobs    *bus.Channel[ingestJob]
	workers int
	emitter bus.Emitter[domain.Event]
	logger  *zap.SugaredLogger

	resolveCalls  atomic.Uint64
	resolveErrors atomic.Uint64

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewIngestService(
	parsers []ports.Parser,
	prober ports.Prober,
	resolver ports.Resolver,
	emitter bus.Emitter[domain.Event],
	cfg IngestConfig,
	logger *zap.SugaredLogger,
) *IngestService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	breakerCfg := cfg.Breaker
	breakerCfg.IsFailure = func(err error) bool { return !isPermanentIngestError(err) }
	breaker := circuitbreaker.New(breakerCfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("resolver circuit breaker state changed", "from", from.String(), "to", to.String())
	})

	return &IngestService{
		parsers:  parsers,
		prober:   prober,
		resolver: resolver,
		sources:  cache.New[string, domain.Source](0),
		retryCfg: cfg.Retry,
		breaker:  breaker,
		jobs:     bus.NewChannel[ingestJob](),
		workers:  cfg.Workers,
		emitter:  emitter,
		logger:   logger,
	}
}

// Parse runs the reference through the parser list in order; the first
// parser that accepts it wins.
func (s *IngestService) Parse(reference string) (domain.Input, error) {
	reference = strings.TrimSpace(reference)
	for _, p := range s.parsers {
		if input, ok := p.Parse(reference); ok {
			return input, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", reference, domain.ErrUnsupportedReference)
}

// Submit queues a pending track for resolution and returns immediately.
func (s *IngestService) Submit(track domain.Track) {
	s.jobs.Send(ingestJob{trackID: track.ID, input: track.Input})
}

// Start launches the worker pool. In-flight jobs run until they finish or
// Stop is called.
func (s *IngestService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker(ctx, i)
		}
		s.logger.Infow("ingest workers started", "workers", s.workers)
	})
}

// Stop cancels in-flight work and waits for the workers to exit. Queued jobs
// that never started are discarded.
func (s *IngestService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *IngestService) Stats() IngestStats {
	cs := s.sources.Stats()
	return IngestStats{
		Backlog:       s.jobs.Len(),
		CacheEntries:  cs.Size,
		CacheHits:     cs.Hits,
		ResolveCalls:  s.resolveCalls.Load(),
		ResolveErrors: s.resolveErrors.Load(),
		BreakerState:  s.breaker.State().String(),
	}
}

func (s *IngestService) worker(ctx context.Context, n int) {
	defer s.wg.Done()
	for {
		job, err := s.jobs.Receive(ctx)
		if err != nil {
			s.logger.Debugw("ingest worker stopped", "worker", n)
			return
		}
		s.process(ctx, job)
	}
}

func (s *IngestService) process(ctx context.Context, job ingestJob) {
	ctx, span := tracing.TraceIngestion(ctx, "job", string(job.trackID), job.input.Reference())
	defer span.End()

	log := s.logger.With("track_id", job.trackID, "reference", job.input.Reference())

	meta, err := s.probe(ctx, job.input)
	if err != nil {
		tracing.RecordError(ctx, err)
		log.Warnw("probe failed", "error", err)
		s.emitter.Emit(domain.IngestionFailed{TrackID: job.trackID, Reason: err.Error()})
		return
	}

	fp := meta.Fingerprint()
	tracing.AddSpanAttributes(ctx, tracing.FingerprintKey.String(fp))
	s.emitter.Emit(domain.IngestionProbed{
		TrackID:     job.trackID,
		Fingerprint: fp,
		Title:       meta.Title,
		Channel:     meta.Channel,
	})

	if src, ok := s.sources.Get(fp); ok {
		tracing.AddSpanAttributes(ctx, tracing.CacheHitKey.Bool(true))
		log.Debugw("ingest cache hit", "fingerprint", fp)
		s.emitter.Emit(domain.IngestionResolved{Fingerprint: fp, Source: src})
		return
	}
	tracing.AddSpanAttributes(ctx, tracing.CacheHitKey.Bool(false))

	v, err, shared := s.resolves.Do(fp, func() (interface{}, error) {
		// A resolution may have completed between the cache miss and here.
		if src, ok := s.sources.Get(fp); ok {
			return src, nil
		}
		src, err := s.resolve(ctx, job.input)
		if err != nil {
			return nil, err
		}
		s.sources.Set(fp, src)
		return src, nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		log.Warnw("resolution failed", "fingerprint", fp, "shared", shared, "error", err)
		s.emitter.Emit(domain.IngestionFailed{TrackID: job.trackID, Fingerprint: fp, Reason: err.Error()})
		return
	}

	src, ok := v.(domain.Source)
	if !ok {
		s.emitter.Emit(domain.IngestionFailed{TrackID: job.trackID, Fingerprint: fp, Reason: "unexpected resolution result"})
		return
	}
	log.Infow("track resolved", "fingerprint", fp, "shared", shared)
	s.emitter.Emit(domain.IngestionResolved{Fingerprint: fp, Source: src})
}

func (s *IngestService) probe(ctx context.Context, input domain.Input) (domain.Metadata, error) {
	v, err, _ := s.probes.Do(input.Reference(), func() (interface{}, error) {
		ctx, span := tracing.TraceIngestion(ctx, "probe", "", input.Reference())
		defer span.End()

		meta, err := s.prober.Probe(ctx, input)
		if err != nil {
			tracing.RecordError(ctx, err)
			return nil, err
		}
		if meta.Fingerprint() == "" {
			return nil, fmt.Errorf("probe %s: %w", input.Reference(), domain.ErrMissingFields)
		}
		return meta, nil
	})
	if err != nil {
		return domain.Metadata{}, err
	}
	return v.(domain.Metadata), nil
}

func (s *IngestService) resolve(ctx context.Context, input domain.Input) (domain.Source, error) {
	ctx, span := tracing.TraceIngestion(ctx, "resolve", "", input.Reference())
	defer span.End()

	src, err := retry.DoWithResult(ctx, s.retryCfg, func(ctx context.Context) (domain.Source, error) {
		s.resolveCalls.Add(1)
		src, err := circuitbreaker.Execute(ctx, s.breaker, func(ctx context.Context) (domain.Source, error) {
			return s.resolver.Resolve(ctx, input)
		})
		if err == nil && src.URL == "" {
			err = fmt.Errorf("resolve %s: %w", input.Reference(), domain.ErrMissingFields)
		}
		if err != nil && (isPermanentIngestError(err) || errors.Is(err, circuitbreaker.ErrOpen)) {
			return domain.Source{}, retry.Permanent(err)
		}
		return src, err
	})
	if err != nil {
		s.resolveErrors.Add(1)
		tracing.RecordError(ctx, err)
		return domain.Source{}, err
	}
	return src, nil
}

func isPermanentIngestError(err error) bool {
	return errors.Is(err, domain.ErrPlaylistReference) ||
		errors.Is(err, domain.ErrMissingFields) ||
		errors.Is(err, domain.ErrUnsupportedReference)
}
