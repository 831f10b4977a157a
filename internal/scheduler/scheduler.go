package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rickgao/sourcewatch/internal/detect"
	"github.com/rickgao/sourcewatch/internal/model"
)

// SourceRegistry lists registered sources and records poll bookkeeping.
type SourceRegistry interface {
	ListAll(ctx context.Context) ([]model.Source, error)
	MarkChecked(ctx context.Context, id string, ts time.Time) error
	MarkUpdated(ctx context.Context, id string, ts time.Time) error
}

// SnapshotStore reads and appends payload captures.
type SnapshotStore interface {
	GetLatest(ctx context.Context, sourceID string) (*model.Snapshot, error)
	Append(ctx context.Context, sourceID string, payload []byte, capturedAt time.Time) error
}

// Fetcher retrieves the current payload for a source.
type Fetcher interface {
	Fetch(ctx context.Context, src model.Source) (any, error)
}

// Publisher accepts a change event for asynchronous delivery.
type Publisher interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
}

// Config holds scheduler configuration.
type Config struct {
	TickInterval        time.Duration // Global scheduling tick (default: 5m)
	Concurrency         int           // Max sources polled at once (default: 10)
	DefaultPollInterval time.Duration // For sources without their own interval
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:        5 * time.Minute,
		Concurrency:         10,
		DefaultPollInterval: 5 * time.Minute,
	}
}

// Scheduler drives the polling pipeline.
type Scheduler struct {
	cfg       Config
	sources   SourceRegistry
	snapshots SnapshotStore
	fetcher   Fetcher
	publisher Publisher
	logger    *slog.Logger

	// now is the scheduling clock, replaceable in tests.
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config, sources SourceRegistry, snapshots SnapshotStore, fetcher Fetcher, publisher Publisher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		sources:   sources,
		snapshots: snapshots,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("poll scheduler started",
		"tick_interval", s.cfg.TickInterval,
		"concurrency", s.cfg.Concurrency,
	)
	return nil
}

// Stop shuts down the scheduler. In-flight polls are abandoned; every step is
// safely re-attempted on a later tick.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("poll scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main scheduling loop.
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	// Poll immediately on start.
	s.tick()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one full scheduling pass over all registered sources.
func (s *Scheduler) tick() {
	start := s.now()

	sources, err := s.sources.ListAll(s.ctx)
	if err != nil {
		s.logger.Error("failed to list sources", "error", err)
		return
	}
	if len(sources) == 0 {
		s.logger.Debug("no sources registered")
		return
	}

	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	var wg sync.WaitGroup
	var polled, changed, failures atomic.Int64

	for _, src := range sources {
		if !src.HasLocation() {
			s.logger.Warn("skipping source without location", "source_id", src.ID)
			continue
		}
		if !s.due(src) {
			continue
		}

		if err := sem.Acquire(s.ctx, 1); err != nil {
			break // shutting down
		}

		wg.Add(1)
		go func(src model.Source) {
			defer wg.Done()
			defer sem.Release(1)

			polled.Add(1)

			didChange, err := s.pollSource(src)
			if err != nil {
				// Per-source boundary: log and move on, the next tick retries.
				s.logger.Warn("failed to poll source",
					"source_id", src.ID,
					"kind", src.Kind,
					"error", err,
				)
				failures.Add(1)
			} else if didChange {
				changed.Add(1)
			}

			// Last-checked advances even when the poll failed.
			if err := s.sources.MarkChecked(s.ctx, src.ID, s.now()); err != nil {
				s.logger.Error("failed to mark source checked",
					"source_id", src.ID,
					"error", err,
				)
			}
		}(src)
	}

	wg.Wait()

	s.logger.Info("poll cycle complete",
		"sources", len(sources),
		"polled", polled.Load(),
		"changed", changed.Load(),
		"failures", failures.Load(),
		"duration", time.Since(start),
	)
}

// due reports whether a source's polling interval has elapsed.
func (s *Scheduler) due(src model.Source) bool {
	interval := src.PollInterval
	if interval <= 0 {
		interval = s.cfg.DefaultPollInterval
	}
	return s.now().Sub(src.LastChecked) >= interval
}

// pollSource runs the pipeline for one source: fetch, detect, append
// snapshot, publish. The snapshot write happens before the publish, so a
// consumer reading "latest" on receipt of the event always sees the new
// value.
func (s *Scheduler) pollSource(src model.Source) (bool, error) {
	payload, err := s.fetcher.Fetch(s.ctx, src)
	if err != nil {
		return false, err
	}

	latest, err := s.snapshots.GetLatest(s.ctx, src.ID)
	if err != nil {
		return false, err
	}

	var previous any
	if latest != nil {
		previous = latest.Payload
	}

	change, err := detect.Detect(payload, previous)
	if err != nil {
		return false, err
	}
	if change == nil {
		s.logger.Debug("no change detected", "source_id", src.ID)
		return false, nil
	}

	now := s.now()

	serialized, err := detect.Canonical(payload)
	if err != nil {
		return false, err
	}
	if err := s.snapshots.Append(s.ctx, src.ID, serialized, now); err != nil {
		return false, err
	}

	ev := model.ChangeEvent{
		SourceID:   src.ID,
		SourceType: src.SourceType(),
		Timestamp:  now,
		Changes:    *change,
	}
	if err := s.publisher.Publish(s.ctx, ev); err != nil {
		// The snapshot already landed, so the next tick correctly sees no
		// further change; this delivery is lost, an accepted at-least-once
		// gap.
		return true, err
	}

	if err := s.sources.MarkUpdated(s.ctx, src.ID, now); err != nil {
		return true, err
	}

	s.logger.Info("change detected",
		"source_id", src.ID,
		"change_type", change.Type,
	)
	return true, nil
}
