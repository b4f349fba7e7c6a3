package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abduss/sharefiles/internal/blob"
	"github.com/abduss/sharefiles/internal/metadata"
	"github.com/abduss/sharefiles/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval    = time.Minute
	defaultConcurrency = 4
)

type metadataStore interface {
	ListExpiredEntryIDs(ctx context.Context, asOf time.Time) ([]string, error)
	ListFileIDs(ctx context.Context, entryID string) ([]string, error)
	DeleteFile(ctx context.Context, id string) error
	DeleteEntry(ctx context.Context, id string) error
}

type blobStore interface {
	Remove(ctx context.Context, entryID, fileID string) error
	RemoveEntry(ctx context.Context, entryID string) error
}

// Config controls the sweep cadence and what gets removed.
type Config struct {
	Interval    time.Duration
	Concurrency int
	// DeleteEntries also drops entry rows once their files are gone.
	DeleteEntries bool
}

// Result summarizes one sweep.
type Result struct {
	Entries int
	Files   int
	Errors  int
}

// Sweeper reclaims blobs and file rows of expired entries.
type Sweeper struct {
	meta   metadataStore
	blobs  blobStore
	logger *zap.Logger
	cfg    Config
	now    func() time.Time
}

// New builds a sweeper. Zero config values fall back to defaults.
func New(meta metadataStore, blobs blobStore, logger *zap.Logger, cfg Config) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Sweeper{meta: meta, blobs: blobs, logger: logger, cfg: cfg, now: time.Now}
}

// Start sweeps once right away and then on every tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("starting sweeper",
		zap.Duration("interval", s.cfg.Interval),
		zap.Bool("delete_entries", s.cfg.DeleteEntries),
	)

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep processes every entry expired as of now. Failures are logged and
// counted; they never stop the remaining entries and are retried next time.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	metrics.Sweeps.Inc()

	ids, err := s.meta.ListExpiredEntryIDs(ctx, s.now())
	if err != nil {
		metrics.SweepErrors.Inc()
		s.logger.Error("list expired entries", zap.Error(err))
		return Result{Errors: 1}
	}

	var (
		mu  sync.Mutex
		res = Result{Entries: len(ids)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			files, errs := s.sweepEntry(gctx, id)
			mu.Lock()
			res.Files += files
			res.Errors += errs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if res.Files > 0 || res.Errors > 0 {
		s.logger.Info("sweep finished",
			zap.Int("entries", res.Entries),
			zap.Int("files", res.Files),
			zap.Int("errors", res.Errors),
		)
	}
	return res
}

func (s *Sweeper) sweepEntry(ctx context.Context, entryID string) (removed, failed int) {
	log := s.logger.With(zap.String("entry_id", entryID))
	fail := func(msg string, err error, fields ...zap.Field) {
		failed++
		metrics.SweepErrors.Inc()
		log.Warn(msg, append(fields, zap.Error(err))...)
	}

	fileIDs, err := s.meta.ListFileIDs(ctx, entryID)
	if err != nil && !errors.Is(err, metadata.ErrEntryNotFound) {
		fail("list files", err)
		return 0, failed
	}

	for _, fileID := range fileIDs {
		// both removals are attempted regardless of the other's outcome
		blobErr := s.blobs.Remove(ctx, entryID, fileID)
		if blobErr != nil && !errors.Is(blobErr, blob.ErrBlobNotFound) {
			fail("remove blob", blobErr, zap.String("file_id", fileID))
		}
		rowErr := s.meta.DeleteFile(ctx, fileID)
		if rowErr != nil && !errors.Is(rowErr, metadata.ErrFileNotFound) {
			fail("delete file row", rowErr, zap.String("file_id", fileID))
			continue
		}
		removed++
		metrics.SweptFiles.Inc()
	}

	if err := s.blobs.RemoveEntry(ctx, entryID); err != nil {
		fail("remove entry blobs", err)
	}

	if s.cfg.DeleteEntries && failed == 0 {
		if err := s.meta.DeleteEntry(ctx, entryID); err != nil && !errors.Is(err, metadata.ErrEntryNotFound) {
			fail("delete entry row", err)
		}
	}
	return removed, failed
}
