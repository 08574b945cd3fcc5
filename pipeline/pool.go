package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/logger"
)

// PoolConfig configures a WorkerPool.
type PoolConfig struct {
	// Workers defaults to the logical CPU count.
	Workers int
	// Rate caps artifact inspections per second; 0 means unlimited.
	Rate float64

	ArtifactRoot string
	Inspector    crates.Inspector
}

// WorkerPool inspects candidates in parallel. Every worker pulls one
// candidate at a time from a shared channel; item failures are logged and
// dropped so the candidate is selected again on the next run.
type WorkerPool struct {
	workers   int
	limiter   *rate.Limiter
	root      string
	inspector crates.Inspector
	stats     *Stats
	reporter  Reporter
	logger    *zap.SugaredLogger
}

// NewWorkerPool creates a pool. stats and reporter may be nil.
func NewWorkerPool(cfg PoolConfig, stats *Stats, reporter Reporter, log *zap.SugaredLogger) *WorkerPool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		burst := int(cfg.Rate)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	if stats == nil {
		stats = &Stats{}
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	if log == nil {
		log = logger.Logger
	}
	return &WorkerPool{
		workers:   workers,
		limiter:   limiter,
		root:      cfg.ArtifactRoot,
		inspector: cfg.Inspector,
		stats:     stats,
		reporter:  reporter,
		logger:    log.Named("pool"),
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Process runs transform over candidates and sends every derived entry to
// out, closing out when all workers have finished. It returns only context
// errors; item failures are counted and logged.
func (wp *WorkerPool) Process(ctx context.Context, candidates []Candidate, transform Transform, out chan<- journal.Entry) error {
	defer close(out)

	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.logger.Warnw("Memory pressure warning", "warning", warning, "workers", wp.workers)
	}

	wp.logger.Debugw("Starting workers", "workers", wp.workers, logger.FieldTotal, len(candidates))

	work := make(chan Candidate)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for _, c := range candidates {
			select {
			case work <- c:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < wp.workers; i++ {
		id := i
		g.Go(func() error {
			return wp.worker(gctx, id, work, transform, out)
		})
	}
	return g.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int, work <-chan Candidate, transform Transform, out chan<- journal.Entry) error {
	log := wp.logger.With(logger.FieldWorker, id)
	for c := range work {
		if wp.limiter != nil {
			if err := wp.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		item := Item{Candidate: c, Artifact: crates.ArtifactPath(wp.root, c.Name, c.Version)}
		entry, err := transform(ctx, wp.inspector, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			wp.skip(log, item, err)
			continue
		}

		select {
		case out <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
		outcome := wp.stats.recordEntry(entry)
		wp.reporter.Advance(outcome)
	}
	return nil
}

func (wp *WorkerPool) skip(log *zap.SugaredLogger, item Item, err error) {
	fields := []interface{}{
		logger.FieldRecordID, item.RecordID,
		logger.FieldCrate, item.Name,
		logger.FieldVersion, item.Version,
		logger.FieldPath, item.Artifact,
		logger.FieldError, err.Error(),
	}
	if errors.IsItemError(err) {
		log.Warnw("Skipping candidate", fields...)
	} else {
		log.Errorw("Skipping candidate after unexpected error", fields...)
	}
	wp.reporter.Advance(wp.stats.recordSkip(err))
}
