package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/backfill/am"
	"github.com/teranos/backfill/compile"
	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/logger"
	"github.com/teranos/backfill/store"
)

// Config configures an Engine run.
type Config struct {
	ArtifactRoot string
	JournalPath  string
	// SQLPath receives the compiled updates; empty skips writing them.
	SQLPath string
	// ChunkSize of 0 uses the task default, then am.DefaultChunkSize.
	ChunkSize int
	// Dialect of the SQL file; nil uses the store's dialect.
	Dialect dialect.Dialect

	Workers int
	Rate    float64
	MaxSize int64
	Sync    bool

	Select SelectOptions
}

// Summary describes a finished run.
type Summary struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	Task            string        `json:"task" yaml:"task"`
	Selected        int           `json:"selected" yaml:"selected"`
	AlreadyResolved int           `json:"already_resolved" yaml:"already_resolved"`
	Pending         int           `json:"pending" yaml:"pending"`
	Counts          Counts        `json:"counts" yaml:"counts"`
	Journal         string        `json:"journal" yaml:"journal"`
	SQLFile         string        `json:"sql_file,omitempty" yaml:"sql_file,omitempty"`
	Updates         int           `json:"updates" yaml:"updates"`
	Batches         int           `json:"batches" yaml:"batches"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// Describe renders the summary as one human-readable line.
func (s *Summary) Describe() string {
	return fmt.Sprintf("%s candidates, %s already resolved, %s journaled (%s unchanged), %s skipped, %s updates in %s batches",
		humanize.Comma(int64(s.Selected)),
		humanize.Comma(int64(s.AlreadyResolved)),
		humanize.Comma(s.Counts.Journaled),
		humanize.Comma(s.Counts.Unchanged),
		humanize.Comma(s.Counts.Skipped),
		humanize.Comma(int64(s.Updates)),
		humanize.Comma(int64(s.Batches)))
}

// Engine runs tasks.
type Engine struct {
	cfg      Config
	reporter Reporter
	logger   *zap.SugaredLogger
}

// NewEngine creates an engine. reporter and log may be nil.
func NewEngine(cfg Config, reporter Reporter, log *zap.SugaredLogger) *Engine {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if log == nil {
		log = logger.Logger
	}
	return &Engine{cfg: cfg, reporter: reporter, logger: log.Named("engine")}
}

// Run executes task against st and compiles the journal. st is closed once
// candidates are selected, before any artifact is inspected.
func (e *Engine) Run(ctx context.Context, st store.Store, task Task) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logger.WithRunID(logger.WithTask(ctx, task.Name), runID)
	log := logger.FromContext(ctx, e.logger)

	storeOpen := true
	closeStore := func() {
		if storeOpen {
			storeOpen = false
			if err := st.Close(); err != nil {
				log.Warnw("Failed to close store", logger.FieldError, err)
			}
		}
	}
	defer closeStore()

	w, err := journal.OpenWriter(e.cfg.JournalPath, task.Shape(), journal.Options{
		Sync:   e.cfg.Sync,
		Trace:  logger.ShouldLogTrace(logger.Verbosity),
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	writerOpen := true
	defer func() {
		if writerOpen {
			w.Close()
		}
	}()

	resolved, err := journal.ReadResolved(e.cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	candidates, err := SelectCandidates(ctx, st, task, e.cfg.Select)
	if err != nil {
		return nil, errors.WithHint(err, "check database.url and that the store is reachable")
	}
	out := e.cfg.Dialect
	if out == nil {
		out = st.Dialect()
	}
	closeStore()

	pending := Filter(candidates, resolved)
	summary := &Summary{
		RunID:           runID,
		Task:            task.Name,
		Selected:        len(candidates),
		AlreadyResolved: len(candidates) - len(pending),
		Pending:         len(pending),
		Journal:         e.cfg.JournalPath,
		SQLFile:         e.cfg.SQLPath,
	}
	log.Infow("Selected candidates",
		"selected", len(candidates), "resolved", summary.AlreadyResolved, "pending", len(pending))

	stats := &Stats{}
	pool := NewWorkerPool(PoolConfig{
		Workers:      e.cfg.Workers,
		Rate:         e.cfg.Rate,
		ArtifactRoot: e.cfg.ArtifactRoot,
		Inspector:    crates.Inspector{MaxSize: e.cfg.MaxSize},
	}, stats, e.reporter, log)

	e.reporter.Start(task.Name, len(pending))
	entries := make(chan journal.Entry, pool.Workers())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Process(gctx, pending, task.Transform, entries)
	})
	g.Go(func() error {
		return w.Drain(entries)
	})
	runErr := g.Wait()

	writerOpen = false
	closeErr := w.Close()
	summary.Counts = stats.Snapshot()

	if runErr != nil {
		e.reporter.Finish(nil)
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			return summary, errors.WithHint(errors.Wrap(runErr, "run interrupted"),
				fmt.Sprintf("%d records were journaled; run again to resume", w.Written()))
		}
		return summary, runErr
	}
	if closeErr != nil {
		e.reporter.Finish(nil)
		return summary, closeErr
	}

	res, err := CompileJournal(task, e.cfg.JournalPath, e.cfg.SQLPath, e.chunkSize(task), out)
	if err != nil {
		e.reporter.Finish(nil)
		return summary, err
	}
	summary.Updates = res.Updates
	summary.Batches = len(res.Batches)
	summary.Duration = time.Since(start)

	e.reporter.Finish(summary)
	log.Infow("Run complete",
		"journaled", summary.Counts.Journaled,
		"skipped", summary.Counts.Skipped,
		logger.FieldBatches, summary.Batches,
		logger.FieldDuration, summary.Duration.String())
	return summary, nil
}

func (e *Engine) chunkSize(task Task) int {
	return task.ResolveChunkSize(e.cfg.ChunkSize, am.DefaultChunkSize)
}

// CompileResult is the outcome of compiling a journal.
type CompileResult struct {
	Entries int
	Updates int
	Batches []compile.UpdateBatch
}

// LoadBatches reads the task's journal and compiles it into batches.
func LoadBatches(task Task, journalPath string, chunkSize int) (*CompileResult, error) {
	entries, err := journal.ReadAll(journalPath, task.Shape())
	if err != nil {
		return nil, err
	}
	batches, err := compile.Compile(entries, chunkSize, task.CompileOptions())
	if err != nil {
		return nil, err
	}
	res := &CompileResult{Entries: len(entries), Batches: batches}
	for _, b := range batches {
		res.Updates += len(b.Entries)
	}
	return res, nil
}

// CompileJournal compiles the task's journal and, when sqlPath is set,
// writes the rendered updates there. Nothing is written if the journal is
// malformed.
func CompileJournal(task Task, journalPath, sqlPath string, chunkSize int, d dialect.Dialect) (*CompileResult, error) {
	res, err := LoadBatches(task, journalPath, chunkSize)
	if err != nil {
		return nil, err
	}
	if sqlPath != "" {
		if err := compile.WriteSQLFile(sqlPath, d, task.Update, res.Batches); err != nil {
			return nil, errors.MarkIO(err)
		}
	}
	return res, nil
}
