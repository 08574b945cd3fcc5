package commands

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/backfill/display"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/logger"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
	"github.com/teranos/backfill/tasks"
)

// RunCmd inspects artifacts for one task and compiles its journal
var RunCmd = &cobra.Command{
	Use:   "run <task> [artifact-root]",
	Short: "Inspect artifacts for a task and compile its journal",
	Long: `Select the versions a task still has to fill, inspect their .crate files
in parallel and append every result to the task's journal. When all
candidates are processed the journal is compiled into <task>.sql.

An interrupted run (Ctrl-C, SIGTERM) keeps everything journaled so far;
running the same command again resumes with the remaining versions.

Examples:
  backfill run edition /srv/crates
  backfill run features /srv/crates --before 2024-01-01T00:00:00Z
  backfill run crate-size --workers 16 --rate 200 --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

func init() {
	addStoreFlags(RunCmd)
	addJournalFlags(RunCmd)
	RunCmd.Flags().String("sql", "", "Compiled SQL file (default <journal-dir>/<task>.sql)")
	RunCmd.Flags().String("dialect", "", "Dialect of the compiled SQL (default: store driver)")
	RunCmd.Flags().Int("workers", 0, "Parallel inspections (default: one per logical CPU)")
	RunCmd.Flags().Float64("rate", 0, "Maximum inspections per second (0 = unlimited)")
	RunCmd.Flags().Int64("max-size", 0, "Skip artifacts larger than this many bytes (0 = unlimited)")
	RunCmd.Flags().Bool("sync", false, "fsync the journal after every record")
	RunCmd.Flags().String("before", "", "Only versions created before this RFC3339 time (tasks that support it)")
}

func runRun(cmd *cobra.Command, args []string) error {
	task, err := tasks.Lookup(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	root := cfg.Artifacts.Root
	if len(args) > 1 {
		root = args[1]
	}
	if root == "" {
		return errors.WithHint(errors.New("no artifact root"),
			"pass it as the second argument or set artifacts.root")
	}

	var sel pipeline.SelectOptions
	if s, _ := cmd.Flags().GetString("before"); s != "" {
		before, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return errors.WithHint(errors.Wrap(err, "invalid --before"), "use RFC3339, e.g. 2024-01-01T00:00:00Z")
		}
		sel.Before = before
	}

	out, err := outputDialect(cfg)
	if err != nil {
		return err
	}

	format, err := display.FormatFor(cmd)
	if err != nil {
		return err
	}
	var reporter pipeline.Reporter = pipeline.NewCLIReporter()
	if format == display.FormatJSON {
		reporter = pipeline.NewJSONReporter(cmd.OutOrStdout(), 0)
	}

	log := logger.Named("run")
	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	engine := pipeline.NewEngine(pipeline.Config{
		ArtifactRoot: root,
		JournalPath:  journalPath(cmd, cfg, task),
		SQLPath:      sqlPath(cmd, cfg, task),
		ChunkSize:    cfg.Batch.ChunkSize,
		Dialect:      out,
		Workers:      cfg.Pool.Workers,
		Rate:         cfg.Pool.Rate,
		MaxSize:      cfg.Artifacts.MaxSize,
		Sync:         cfg.Journal.Sync,
		Select:       sel,
	}, reporter, log)

	summary, err := engine.Run(ctx, st, task)
	if err != nil {
		return err
	}
	if format == display.FormatJSON {
		// JSONReporter already emitted the summary as its "complete" event
		return nil
	}
	return display.Output(cmd.OutOrStdout(), format, summary, func(w io.Writer) error {
		return printSummary(w, summary)
	})
}
