package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/teranos/backfill/compile"
	"github.com/teranos/backfill/display"
	"github.com/teranos/backfill/logger"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
	"github.com/teranos/backfill/tasks"
)

// ApplyCmd executes a compiled journal against the store
var ApplyCmd = &cobra.Command{
	Use:   "apply <task>",
	Short: "Execute a compiled journal against the store",
	Long: `Compile a task's journal and execute the update statements against the
store with bound parameters. Every statement is guarded, so applying the
same journal twice changes nothing the second time.

Examples:
  backfill apply edition --dry-run
  backfill apply edition --database-url postgres://registry@db/cargo`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	addStoreFlags(ApplyCmd)
	addJournalFlags(ApplyCmd)
	ApplyCmd.Flags().Bool("dry-run", false, "Print the statements instead of executing them")
	ApplyCmd.Flags().String("format", "text", "Output format: text, json, yaml")
}

// ApplyOutput is the result of the apply command.
type ApplyOutput struct {
	Task     string `json:"task" yaml:"task"`
	Updates  int    `json:"updates" yaml:"updates"`
	Batches  int    `json:"batches" yaml:"batches"`
	Affected int64  `json:"affected" yaml:"affected"`
	DryRun   bool   `json:"dry_run" yaml:"dry_run"`
}

func runApply(cmd *cobra.Command, args []string) error {
	task, err := tasks.Lookup(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := display.FormatFor(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	res, err := pipeline.LoadBatches(task, journalPath(cmd, cfg, task), chunkSize(cfg, task))
	if err != nil {
		return err
	}
	out := ApplyOutput{Task: task.Name, Updates: res.Updates, Batches: len(res.Batches), DryRun: dryRun}

	if dryRun {
		d, err := outputDialect(cfg)
		if err != nil {
			return err
		}
		if format == display.FormatText {
			_, err := fmt.Fprint(cmd.OutOrStdout(), compile.RenderAll(d, task.Update, res.Batches))
			return err
		}
		return display.Output(cmd.OutOrStdout(), format, out, nil)
	}

	log := logger.Named("apply")
	st, err := store.Open(cmd.Context(), cfg.Database, log)
	if err != nil {
		return err
	}
	defer st.Close()

	out.Affected, err = compile.Apply(cmd.Context(), st, task.Update, res.Batches)
	if err != nil {
		return err
	}
	log.Infow("Applied journal", "task", task.Name, "batches", out.Batches, "affected", out.Affected)

	return display.Output(cmd.OutOrStdout(), format, out, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s: %s rows updated by %s statements\n",
			out.Task, humanize.Comma(out.Affected), humanize.Comma(int64(out.Batches)))
		return err
	})
}
