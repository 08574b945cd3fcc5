package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/teranos/backfill/display"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/tasks"
)

// CompileCmd recompiles a journal into SQL
var CompileCmd = &cobra.Command{
	Use:   "compile <task>",
	Short: "Recompile a journal into SQL without touching the store",
	Long: `Compile a task's journal into batched update statements and write them
to <task>.sql. Use it to change the dialect or chunk size of an existing
journal, or to produce SQL after an interrupted run.

Examples:
  backfill compile edition
  backfill compile features --dialect sqlite --chunk-size 500 --sql features.sql`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	addJournalFlags(CompileCmd)
	CompileCmd.Flags().String("sql", "", "Compiled SQL file (default <journal-dir>/<task>.sql)")
	CompileCmd.Flags().String("dialect", "", "Dialect of the compiled SQL (default: batch.dialect, then database.driver)")
	CompileCmd.Flags().String("format", "text", "Output format: text, json, yaml")
}

// CompileOutput is the result of the compile command.
type CompileOutput struct {
	Task    string `json:"task" yaml:"task"`
	Journal string `json:"journal" yaml:"journal"`
	SQLFile string `json:"sql_file" yaml:"sql_file"`
	Dialect string `json:"dialect" yaml:"dialect"`
	Entries int    `json:"entries" yaml:"entries"`
	Updates int    `json:"updates" yaml:"updates"`
	Batches int    `json:"batches" yaml:"batches"`
}

func runCompile(cmd *cobra.Command, args []string) error {
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
	d, err := outputDialect(cfg)
	if err != nil {
		return err
	}

	out := CompileOutput{
		Task:    task.Name,
		Journal: journalPath(cmd, cfg, task),
		SQLFile: sqlPath(cmd, cfg, task),
		Dialect: d.Name(),
	}
	res, err := pipeline.CompileJournal(task, out.Journal, out.SQLFile, chunkSize(cfg, task), d)
	if err != nil {
		return err
	}
	out.Entries = res.Entries
	out.Updates = res.Updates
	out.Batches = len(res.Batches)

	return display.Output(cmd.OutOrStdout(), format, out, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s: %s journal rows, %s updates in %s %s statements -> %s\n",
			out.Task, humanize.Comma(int64(out.Entries)), humanize.Comma(int64(out.Updates)),
			humanize.Comma(int64(out.Batches)), out.Dialect, out.SQLFile)
		return err
	})
}
