package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/backfill/display"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/tasks"
)

// StatusCmd summarizes a task's journal
var StatusCmd = &cobra.Command{
	Use:   "status <task>",
	Short: "Summarize a task's journal",
	Long: `Count the rows of a task's journal and the updates it compiles to.
The store is not contacted.

Examples:
  backfill status edition
  backfill status lib-bin --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	addJournalFlags(StatusCmd)
	StatusCmd.Flags().String("format", "text", "Output format: text, json, yaml")
}

// JournalStatus is the result of the status command.
type JournalStatus struct {
	Task      string `json:"task" yaml:"task"`
	Journal   string `json:"journal" yaml:"journal"`
	Exists    bool   `json:"exists" yaml:"exists"`
	Size      int64  `json:"size_bytes" yaml:"size_bytes"`
	Rows      int    `json:"rows" yaml:"rows"`
	Resolved  int    `json:"resolved" yaml:"resolved"`
	Unchanged int    `json:"unchanged" yaml:"unchanged"`
	Absent    int    `json:"absent" yaml:"absent"`
	Updates   int    `json:"updates" yaml:"updates"`
	Batches   int    `json:"batches" yaml:"batches"`
	ChunkSize int    `json:"chunk_size" yaml:"chunk_size"`
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	path := journalPath(cmd, cfg, task)
	status := JournalStatus{Task: task.Name, Journal: path, ChunkSize: chunkSize(cfg, task)}
	if fi, err := os.Stat(path); err == nil {
		status.Exists = true
		status.Size = fi.Size()
	}

	st, err := journal.Summarize(path, task.Shape())
	if err != nil {
		return err
	}
	status.Rows = st.Rows
	status.Resolved = st.Resolved
	status.Unchanged = st.Unchanged
	status.Absent = st.Absent

	res, err := pipeline.LoadBatches(task, path, status.ChunkSize)
	if err != nil {
		return err
	}
	status.Updates = res.Updates
	status.Batches = len(res.Batches)

	return display.Output(cmd.OutOrStdout(), format, status, func(w io.Writer) error {
		return printStatus(w, status)
	})
}

func printStatus(w io.Writer, s JournalStatus) error {
	if !s.Exists {
		_, err := fmt.Fprintf(w, "%s: no journal at %s\n", s.Task, s.Journal)
		return err
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Task", "Journal", "Size", "Resolved", "Unchanged", "Absent", "Updates", "Batches"},
		{
			s.Task,
			s.Journal,
			humanize.IBytes(uint64(s.Size)),
			humanize.Comma(int64(s.Resolved)),
			humanize.Comma(int64(s.Unchanged)),
			humanize.Comma(int64(s.Absent)),
			humanize.Comma(int64(s.Updates)),
			fmt.Sprintf("%d x %d", s.Batches, s.ChunkSize),
		},
	}).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

// printSummary lists the files a run produced. The counts were already
// printed by the reporter.
func printSummary(w io.Writer, s *pipeline.Summary) error {
	if _, err := fmt.Fprintf(w, "Journal: %s\n", s.Journal); err != nil {
		return err
	}
	if s.SQLFile == "" {
		return nil
	}
	_, err := fmt.Fprintf(w, "SQL:     %s\n", s.SQLFile)
	return err
}
