package commands

import (
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/backfill/display"
	"github.com/teranos/backfill/tasks"
)

// TasksCmd lists the registered tasks
var TasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the available tasks",
	RunE:  runTasks,
}

func init() {
	TasksCmd.Flags().String("format", "text", "Output format: text, json, yaml")
}

// TaskInfo describes one task.
type TaskInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Columns     []string `json:"columns" yaml:"columns"`
	ChunkSize   int      `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
}

func runTasks(cmd *cobra.Command, args []string) error {
	format, err := display.FormatFor(cmd)
	if err != nil {
		return err
	}
	var infos []TaskInfo
	for _, t := range tasks.All() {
		infos = append(infos, TaskInfo{
			Name:        t.Name,
			Description: t.Description,
			Columns:     t.Shape().Names(),
			ChunkSize:   t.ChunkSize,
		})
	}
	return display.Output(cmd.OutOrStdout(), format, infos, func(w io.Writer) error {
		items := make([]pterm.BulletListItem, 0, len(infos))
		for _, info := range infos {
			items = append(items, pterm.BulletListItem{Level: 0, Text: info.Name + "  " + info.Description})
		}
		s, err := pterm.DefaultBulletList.WithItems(items).Srender()
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, s)
		return err
	})
}
