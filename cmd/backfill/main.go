package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/backfill/cmd/backfill/commands"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/logger"
)

var rootCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Checkpointed parallel backfills for the crates registry",
	Long: `backfill — fill missing version metadata from .crate artifacts.

Each task selects versions missing a field, inspects their .crate files in
parallel and records every result in an append-only journal (<task>.csv).
Interrupted runs resume where they stopped: journaled versions are never
inspected again. The journal is compiled into batched, guarded update
statements (<task>.sql) that can be reviewed and applied.

Available commands:
  run      - Inspect artifacts for a task and compile its journal
  compile  - Recompile a journal into SQL without touching the store
  apply    - Execute a compiled journal against the store
  status   - Summarize a task's journal
  tasks    - List the available tasks
  am       - Manage configuration ("I am")
  version  - Show build information

Examples:
  backfill run edition /srv/crates           # inspect and write edition.sql
  backfill status edition --format json      # journal counts
  backfill apply edition --dry-run           # show what would be executed`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if !cmd.Flags().Changed("log-json") {
			jsonLogs = commands.ConfiguredJSONLogs()
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		logger.Logger.Debugw("Logger initialized", "verbosity", logger.LevelName(verbosity), "json", jsonLogs)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().Bool("json", false, "Write command output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file only")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.CompileCmd)
	rootCmd.AddCommand(commands.ApplyCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.TasksCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Cleanup()
	if err != nil {
		commands.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
