package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teranos/backfill/am"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/pipeline"
)

// flagKeys maps command-line flags onto the configuration keys they override.
var flagKeys = map[string]string{
	"driver":       "database.driver",
	"database-url": "database.url",
	"max-size":     "artifacts.max_size",
	"journal-dir":  "journal.dir",
	"sync":         "journal.sync",
	"chunk-size":   "batch.chunk_size",
	"dialect":      "batch.dialect",
	"workers":      "pool.workers",
	"rate":         "pool.rate",
}

// configViper returns the Viper for --config, or the layered default.
func configViper(cmd *cobra.Command) (*viper.Viper, error) {
	if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
		return am.NewFileViper(f.Value.String())
	}
	return am.GetViper(), nil
}

// loadConfig loads the configuration with the command's flags applied on top.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	v, err := configViper(cmd)
	if err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "bind --%s", name)
			}
		}
	}
	return am.LoadWithViper(v)
}

// ConfiguredJSONLogs reports log.json from the configuration, false when
// it cannot be loaded.
func ConfiguredJSONLogs() bool {
	cfg, err := am.Load()
	if err != nil {
		return false
	}
	return cfg.Log.JSON
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("driver", "", "Store driver: postgres or sqlite")
	cmd.Flags().String("database-url", "", "Store URL (postgres DSN or sqlite path)")
}

func addJournalFlags(cmd *cobra.Command) {
	cmd.Flags().String("journal", "", "Journal file (default <journal-dir>/<task>.csv)")
	cmd.Flags().String("journal-dir", "", "Directory for journals and SQL files")
	cmd.Flags().Int("chunk-size", 0, "Rows per update statement (default: task default, then 1000)")
}

// journalPath resolves --journal, falling back to <journal.dir>/<task>.csv.
func journalPath(cmd *cobra.Command, cfg *am.Config, task pipeline.Task) string {
	if p, _ := cmd.Flags().GetString("journal"); p != "" {
		return p
	}
	return filepath.Join(cfg.Journal.Dir, task.Name+".csv")
}

// sqlPath resolves --sql, falling back to <journal.dir>/<task>.sql.
func sqlPath(cmd *cobra.Command, cfg *am.Config, task pipeline.Task) string {
	if p, _ := cmd.Flags().GetString("sql"); p != "" {
		return p
	}
	return filepath.Join(cfg.Journal.Dir, task.Name+".sql")
}

func chunkSize(cfg *am.Config, task pipeline.Task) int {
	return task.ResolveChunkSize(cfg.Batch.ChunkSize, am.DefaultChunkSize)
}

// outputDialect is batch.dialect, or the store driver's dialect when unset.
func outputDialect(cfg *am.Config) (dialect.Dialect, error) {
	if cfg.Batch.Dialect != "" {
		return dialect.ForName(cfg.Batch.Dialect)
	}
	return dialect.ForName(cfg.Database.Driver)
}

// PrintError writes err and its hints for the operator.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}
