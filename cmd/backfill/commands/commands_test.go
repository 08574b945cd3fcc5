package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/backfill/am"
	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/crates/cratetest"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
)

var (
	testRootOnce sync.Once
	testRoot     *cobra.Command
)

// root returns a root command carrying the global flags. It is built once
// since cobra caches inherited flags on the package-level subcommands.
func root() *cobra.Command {
	testRootOnce.Do(func() {
		testRoot = &cobra.Command{Use: "backfill", SilenceUsage: true, SilenceErrors: true}
		testRoot.PersistentFlags().Bool("json", false, "")
		testRoot.PersistentFlags().String("config", "", "")
		testRoot.AddCommand(RunCmd, CompileCmd, ApplyCmd, StatusCmd, TasksCmd, AmCmd, VersionCmd)
	})
	return testRoot
}

// execute runs args and returns stdout. Flag values are reset afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	am.Reset()

	r := root()
	var out bytes.Buffer
	r.SetOut(&out)
	r.SetErr(io.Discard)
	r.SetArgs(args)
	err := r.ExecuteContext(context.Background())

	resetFlags(r)
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type registry struct {
	dir    string
	root   string
	config string
}

// newRegistry seeds a sqlite registry with three editionless versions:
// alpha declares an edition, beta declares none and gamma has no artifact.
func newRegistry(t *testing.T) *registry {
	dir := t.TempDir()
	r := &registry{dir: dir, root: filepath.Join(dir, "mirror"), config: filepath.Join(dir, "am.toml")}
	dbPath := filepath.Join(dir, "registry.db")

	s, err := store.Open(context.Background(), am.DatabaseConfig{Driver: am.DriverSQLite, URL: dbPath},
		zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	for _, q := range []string{
		`INSERT INTO crates (id, name) VALUES (1, 'alpha'), (2, 'beta'), (3, 'gamma')`,
		`INSERT INTO versions (id, crate_id, num) VALUES (1, 1, '1.0.0'), (2, 2, '2.0.0'), (3, 3, '3.0.0')`,
	} {
		_, err := s.Exec(context.Background(), store.Query{SQL: q})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	cratetest.Write(t, crates.ArtifactPath(r.root, "alpha", "1.0.0"),
		cratetest.Files("alpha", "1.0.0", cratetest.Manifest("alpha", "1.0.0", "edition = \"2021\"\n"), nil))
	cratetest.Write(t, crates.ArtifactPath(r.root, "beta", "2.0.0"),
		cratetest.Files("beta", "2.0.0", cratetest.Manifest("beta", "2.0.0", ""), nil))

	cfg := "[database]\ndriver = \"sqlite\"\nurl = " + quote(dbPath) +
		"\n\n[journal]\ndir = " + quote(dir) +
		"\n\n[pool]\nworkers = 2\n"
	require.NoError(t, os.WriteFile(r.config, []byte(cfg), 0644))
	return r
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (r *registry) edition(t *testing.T) *string {
	t.Helper()
	s, err := store.Open(context.Background(),
		am.DatabaseConfig{Driver: am.DriverSQLite, URL: filepath.Join(r.dir, "registry.db")}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer s.Close()
	var v *string
	require.NoError(t, s.Query(context.Background(), store.Query{SQL: "SELECT edition FROM versions WHERE id = 1"},
		func(row store.Row) error { return row.Scan(&v) }))
	return v
}

// lastEvent decodes newline-delimited progress events and returns the last.
func lastEvent(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var last map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var ev pipeline.ProgressEvent
		require.NoError(t, dec.Decode(&ev))
		last = map[string]interface{}{"type": ev.Type, "data": ev.Data}
	}
	require.NotNil(t, last, "no events in %q", out)
	return last
}

func TestTasksCommand_JSON(t *testing.T) {
	out, err := execute(t, "tasks", "--json")
	require.NoError(t, err)

	var infos []TaskInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"crate-size", "edition", "features", "lib-bin", "links", "version-metadata"}, names)
}

func TestTasksCommand_Text(t *testing.T) {
	out, err := execute(t, "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "edition")
	assert.Contains(t, out, "lib-bin")
}

func TestRunCommand_UnknownTask(t *testing.T) {
	_, err := execute(t, "run", "editions", "/nowhere")
	require.Error(t, err)
	assert.Contains(t, strings.Join(errors.GetAllHints(err), " "), "edition")
}

func TestRunCommand_RequiresArtifactRoot(t *testing.T) {
	r := newRegistry(t)
	_, err := execute(t, "run", "edition", "--config", r.config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no artifact root")
}

func TestRunCommand_BadBefore(t *testing.T) {
	r := newRegistry(t)
	_, err := execute(t, "run", "features", r.root, "--config", r.config, "--before", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --before")
}

func TestCommands_RunStatusCompileApply(t *testing.T) {
	r := newRegistry(t)

	out, err := execute(t, "run", "edition", r.root, "--config", r.config, "--json")
	require.NoError(t, err)
	ev := lastEvent(t, out)
	assert.Equal(t, "complete", ev["type"])
	summary := ev["data"].(map[string]interface{})["summary"].(map[string]interface{})
	assert.EqualValues(t, 3, summary["selected"])
	counts := summary["counts"].(map[string]interface{})
	assert.EqualValues(t, 2, counts["journaled"])
	assert.EqualValues(t, 1, counts["not_found"])
	assert.FileExists(t, filepath.Join(r.dir, "edition.csv"))
	assert.FileExists(t, filepath.Join(r.dir, "edition.sql"))

	// the store is untouched until apply
	assert.Nil(t, r.edition(t))

	out, err = execute(t, "status", "edition", "--config", r.config, "--format", "json")
	require.NoError(t, err)
	var status JournalStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Exists)
	assert.Equal(t, 2, status.Resolved)
	assert.Equal(t, 1, status.Absent)
	assert.Equal(t, 1, status.Updates)
	assert.Equal(t, 1, status.Batches)

	out, err = execute(t, "status", "edition", "--config", r.config)
	require.NoError(t, err)
	assert.Contains(t, out, "edition.csv")

	sqlFile := filepath.Join(r.dir, "out", "edition.sql")
	out, err = execute(t, "compile", "edition", "--config", r.config, "--sql", sqlFile, "--format", "json")
	require.NoError(t, err)
	var compiled CompileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &compiled))
	assert.Equal(t, "sqlite", compiled.Dialect)
	assert.Equal(t, 1, compiled.Updates)
	data, err := os.ReadFile(sqlFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "'2021'")

	out, err = execute(t, "apply", "edition", "--config", r.config, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "'2021'")
	assert.Nil(t, r.edition(t))

	out, err = execute(t, "apply", "edition", "--config", r.config, "--format", "json")
	require.NoError(t, err)
	var applied ApplyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &applied))
	assert.EqualValues(t, 1, applied.Affected)
	require.NotNil(t, r.edition(t))
	assert.Equal(t, "2021", *r.edition(t))

	out, err = execute(t, "apply", "edition", "--config", r.config, "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &applied))
	assert.EqualValues(t, 0, applied.Affected)
}

func TestRunCommand_Resumes(t *testing.T) {
	r := newRegistry(t)

	_, err := execute(t, "run", "edition", r.root, "--config", r.config, "--json")
	require.NoError(t, err)

	// gamma is still missing its artifact; only it is selected again
	cratetest.Write(t, crates.ArtifactPath(r.root, "gamma", "3.0.0"),
		cratetest.Files("gamma", "3.0.0", cratetest.Manifest("gamma", "3.0.0", "edition = \"2018\"\n"), nil))
	out, err := execute(t, "run", "edition", r.root, "--config", r.config, "--json")
	require.NoError(t, err)
	summary := lastEvent(t, out)["data"].(map[string]interface{})["summary"].(map[string]interface{})
	assert.EqualValues(t, 2, summary["already_resolved"])
	assert.EqualValues(t, 1, summary["pending"])
	assert.EqualValues(t, 2, summary["updates"])
}

func TestAmShow_RedactsURL(t *testing.T) {
	r := newRegistry(t)
	out, err := execute(t, "am", "show", "--config", r.config, "--format", "json")
	require.NoError(t, err)

	var cfg am.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, am.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "<redacted>", cfg.Database.URL)
	assert.Equal(t, 2, cfg.Pool.Workers)

	out, err = execute(t, "am", "show", "--config", r.config)
	require.NoError(t, err)
	assert.Contains(t, out, "[pool]")
	assert.NotContains(t, out, "registry.db")
}

func TestAmGet(t *testing.T) {
	r := newRegistry(t)
	out, err := execute(t, "am", "get", "pool.workers", "--config", r.config)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	_, err = execute(t, "am", "get", "database.url", "--config", r.config)
	assert.Error(t, err)

	_, err = execute(t, "am", "get", "no.such.key", "--config", r.config)
	assert.Error(t, err)
}

func TestAmInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")

	_, err := execute(t, "am", "init", path)
	require.NoError(t, err)
	cfg, err := am.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, am.DefaultConfig().Database.Driver, cfg.Database.Driver)

	_, err = execute(t, "am", "init", path)
	require.Error(t, err)

	_, err = execute(t, "am", "init", path, "--force")
	require.NoError(t, err)
	assert.FileExists(t, path+".back1")
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info["platform"])
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, errors.WithHint(errors.New("journal locked"), "another run holds the lock"))
	assert.Equal(t, "Error: journal locked\nHint: another run holds the lock\n", buf.String())
}
