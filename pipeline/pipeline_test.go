package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/backfill/am"
	"github.com/teranos/backfill/compile"
	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/crates/cratetest"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/logger"
	"github.com/teranos/backfill/store"
)

// inspections records which record ids a transform was invoked for.
type inspections struct {
	mu  sync.Mutex
	ids []int64
}

func (in *inspections) add(id int64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ids = append(in.ids, id)
}

func (in *inspections) sorted() []int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := append([]int64(nil), in.ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func editionTask(calls *inspections) Task {
	return Task{
		Name: "edition",
		Select: func(dialect.Dialect, SelectOptions) store.Query {
			return store.Query{SQL: `select versions.id, crates.name, versions.num
from versions
join crates on crates.id = versions.crate_id
where versions.edition is null
order by versions.id`}
		},
		Transform: func(ctx context.Context, in crates.Inspector, item Item) (journal.Entry, error) {
			calls.add(item.RecordID)
			crate, err := in.Inspect(ctx, item.Artifact, item.Name, item.Version)
			if err != nil {
				return journal.Entry{}, err
			}
			return journal.Entry{
				RecordID: item.RecordID,
				Values:   []journal.Value{journal.OptionalText(crate.Manifest.Package.Edition)},
			}, nil
		},
		Update: compile.Template{
			Table:     "versions",
			Key:       "id",
			KeyColumn: "version_id",
			Shape:     journal.Shape{{Name: "edition", Kind: journal.KindText}},
			Guard:     func(dialect.Dialect) string { return "versions.edition is null" },
		},
		DropAbsent: true,
	}
}

type env struct {
	t      *testing.T
	dbPath string
	root   string
	dir    string
}

// newEnv seeds the 3-record registry: a-1.0, b-2.0 and c-3.0.
func newEnv(t *testing.T) *env {
	dir := t.TempDir()
	e := &env{t: t, dbPath: filepath.Join(dir, "registry.db"), root: filepath.Join(dir, "mirror"), dir: dir}
	s := e.open()
	defer s.Close()
	ctx := context.Background()
	_, err := s.Exec(ctx, store.Query{SQL: "INSERT INTO crates (id, name) VALUES (1, 'a'), (2, 'b'), (3, 'c')"})
	require.NoError(t, err)
	_, err = s.Exec(ctx, store.Query{SQL: "INSERT INTO versions (id, crate_id, num) VALUES (1, 1, '1.0'), (2, 2, '2.0'), (3, 3, '3.0')"})
	require.NoError(t, err)
	return e
}

func (e *env) open() store.Store {
	e.t.Helper()
	s, err := store.Open(context.Background(), am.DatabaseConfig{Driver: am.DriverSQLite, URL: e.dbPath},
		zaptest.NewLogger(e.t).Sugar())
	require.NoError(e.t, err)
	return s
}

func (e *env) artifact(name, version, edition string) {
	e.t.Helper()
	extra := ""
	if edition != "" {
		extra = "edition = \"" + edition + "\"\n"
	}
	cratetest.Write(e.t, crates.ArtifactPath(e.root, name, version),
		cratetest.Files(name, version, cratetest.Manifest(name, version, extra), nil))
}

func (e *env) config() Config {
	return Config{
		ArtifactRoot: e.root,
		JournalPath:  filepath.Join(e.dir, "edition.csv"),
		SQLPath:      filepath.Join(e.dir, "edition.sql"),
		ChunkSize:    2,
		Workers:      2,
	}
}

func (e *env) run(ctx context.Context, cfg Config, task Task) (*Summary, error) {
	return NewEngine(cfg, nil, zaptest.NewLogger(e.t).Sugar()).Run(ctx, e.open(), task)
}

func (e *env) pending(task Task) []int64 {
	e.t.Helper()
	s := e.open()
	defer s.Close()
	candidates, err := SelectCandidates(context.Background(), s, task, SelectOptions{})
	require.NoError(e.t, err)
	resolved, err := journal.ReadResolved(e.config().JournalPath)
	require.NoError(e.t, err)
	var ids []int64
	for _, c := range Filter(candidates, resolved) {
		ids = append(ids, c.RecordID)
	}
	return ids
}

func TestRun_ExampleScenario(t *testing.T) {
	e := newEnv(t)
	e.artifact("a", "1.0", "2018")
	e.artifact("c", "3.0", "2021")
	calls := &inspections{}
	task := editionTask(calls)

	summary, err := e.run(context.Background(), e.config(), task)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Selected)
	assert.Equal(t, int64(2), summary.Counts.Journaled)
	assert.Equal(t, int64(1), summary.Counts.NotFound)
	assert.NotEmpty(t, summary.RunID)

	resolved, err := journal.ReadResolved(e.config().JournalPath)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, resolved.IDs())

	assert.Equal(t, []int64{2}, e.pending(task))

	res, err := LoadBatches(task, e.config().JournalPath, 2)
	require.NoError(t, err)
	require.Len(t, res.Batches, 1)
	assert.Equal(t, []int64{1, 3}, res.Batches[0].IDs())

	sql, err := os.ReadFile(e.config().SQLPath)
	require.NoError(t, err)
	assert.Equal(t, compile.Render(dialect.SQLite, task.Update, res.Batches[0]), string(sql))
}

func TestRun_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.artifact("a", "1.0", "2018")
	e.artifact("b", "2.0", "")
	e.artifact("c", "3.0", "2021")
	calls := &inspections{}
	task := editionTask(calls)

	_, err := e.run(context.Background(), e.config(), task)
	require.NoError(t, err)
	first, err := os.ReadFile(e.config().JournalPath)
	require.NoError(t, err)
	firstSQL, err := os.ReadFile(e.config().SQLPath)
	require.NoError(t, err)

	summary, err := e.run(context.Background(), e.config(), task)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.AlreadyResolved)
	assert.Zero(t, summary.Pending)

	second, err := os.ReadFile(e.config().JournalPath)
	require.NoError(t, err)
	secondSQL, err := os.ReadFile(e.config().SQLPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, string(firstSQL), string(secondSQL))
	assert.Equal(t, []int64{1, 2, 3}, calls.sorted(), "each artifact inspected once")
}

func TestRun_ResumesAfterInterruption(t *testing.T) {
	e := newEnv(t)
	e.artifact("a", "1.0", "2018")
	e.artifact("b", "2.0", "2015")
	e.artifact("c", "3.0", "2021")

	calls := &inspections{}
	task := editionTask(calls)
	inner := task.Transform
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task.Transform = func(ctx context.Context, in crates.Inspector, item Item) (journal.Entry, error) {
		if item.RecordID == 2 {
			cancel()
			return journal.Entry{}, ctx.Err()
		}
		return inner(ctx, in, item)
	}

	cfg := e.config()
	cfg.Workers = 1
	summary, err := e.run(ctx, cfg, task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, summary)
	_, statErr := os.Stat(cfg.SQLPath)
	assert.True(t, os.IsNotExist(statErr), "no SQL after an interrupted run")

	resolved, err := journal.ReadResolved(cfg.JournalPath)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, resolved.IDs())
	assert.Equal(t, []int64{2, 3}, e.pending(task))

	resumed := &inspections{}
	summary, err = e.run(context.Background(), cfg, editionTask(resumed))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AlreadyResolved)
	assert.Equal(t, []int64{2, 3}, resumed.sorted(), "journaled ids are never inspected again")
	assert.Equal(t, 3, summary.Updates)
}

func TestRun_SkippedItemsReturn(t *testing.T) {
	e := newEnv(t)
	e.artifact("a", "1.0", "2018")
	// b's artifact is unparsable, c's is missing.
	require.NoError(t, os.MkdirAll(filepath.Dir(crates.ArtifactPath(e.root, "b", "2.0")), 0755))
	require.NoError(t, os.WriteFile(crates.ArtifactPath(e.root, "b", "2.0"), []byte("garbage"), 0644))

	task := editionTask(&inspections{})
	summary, err := e.run(context.Background(), e.config(), task)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Counts.ParseFailure)
	assert.Equal(t, int64(1), summary.Counts.NotFound)
	assert.Equal(t, int64(2), summary.Counts.Skipped)

	entries, err := journal.ReadAll(e.config().JournalPath, task.Shape())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []int64{2, 3}, e.pending(task))

	e.artifact("b", "2.0", "2015")
	e.artifact("c", "3.0", "2021")
	summary, err = e.run(context.Background(), e.config(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pending)
	assert.Zero(t, summary.Counts.Skipped)
	assert.Empty(t, e.pending(task))
}

func TestRun_JournalLocked(t *testing.T) {
	e := newEnv(t)
	cfg := e.config()
	w, err := journal.OpenWriter(cfg.JournalPath, journal.Shape{{Name: "edition", Kind: journal.KindText}}, journal.Options{})
	require.NoError(t, err)
	defer w.Close()

	_, err = e.run(context.Background(), cfg, editionTask(&inspections{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func TestRun_MalformedJournal(t *testing.T) {
	e := newEnv(t)
	cfg := e.config()
	require.NoError(t, os.WriteFile(cfg.JournalPath, []byte("1,2018\nnot-an-id,2021\n"), 0644))

	_, err := e.run(context.Background(), cfg, editionTask(&inspections{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFormat))
	_, statErr := os.Stat(cfg.SQLPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_StoreFailure(t *testing.T) {
	e := newEnv(t)
	task := editionTask(&inspections{})
	task.Select = func(dialect.Dialect, SelectOptions) store.Query {
		return store.Query{SQL: "select id from missing_table"}
	}
	_, err := e.run(context.Background(), e.config(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStore))
}

func TestFilter(t *testing.T) {
	candidates := []Candidate{{RecordID: 1}, {RecordID: 2}, {RecordID: 3}}
	resolved := journal.ResolvedSet{}
	assert.Equal(t, candidates, Filter(candidates, resolved))

	resolved.Add(2)
	got := Filter(candidates, resolved)
	assert.Equal(t, []Candidate{{RecordID: 1}, {RecordID: 3}}, got)
	assert.Empty(t, Filter(nil, resolved))
}

func TestSelectCandidates_Context(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(`select versions.id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "num", "bin_count"}).
			AddRow(int64(4), "tool", "1.0.0", "3").
			AddRow(int64(9), "other", "0.1.0", nil))

	task := Task{
		Name: "lib-bin",
		Select: func(d dialect.Dialect, _ SelectOptions) store.Query {
			return store.Query{SQL: "select versions.id, crates.name, versions.num, " + d.AsText(d.ArrayLength("versions.bin_names"))}
		},
		Context: []string{"bin_count"},
	}
	got, err := SelectCandidates(context.Background(), store.NewSQLStore(sqlDB, dialect.Postgres), task, SelectOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{RecordID: 4, Name: "tool", Version: "1.0.0", Context: map[string]string{"bin_count": "3"}}, got[0])
	assert.Equal(t, "other-0.1.0", got[1].Key())
	assert.Empty(t, got[1].Context)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerPool_Process(t *testing.T) {
	candidates := make([]Candidate, 100)
	for i := range candidates {
		candidates[i] = Candidate{RecordID: int64(i), Name: "x", Version: "1.0.0"}
	}
	transform := func(_ context.Context, _ crates.Inspector, item Item) (journal.Entry, error) {
		switch item.RecordID % 4 {
		case 1:
			return journal.Entry{}, errors.NewNotFoundError("missing %s", item.Artifact)
		case 2:
			return journal.UnchangedEntry(item.RecordID), nil
		case 3:
			return journal.Entry{}, errors.New("unexpected")
		}
		return journal.Entry{RecordID: item.RecordID, Values: []journal.Value{journal.Text("v")}}, nil
	}

	stats := &Stats{}
	reporter := NewJSONReporter(&bytes.Buffer{}, 10)
	pool := NewWorkerPool(PoolConfig{Workers: 4, Rate: 10000, ArtifactRoot: "/mirror"}, stats, reporter, zaptest.NewLogger(t).Sugar())
	assert.Equal(t, 4, pool.Workers())

	reporter.Start("test", len(candidates))
	out := make(chan journal.Entry)
	var got []journal.Entry
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range out {
			got = append(got, e)
		}
	}()
	require.NoError(t, pool.Process(context.Background(), candidates, transform, out))
	<-done

	assert.Len(t, got, 50)
	c := stats.Snapshot()
	assert.Equal(t, int64(100), c.Processed)
	assert.Equal(t, int64(50), c.Journaled)
	assert.Equal(t, int64(25), c.Unchanged)
	assert.Equal(t, int64(25), c.NotFound)
	assert.Equal(t, int64(25), c.Failed)
	assert.Equal(t, int64(50), c.Skipped)
}

func TestWorkerPool_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewWorkerPool(PoolConfig{Workers: 2}, nil, nil, zaptest.NewLogger(t).Sugar())
	out := make(chan journal.Entry)
	err := pool.Process(ctx, []Candidate{{RecordID: 1}, {RecordID: 2}}, func(context.Context, crates.Inspector, Item) (journal.Entry, error) {
		return journal.UnchangedEntry(1), nil
	}, out)
	assert.ErrorIs(t, err, context.Canceled)
	_, open := <-out
	assert.False(t, open)
}

func TestWorkerPool_DefaultWorkers(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{}, nil, nil, nil)
	assert.Equal(t, DefaultWorkers(), pool.Workers())
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}

func TestCalculateSafeWorkerCount(t *testing.T) {
	const gib = 1 << 30
	assert.Equal(t, 1, calculateSafeWorkerCount(256<<20, 0))
	assert.Equal(t, 24, calculateSafeWorkerCount(2*gib, 0))
	assert.Equal(t, 1, calculateSafeWorkerCount(gib, gib))
	assert.Equal(t, 3, calculateSafeWorkerCount(4*gib, gib))

	assert.Empty(t, memoryWarning(2, 8*gib, 4*gib, gib))
	warning := memoryWarning(8, 8*gib, 4*gib, gib)
	assert.Contains(t, warning, "exceeds recommended (3)")
	assert.Contains(t, warning, "4.0 GiB")
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, 2)
	r.Start("edition", 3)
	r.Advance(OutcomeJournaled)
	r.Advance(OutcomeSkipped)
	r.Advance(OutcomeUnchanged)
	r.Finish(&Summary{Task: "edition", Selected: 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var types []string
	for _, line := range lines {
		var ev ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"start", "progress", "progress", "complete"}, types)

	var last ProgressEvent
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.EqualValues(t, 3, last.Data["processed"])
	assert.EqualValues(t, 1, last.Data["skipped"])
}

// lockedBuffer is written by the bar and the logger from different goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCLIReporter_LogsAboveBar(t *testing.T) {
	require.NoError(t, logger.Initialize(false, 0))
	defer func() { logger.Logger = zap.NewNop().Sugar() }()

	out := &lockedBuffer{}
	r := &CLIReporter{out: out}
	r.Start("edition", 3)
	require.NotNil(t, r.bar)

	r.Advance(OutcomeJournaled)
	logger.Warnw("Skipping item", "id", 7)
	r.Finish(nil)
	assert.Nil(t, r.restore)

	logger.Warnw("Logged after the bar")

	got := out.String()
	assert.Contains(t, got, "Skipping item")
	assert.NotContains(t, got, "Logged after the bar")
}

func TestSummaryDescribe(t *testing.T) {
	s := &Summary{Selected: 12345, AlreadyResolved: 2, Counts: Counts{Journaled: 1000, Unchanged: 3, Skipped: 4}, Updates: 997, Batches: 1}
	assert.Equal(t, "12,345 candidates, 2 already resolved, 1,000 journaled (3 unchanged), 4 skipped, 997 updates in 1 batches", s.Describe())
}

func TestResolveChunkSize(t *testing.T) {
	task := Task{ChunkSize: 10000}
	assert.Equal(t, 5, task.ResolveChunkSize(5, 1000))
	assert.Equal(t, 10000, task.ResolveChunkSize(0, 1000))
	assert.Equal(t, 1000, Task{}.ResolveChunkSize(0, 1000))
}
