package pipeline

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/logger"
)

// Outcome is what happened to one candidate.
type Outcome int

const (
	OutcomeJournaled Outcome = iota
	OutcomeUnchanged
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeJournaled:
		return "journaled"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "skipped"
	}
}

// Stats counts pool outcomes. Safe for concurrent use.
type Stats struct {
	Processed    atomic.Int64
	Journaled    atomic.Int64
	Unchanged    atomic.Int64
	Absent       atomic.Int64
	NotFound     atomic.Int64
	TooLarge     atomic.Int64
	ParseFailure atomic.Int64
	Failed       atomic.Int64
}

func (s *Stats) recordEntry(e journal.Entry) Outcome {
	s.Processed.Add(1)
	s.Journaled.Add(1)
	switch {
	case e.Unchanged:
		s.Unchanged.Add(1)
		return OutcomeUnchanged
	case e.AllAbsent():
		s.Absent.Add(1)
	}
	return OutcomeJournaled
}

func (s *Stats) recordSkip(err error) Outcome {
	s.Processed.Add(1)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		s.NotFound.Add(1)
	case errors.Is(err, errors.ErrTooLarge):
		s.TooLarge.Add(1)
	case errors.Is(err, errors.ErrParseFailure):
		s.ParseFailure.Add(1)
	default:
		s.Failed.Add(1)
	}
	return OutcomeSkipped
}

// Skipped is the number of candidates that did not reach the journal.
func (s *Stats) Skipped() int64 {
	return s.NotFound.Load() + s.TooLarge.Load() + s.ParseFailure.Load() + s.Failed.Load()
}

// Counts is a point-in-time copy of Stats.
type Counts struct {
	Processed    int64 `json:"processed" yaml:"processed"`
	Journaled    int64 `json:"journaled" yaml:"journaled"`
	Unchanged    int64 `json:"unchanged" yaml:"unchanged"`
	Absent       int64 `json:"absent" yaml:"absent"`
	Skipped      int64 `json:"skipped" yaml:"skipped"`
	NotFound     int64 `json:"not_found" yaml:"not_found"`
	TooLarge     int64 `json:"too_large" yaml:"too_large"`
	ParseFailure int64 `json:"parse_failure" yaml:"parse_failure"`
	Failed       int64 `json:"failed" yaml:"failed"`
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Counts {
	return Counts{
		Processed:    s.Processed.Load(),
		Journaled:    s.Journaled.Load(),
		Unchanged:    s.Unchanged.Load(),
		Absent:       s.Absent.Load(),
		Skipped:      s.Skipped(),
		NotFound:     s.NotFound.Load(),
		TooLarge:     s.TooLarge.Load(),
		ParseFailure: s.ParseFailure.Load(),
		Failed:       s.Failed.Load(),
	}
}

// Reporter observes a run's progress. Advance is called concurrently from
// the workers.
type Reporter interface {
	Start(task string, total int)
	Advance(outcome Outcome)
	Finish(summary *Summary)
}

// NopReporter discards progress.
type NopReporter struct{}

func (NopReporter) Start(string, int) {}
func (NopReporter) Advance(Outcome)   {}
func (NopReporter) Finish(*Summary)   {}

// CLIReporter draws a pterm progress bar. While the bar is live, log
// output is printed above it instead of over it.
type CLIReporter struct {
	mu      sync.Mutex
	out     io.Writer
	bar     *pterm.ProgressbarPrinter
	restore func()
}

// NewCLIReporter creates a terminal progress reporter drawing on stderr.
func NewCLIReporter() *CLIReporter {
	return &CLIReporter{out: os.Stderr}
}

func (r *CLIReporter) Start(task string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if total == 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(task).
		WithRemoveWhenDone(true).
		WithWriter(r.out).
		Start()
	if err == nil {
		r.bar = bar
		r.restore = logger.RedirectOutput(barLogWriter{r})
	}
}

func (r *CLIReporter) Advance(Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		r.bar.Increment()
	}
}

func (r *CLIReporter) Finish(summary *Summary) {
	r.mu.Lock()
	if r.bar != nil {
		_, _ = r.bar.Stop()
		r.bar = nil
	}
	restore := r.restore
	r.restore = nil
	r.mu.Unlock()
	if restore != nil {
		restore()
	}

	if summary == nil {
		return
	}
	pterm.Success.Printf("%s: %s\n", summary.Task, summary.Describe())
}

// barLogWriter clears the bar line, prints a log entry and redraws the bar.
type barLogWriter struct{ r *CLIReporter }

func (w barLogWriter) Write(p []byte) (int, error) {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	if w.r.bar == nil || !w.r.bar.IsActive || !pterm.Output {
		return w.r.out.Write(p)
	}
	pterm.Fprint(w.r.out, string(p))
	return len(p), nil
}

// ProgressEvent is one line of JSONReporter output.
type ProgressEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// JSONReporter writes newline-delimited progress events.
type JSONReporter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	every   int
	total   int
	done    int
	counts  map[Outcome]int
}

// NewJSONReporter writes to w (stdout when nil), emitting a progress event
// every n candidates.
func NewJSONReporter(w io.Writer, every int) *JSONReporter {
	if w == nil {
		w = os.Stdout
	}
	if every <= 0 {
		every = 1000
	}
	return &JSONReporter{encoder: json.NewEncoder(w), every: every, counts: make(map[Outcome]int)}
}

func (r *JSONReporter) emit(typ string, data map[string]interface{}) {
	_ = r.encoder.Encode(ProgressEvent{Type: typ, Timestamp: time.Now(), Data: data})
}

func (r *JSONReporter) Start(task string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	r.emit("start", map[string]interface{}{"task": task, "total": total})
}

func (r *JSONReporter) Advance(outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	r.counts[outcome]++
	if r.done%r.every == 0 || r.done == r.total {
		r.emit("progress", map[string]interface{}{
			"processed": r.done,
			"total":     r.total,
			"journaled": r.counts[OutcomeJournaled],
			"unchanged": r.counts[OutcomeUnchanged],
			"skipped":   r.counts[OutcomeSkipped],
		})
	}
}

func (r *JSONReporter) Finish(summary *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit("complete", map[string]interface{}{"summary": summary})
}
