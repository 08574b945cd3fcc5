package journal

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"

	"github.com/danjacques/gofslock/fslock"
	"go.uber.org/zap"

	"github.com/teranos/backfill/errors"
)

// Options configures a Writer.
type Options struct {
	// Sync fsyncs the journal after every record. Without it a record is
	// flushed to the OS before the next one is accepted, which survives a
	// process crash but not a power loss.
	Sync bool
	// Trace logs every appended record at debug level.
	Trace bool

	Logger *zap.SugaredLogger
}

// Writer is the only writer of a journal file. It holds <path>.lock for
// its whole lifetime so a second process cannot append concurrently.
type Writer struct {
	path    string
	shape   Shape
	file    *os.File
	csv     *csv.Writer
	lock    fslock.Handle
	sync    bool
	trace   bool
	written int
	log     *zap.SugaredLogger
}

// LockPath returns the lock file guarding the journal at path.
func LockPath(path string) string {
	return path + ".lock"
}

// OpenWriter opens the journal at path for appending, creating it if needed.
// A trailing partial record left by a crash is truncated first.
func OpenWriter(path string, shape Shape, opts Options) (*Writer, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	lock, err := fslock.Lock(LockPath(path))
	if err != nil {
		if err == fslock.ErrLockHeld {
			return nil, errors.WithHint(
				errors.MarkIO(errors.Newf("journal %s is locked by another run", path)),
				"wait for the other run to finish, or remove "+LockPath(path)+" if it crashed")
		}
		return nil, errors.MarkIO(errors.Wrapf(err, "lock journal %s", path))
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		lock.Unlock()
		return nil, errors.MarkIO(errors.Wrapf(err, "open journal %s", path))
	}

	dropped, terminated, err := repairTail(f, shape)
	if err != nil {
		f.Close()
		lock.Unlock()
		return nil, errors.MarkIO(errors.Wrapf(err, "repair journal %s", path))
	}
	if terminated {
		log.Warnw("Terminated journal record missing its newline", "path", path)
	}
	if dropped > 0 {
		log.Warnw("Dropped partial trailing journal record", "path", path, "bytes", dropped)
	}

	return &Writer{
		path:  path,
		shape: shape,
		file:  f,
		csv:   csv.NewWriter(f),
		lock:  lock,
		sync:  opts.Sync,
		trace: opts.Trace,
		log:   log,
	}, nil
}

// Append durably writes one record before returning.
func (w *Writer) Append(e Entry) error {
	record, err := encodeRecord(e, w.shape)
	if err != nil {
		return errors.MarkIO(err)
	}
	if err := w.csv.Write(record); err != nil {
		return errors.MarkIO(errors.Wrapf(err, "append to journal %s", w.path))
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return errors.MarkIO(errors.Wrapf(err, "flush journal %s", w.path))
	}
	if w.sync {
		if err := w.file.Sync(); err != nil {
			return errors.MarkIO(errors.Wrapf(err, "sync journal %s", w.path))
		}
	}
	w.written++
	if w.trace {
		w.log.Debugw("Journaled", "record_id", e.RecordID, "unchanged", e.Unchanged, "line", w.written)
	}
	return nil
}

// Drain appends every entry received on in until the channel is closed.
// It stops at the first append failure; the caller must then stop the
// producers, since nothing reads from in afterwards.
func (w *Writer) Drain(in <-chan Entry) error {
	for e := range in {
		if err := w.Append(e); err != nil {
			return err
		}
	}
	w.log.Debugw("Journal drained", "path", w.path, "written", w.written)
	return nil
}

// Written returns how many records this writer appended.
func (w *Writer) Written() int {
	return w.written
}

// Path returns the journal file path.
func (w *Writer) Path() string {
	return w.path
}

// Close closes the file and releases the lock.
func (w *Writer) Close() error {
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	unlockErr := w.lock.Unlock()

	switch {
	case flushErr != nil:
		return errors.MarkIO(errors.Wrapf(flushErr, "flush journal %s", w.path))
	case closeErr != nil:
		return errors.MarkIO(errors.Wrapf(closeErr, "close journal %s", w.path))
	case unlockErr != nil:
		return errors.MarkIO(errors.Wrapf(unlockErr, "unlock journal %s", w.path))
	}
	return nil
}

// repairTail handles a journal whose last byte is not a newline. A final
// record that parses against shape is kept and terminated; anything else
// is a torn write and is cut. It returns the bytes dropped and whether a
// newline was appended. Records are located with the CSV reader, since
// quoted values may contain newlines.
func repairTail(f *os.File, shape Shape) (int64, bool, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, false, err
	}
	size := info.Size()
	if size == 0 {
		return 0, false, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, false, err
	}
	if last[0] == '\n' {
		return 0, false, nil
	}

	r := newReader(io.NewSectionReader(f, 0, size))
	var complete int64
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row ahead of the tail is left for the reader to
			// report; truncating here would drop resolved ids.
			return 0, false, nil
		}
		off := r.InputOffset()
		if off < size {
			complete = off
			continue
		}
		tail := make([]byte, size-complete)
		if _, err := f.ReadAt(tail, complete); err != nil {
			return 0, false, err
		}
		// csv.Reader accepts an unterminated quoted field at EOF
		if bytes.Count(tail, []byte{'"'})%2 == 0 {
			if _, err := parseRecord(record, shape); err == nil {
				if _, err := f.Write([]byte{'\n'}); err != nil {
					return 0, false, err
				}
				return 0, true, nil
			}
		}
		break
	}
	return size - complete, false, f.Truncate(complete)
}
