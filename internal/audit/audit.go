// Package audit writes per-category CSV event trails, one file per category
// per day. File handles are opened on first use and kept in an owned pool;
// Close flushes and releases everything and must run at shutdown. A nil
// *Recorder is valid and records nothing, so components need no audit wiring
// in tests.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var header = []string{
	"timestamp", "stage", "owner", "ref", "detail", "duration_ms",
}

// Event is one audit row.
type Event struct {
	Stage   string
	Owner   string
	Ref     string
	Detail  string
	Elapsed time.Duration
}

type handle struct {
	f *os.File
	w *csv.Writer
}

// Recorder owns the CSV files under its base directory.
type Recorder struct {
	mu    sync.Mutex
	dir   string
	files map[string]*handle
	now   func() time.Time
}

func New(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Recorder{dir: dir, files: make(map[string]*handle), now: time.Now}, nil
}

// Write appends the event to the category's file for today, creating the
// file (with header) on first use.
func (r *Recorder) Write(category string, ev Event) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	path := filepath.Join(r.dir, category, now.Format("2006-01-02")+".csv")

	h, err := r.handleFor(path)
	if err != nil {
		return err
	}

	row := []string{
		now.Format("2006-01-02 15:04:05.000"),
		ev.Stage,
		ev.Owner,
		ev.Ref,
		ev.Detail,
		strconv.FormatInt(ev.Elapsed.Milliseconds(), 10),
	}

	if err := h.w.Write(row); err != nil {
		return fmt.Errorf("audit write %s: %w", path, err)
	}
	h.w.Flush()
	return h.w.Error()
}

func (r *Recorder) handleFor(path string) (*handle, error) {
	if h, ok := r.files[path]; ok {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return nil, fmt.Errorf("audit mkdir for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o660)
	if err != nil {
		return nil, fmt.Errorf("audit open %s: %w", path, err)
	}

	w := csv.NewWriter(f)

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("audit stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("audit header %s: %w", path, err)
		}
	}

	h := &handle{f: f, w: w}
	r.files[path] = h
	return h, nil
}

// Close flushes and closes every open file. The recorder is unusable after.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for path, h := range r.files {
		h.w.Flush()
		if err := h.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.files, path)
	}
	return firstErr
}
