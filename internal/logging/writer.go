package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer that rolls its file over once it
// grows past a size cap. Rolled files keep a numbered history beside
// the live one: server.log.1 is the newest, server.log.N the oldest
// still kept.
type RotatingWriter struct {
	path string
	max  int64
	keep int

	mu            sync.Mutex
	file          *os.File
	size          int64
	syncEachWrite bool
}

// NewRotatingWriter opens or creates the log file at path, creating
// parent directories as needed. maxSizeMB bounds the live file and
// maxFiles the numbered history. Per-write fsync starts enabled so
// `vitrina logs -f` tails lines as they land.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if maxFiles < 1 {
		maxFiles = 1
	}
	w := &RotatingWriter{
		path:          path,
		max:           int64(maxSizeMB) * 1024 * 1024,
		keep:          maxFiles,
		syncEachWrite: true,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync toggles the fsync after every write. Turning it
// off trades tail freshness for write throughput.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncEachWrite = enabled
}

// Write appends p to the live file, rolling it first when the size
// cap would be crossed. A failed roll is reported on stderr and the
// live file stays in service.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.max {
		if err := w.roll(); err != nil {
			fmt.Fprintf(os.Stderr, "vitrina: log rotation: %v\n", err)
		}
	}
	if w.file == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err == nil && w.syncEachWrite {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes buffered data to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the live file. The writer must not be used afterwards.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// roll shifts the numbered history up one slot, dropping the oldest,
// then moves the live file into slot 1 and reopens a fresh one.
func (w *RotatingWriter) roll() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	_ = os.Remove(w.numbered(w.keep))
	for i := w.keep - 1; i >= 1; i-- {
		_ = os.Rename(w.numbered(i), w.numbered(i+1))
	}
	if err := os.Rename(w.path, w.numbered(1)); err != nil && !os.IsNotExist(err) {
		// Keep writing to the old file rather than dropping records.
		_ = w.open()
		return fmt.Errorf("rotate %s: %w", w.path, err)
	}
	return w.open()
}

func (w *RotatingWriter) numbered(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}
