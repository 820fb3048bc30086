// Package journal appends one JSON line per closure attempt to a rotating
// file and reads the most recent entries back for the API.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/monitor"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

const (
	fileName          = "closures.jsonl"
	defaultBufferSize = 64
	defaultMaxSizeMB  = 10
	closeDrainTimeout = 5 * time.Second
)

var ErrClosed = errors.New("journal: writer is closed")

// Record is one journal line.
type Record struct {
	ID       string           `json:"id"`
	TabID    types.TabID      `json:"tab_id"`
	URL      string           `json:"url"`
	Category meeting.Category `json:"category"`
	Reason   string           `json:"reason"`
	Counted  bool             `json:"counted"`
	Error    string           `json:"error,omitempty"`
	ClosedAt time.Time        `json:"closed_at"`
}

// Writer queues records and writes them from a single goroutine.
type Writer struct {
	path    string
	writeCh chan Record
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	logger *lumberjack.Logger
	closed bool
}

// Open creates dir if needed and starts the write loop.
func Open(dir string, maxSizeMB int) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	path := filepath.Join(dir, fileName)
	w := &Writer{
		path:    path,
		writeCh: make(chan Record, defaultBufferSize),
		done:    make(chan struct{}),
		logger: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: 10,
			MaxAge:     90,
			LocalTime:  false,
		},
	}
	w.wg.Add(1)
	go w.writeLoop()
	slog.Info("journal opened", "file", path)
	return w, nil
}

// TabClosed records a closure attempt. It never blocks the caller.
func (w *Writer) TabClosed(ev monitor.ClosureEvent) {
	rec := Record{
		ID:       uuid.NewString(),
		TabID:    ev.TabID,
		URL:      ev.URL,
		Category: ev.Category,
		Reason:   ev.Reason,
		Counted:  ev.Counted,
		Error:    ev.Error,
		ClosedAt: ev.At.UTC(),
	}
	if err := w.Write(rec); err != nil {
		slog.Warn("journal record dropped", "tab_id", ev.TabID, "error", err)
	}
}

// Write queues rec for the write loop. A record accepted here is written
// even if Close runs right after.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.writeCh <- rec:
		return nil
	default:
		return fmt.Errorf("journal: buffer full")
	}
}

// Close stops the write loop and flushes what is still queued.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()

	timeout := time.After(closeDrainTimeout)
drain:
	for {
		select {
		case rec := <-w.writeCh:
			w.writeRecord(rec)
		case <-timeout:
			slog.Warn("journal close timeout, some records may be lost")
			break drain
		default:
			break drain
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logger.Close()
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case rec := <-w.writeCh:
			w.writeRecord(rec)
		case <-w.done:
			return
		}
	}
}

func (w *Writer) writeRecord(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("journal marshal failed", "error", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err, "file", w.path)
	}
}

// Recent returns up to limit records from the active file, newest first.
// Rotated backups are not read.
func (w *Writer) Recent(limit int) ([]Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return readRecent(w.path, limit)
}

func readRecent(path string, limit int) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	defer f.Close()

	var all []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			slog.Debug("journal line skipped", "error", err)
			continue
		}
		all = append(all, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}

	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Record, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
