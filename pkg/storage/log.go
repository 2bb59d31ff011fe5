package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/offlinefirst/sessiontrace/pkg/event"
)

// Flush policy defaults: whichever of these is reached first triggers a
// buffered flush to disk.
const (
	DefaultFlushCount    = 100
	DefaultFlushInterval = 5 * time.Second
)

// ErrLogClosed is returned by Append after Close.
var ErrLogClosed = errors.New("event log is closed")

// LogOptions configure an append-only event log writer.
type LogOptions struct {
	Path          string
	FlushCount    int
	FlushInterval time.Duration
	Clock         func() time.Time
}

// LogWriter appends modality-tagged events to a JSONL file, one complete
// record per line. Writers serialize through a single lock; records buffer
// in memory and flush when the count threshold is reached or the flush
// interval elapses, whichever comes first. Close performs one final
// synchronous flush so no buffered record is lost on normal shutdown.
type LogWriter struct {
	flushCount    int
	flushInterval time.Duration
	clock         func() time.Time

	mu        sync.Mutex
	file      io.WriteCloser
	buf       [][]byte
	lastFlush time.Time
	closed    bool

	flushes atomic.Uint64

	stop chan struct{}
	done chan struct{}
}

// NewLogWriter opens (or creates) the log file for appending and starts the
// interval flusher.
func NewLogWriter(opts LogOptions) (*LogWriter, error) {
	if opts.Path == "" {
		return nil, errors.New("log path must not be empty")
	}
	flushCount := opts.FlushCount
	if flushCount <= 0 {
		flushCount = DefaultFlushCount
	}
	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	file, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	w := &LogWriter{
		flushCount:    flushCount,
		flushInterval: flushInterval,
		clock:         clock,
		file:          file,
		lastFlush:     clock(),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go w.flushLoop()
	return w, nil
}

// Append wraps the event with a generated ISO-8601 timestamp and its
// modality tag, serializes it to one line, and buffers it for writing.
func (w *LogWriter) Append(ev event.Event) error {
	record := make(map[string]any, len(ev.Fields)+2)
	for k, v := range ev.Fields {
		record[k] = v
	}
	record["type"] = string(ev.Type)
	record["timestamp"] = w.clock().UTC().Format(time.RFC3339Nano)

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrLogClosed
	}
	w.buf = append(w.buf, line)
	if len(w.buf) >= w.flushCount {
		return w.flushLocked()
	}
	return nil
}

// Flush forces any buffered records to disk.
func (w *LogWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrLogClosed
	}
	return w.flushLocked()
}

// Close stops the interval flusher, performs a final synchronous flush, and
// closes the underlying file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	flushErr := w.flushLocked()
	w.closed = true
	closeErr := w.file.Close()
	w.mu.Unlock()

	close(w.stop)
	<-w.done

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("close event log: %w", closeErr)
	}
	return nil
}

// Flushes reports how many disk flush operations have occurred.
func (w *LogWriter) Flushes() uint64 {
	return w.flushes.Load()
}

func (w *LogWriter) flushLocked() error {
	if len(w.buf) == 0 {
		w.lastFlush = w.clock()
		return nil
	}
	written := 0
	for _, line := range w.buf {
		if _, err := w.file.Write(line); err != nil {
			// Drop the lines already on disk so a retry after a
			// transient failure cannot duplicate them.
			w.buf = append(w.buf[:0], w.buf[written:]...)
			return fmt.Errorf("write event log: %w", err)
		}
		written++
	}
	w.buf = w.buf[:0]
	w.lastFlush = w.clock()
	w.flushes.Add(1)
	return nil
}

func (w *LogWriter) flushLoop() {
	defer close(w.done)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			if !w.closed && len(w.buf) > 0 && w.clock().Sub(w.lastFlush) >= w.flushInterval {
				_ = w.flushLocked()
			}
			w.mu.Unlock()
		}
	}
}
