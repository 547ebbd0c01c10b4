// Package eventlog provides an append-only JSON-lines log of bus events,
// for offline inspection and replay (spec §6: persisted state is not
// intrinsic to the core, but an external concern like this one may
// record it).
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lobsim/lobsim/internal/bus"
)

// Writer appends bus events as JSON lines to a file.
type Writer struct {
	file   *os.File
	writer *bufio.Writer
	count  uint64
}

// NewWriter creates a writer at path, truncating any existing file.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	return &Writer{file: f, writer: bufio.NewWriterSize(f, 64*1024)}, nil
}

// Write appends one event.
func (w *Writer) Write(event bus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return nil
}

// subscribable is satisfied by both *bus.Bus and *kernel.Kernel's On
// passthrough, matching internal/metrics's Collectors.Subscribe so a
// driver can wire either a standalone bus in tests or a live kernel.
type subscribable interface {
	On(topic bus.Topic, handler bus.Handler)
}

// Subscribe attaches the writer to every bus topic listed in topics,
// for the caller's convenience (the most common case is "subscribe to
// everything").
func (w *Writer) Subscribe(b subscribable, topics ...bus.Topic) {
	for _, topic := range topics {
		b.On(topic, func(e bus.Event) { _ = w.Write(e) })
	}
}

// Count returns the number of events written so far.
func (w *Writer) Count() uint64 { return w.count }

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Reader reads bus events back from a JSON-lines log.
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewReader opens path for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 256*1024), 1024*1024)
	return &Reader{file: f, scanner: scanner}, nil
}

// Next reads the next event, returning io.EOF once exhausted.
func (r *Reader) Next() (bus.Event, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return bus.Event{}, err
		}
		return bus.Event{}, io.EOF
	}
	var event bus.Event
	if err := json.Unmarshal(r.scanner.Bytes(), &event); err != nil {
		return bus.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}

// ReadAll reads every remaining event.
func (r *Reader) ReadAll() ([]bus.Event, error) {
	var events []bus.Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.file.Close() }
