// Package telemetry carries fire-and-forget observability events and the
// JSON decision records written by batch runs.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one emitted measurement with tags.
type Event struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	DurationNS int64             `json:"duration_ns"`
	Tags       map[string]string `json:"tags,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewEvent creates an event with a fresh id and the current UTC timestamp.
func NewEvent(name string, duration time.Duration, tags map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		DurationNS: duration.Nanoseconds(),
		Tags:       tags,
		Timestamp:  time.Now().UTC(),
	}
}

// Sink receives emitted events. Implementations must be safe for concurrent
// use; they may fail, but callers emit through Publish, which swallows
// failures.
type Sink interface {
	Emit(event Event) error
}

// Publish sends the event to the sink. Emission is fire-and-forget: a nil
// sink is a no-op, and sink errors and panics never reach the caller.
func Publish(sink Sink, event Event) {
	if sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	_ = sink.Emit(event)
}

// FileSink appends one JSON object per line to a file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a file sink, creating parent directories as needed.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("telemetry path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &FileSink{path: path}, nil
}

// Path returns the sink's file path.
func (s *FileSink) Path() string {
	return s.path
}

// Emit appends the event as one JSONL line.
func (s *FileSink) Emit(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// MemorySink records events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMemorySink creates an empty recording sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// SetError makes every subsequent Emit fail with err.
func (s *MemorySink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Emit records the event.
func (s *MemorySink) Emit(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns the recorded events in emission order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// NopSink discards every event.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(Event) error { return nil }
