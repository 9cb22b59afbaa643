package telemetry

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	tags := map[string]string{"action": "direct", "confidence_level": "high"}
	event := NewEvent("accuracy.calibration.route", 1500*time.Nanosecond, tags)

	if event.ID == "" {
		t.Error("event ID should be set")
	}
	if event.Name != "accuracy.calibration.route" {
		t.Errorf("Name = %q", event.Name)
	}
	if event.DurationNS != 1500 {
		t.Errorf("DurationNS = %d, want 1500", event.DurationNS)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if event.Tags["action"] != "direct" {
		t.Errorf("Tags = %v", event.Tags)
	}
}

func TestPublishNilSink(t *testing.T) {
	// Must not panic.
	Publish(nil, NewEvent("test", 0, nil))
}

func TestPublishSwallowsErrors(t *testing.T) {
	sink := NewMemorySink()
	sink.SetError(errors.New("sink down"))
	Publish(sink, NewEvent("test", 0, nil))
	if len(sink.Events()) != 0 {
		t.Error("failing sink should record nothing")
	}
}

type panicSink struct{}

func (panicSink) Emit(Event) error { panic("sink exploded") }

func TestPublishSwallowsPanics(t *testing.T) {
	Publish(panicSink{}, NewEvent("test", 0, nil))
}

func TestMemorySinkRecords(t *testing.T) {
	sink := NewMemorySink()
	Publish(sink, NewEvent("first", time.Millisecond, nil))
	Publish(sink, NewEvent("second", time.Millisecond, nil))

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(events))
	}
	if events[0].Name != "first" || events[1].Name != "second" {
		t.Errorf("events out of order: %q, %q", events[0].Name, events[1].Name)
	}
}

func TestFileSinkAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry", "events.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	for _, name := range []string{"one", "two", "three"} {
		if err := sink.Emit(NewEvent(name, time.Microsecond, map[string]string{"n": name})); err != nil {
			t.Fatalf("Emit(%q) error = %v", name, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open sink file: %v", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		names = append(names, event.Name)
	}
	if len(names) != 3 || names[0] != "one" || names[2] != "three" {
		t.Errorf("lines = %v, want [one two three]", names)
	}
}

func TestNewFileSinkRequiresPath(t *testing.T) {
	if _, err := NewFileSink(""); err == nil {
		t.Error("empty path should fail")
	}
}
