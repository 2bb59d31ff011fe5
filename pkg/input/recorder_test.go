package input

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/offlinefirst/sessiontrace/pkg/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collectSink gathers emitted events behind a lock; recorders call the sink
// from their capture goroutines.
type collectSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collectSink) sink(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collectSink) snapshot() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

func TestNewKeyboardValidatesOptions(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, emit func(Sample)) error { return nil })
	sink := func(event.Event) {}

	if _, err := NewKeyboard(Options{Sink: sink, Logger: testLogger()}); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := NewKeyboard(Options{Source: source, Logger: testLogger()}); err == nil {
		t.Fatal("expected error for missing sink")
	}
	if _, err := NewKeyboard(Options{Source: source, Sink: sink}); err == nil {
		t.Fatal("expected error for missing logger")
	}
}

func TestKeyboardRecorderConvertsSamples(t *testing.T) {
	samples := []Sample{
		{Action: ActionPress, Key: "a"},
		{Action: ActionRelease, Key: "a"},
		{Action: ActionPress, Key: "Return"},
		{Action: ActionMove, X: 3, Y: 4}, // foreign action, ignored
	}
	delivered := make(chan struct{})
	source := SourceFunc(func(ctx context.Context, emit func(Sample)) error {
		for _, s := range samples {
			emit(s)
		}
		close(delivered)
		<-ctx.Done()
		return ctx.Err()
	})

	var collected collectSink
	rec, err := NewKeyboard(Options{Source: source, Sink: collected.sink, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewKeyboard: %v", err)
	}
	if rec.Name() != "keyboard" {
		t.Fatalf("unexpected modality name %q", rec.Name())
	}

	rec.Start()
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("source never ran")
	}
	rec.Stop()

	events := collected.snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Type != event.TypeKeyboard {
			t.Fatalf("unexpected event type %q", ev.Type)
		}
	}
	if events[0].Fields["key"] != "a" || events[0].Fields["action"] != "press" {
		t.Fatalf("unexpected first event fields: %v", events[0].Fields)
	}
	if events[2].Fields["key"] != "enter" {
		t.Fatalf("key not normalized: %v", events[2].Fields)
	}
}

func TestPointerRecorderConvertsSamples(t *testing.T) {
	samples := []Sample{
		{Action: ActionMove, X: 10, Y: 20},
		{Action: ActionPress, Button: "left", X: 10, Y: 20},
		{Action: ActionScroll, X: 10, Y: 20, DY: -2},
		{Action: ActionPress, Key: "a"}, // keyboard shape still converts as a button press
	}
	delivered := make(chan struct{})
	source := SourceFunc(func(ctx context.Context, emit func(Sample)) error {
		for _, s := range samples {
			emit(s)
		}
		close(delivered)
		<-ctx.Done()
		return ctx.Err()
	})

	var collected collectSink
	rec, err := NewPointer(Options{Source: source, Sink: collected.sink, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewPointer: %v", err)
	}
	if rec.Name() != "mouse" {
		t.Fatalf("unexpected modality name %q", rec.Name())
	}

	rec.Start()
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("source never ran")
	}
	rec.Stop()

	events := collected.snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Fields["action"] != "move" || events[0].Fields["x"] != 10 {
		t.Fatalf("unexpected move event: %v", events[0].Fields)
	}
	if events[1].Fields["button"] != "left" || events[1].Fields["action"] != "press" {
		t.Fatalf("unexpected button event: %v", events[1].Fields)
	}
	if events[2].Fields["dy"] != -2 || events[2].Fields["action"] != "scroll" {
		t.Fatalf("unexpected scroll event: %v", events[2].Fields)
	}
}

func TestRecorderDroppedWithoutCountingSource(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, emit func(Sample)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	rec, err := NewKeyboard(Options{Source: source, Sink: func(event.Event) {}, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewKeyboard: %v", err)
	}
	if got := rec.Dropped(); got != 0 {
		t.Fatalf("expected zero drops for non-counting source, got %d", got)
	}
}
