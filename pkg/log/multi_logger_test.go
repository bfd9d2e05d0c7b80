package log

import (
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestMultiLoggerCallsAll(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (nil skipped)", m.Len())
	}

	m.Log(Event{Timestamp: time.Now(), ConnectionID: "x"})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	r := &recordingLogger{}
	if OrNoop(r) != Logger(r) {
		t.Error("OrNoop should pass through a non-nil logger")
	}
	NoopLogger{}.Log(Event{})
}
