package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.llog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func sampleEvents(base time.Time) []Event {
	return []Event{
		{
			Timestamp: base, ConnectionID: "a", Direction: DirectionOut,
			Layer: LayerWire, Category: CategoryMessage, Endpoint: "node-1",
			Message: &MessageEvent{Type: MessageTypeRequest, Path: "/rd"},
		},
		{
			Timestamp: base.Add(time.Second), ConnectionID: "b", Direction: DirectionIn,
			Layer: LayerWire, Category: CategoryMessage, Endpoint: "node-1",
			Message: &MessageEvent{Type: MessageTypeRequest, Path: "/3303/0/5700"},
		},
		{
			Timestamp: base.Add(2 * time.Second), ConnectionID: "b", Direction: DirectionOut,
			Layer: LayerService, Category: CategoryMessage, Endpoint: "node-1",
			Notification: &NotificationEvent{Path: "/3303/0/5700", Sequence: 2},
		},
		{
			Timestamp: base.Add(3 * time.Second), ConnectionID: "a", Direction: DirectionOut,
			Layer: LayerService, Category: CategoryState, Endpoint: "node-2",
			StateChange: &StateChangeEvent{Entity: StateEntityRegistration, NewState: "REGISTERED"},
		},
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, sampleEvents(base))

	in := DirectionIn
	service := LayerService
	state := CategoryState
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "b"}, 2},
		{"direction", Filter{Direction: &in}, 1},
		{"layer", Filter{Layer: &service}, 2},
		{"category", Filter{Category: &state}, 1},
		{"time range", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"endpoint", Filter{Endpoint: "node-2"}, 1},
		{"path prefix", Filter{PathPrefix: "/3303"}, 2},
		{"combined", Filter{ConnectionID: "b", Layer: &service}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer r.Close()
			events, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("events = %d, want %d", len(events), tt.want)
			}
		})
	}
}

func TestReaderTruncatedFile(t *testing.T) {
	path := createTestLogFile(t, sampleEvents(time.Now()))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	events, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("events = %d, want 3 complete events", len(events))
	}
}

func TestReaderEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	events, err := r.ReadAll()
	if err != nil || len(events) != 0 {
		t.Errorf("ReadAll() = %d events, %v; want none", len(events), err)
	}
}
