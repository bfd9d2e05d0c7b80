package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestHeartbeatConfig(t *testing.T) {
	config := DefaultHeartbeatConfig()
	if config.Interval != DefaultHeartbeatInterval {
		t.Errorf("Interval = %v, want %v", config.Interval, DefaultHeartbeatInterval)
	}
	if config.DetectionDelay() != 30*time.Second {
		t.Errorf("DetectionDelay = %v, want 30s", config.DetectionDelay())
	}

	hb := NewHeartbeat(HeartbeatConfig{}, func(uint32) error { return nil }, nil)
	if hb.config.Interval != DefaultHeartbeatInterval || hb.config.MaxFailures != DefaultMaxFailures {
		t.Errorf("zero config not defaulted: %+v", hb.config)
	}
}

func TestHeartbeatWritesPeriodically(t *testing.T) {
	var beats atomic.Int32
	hb := NewHeartbeat(HeartbeatConfig{Interval: 20 * time.Millisecond},
		func(seq uint32) error {
			beats.Add(1)
			return nil
		}, func(error) {
			t.Error("onFailure called for a healthy stream")
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hb.Start(ctx)
	hb.Start(ctx) // no-op

	time.Sleep(110 * time.Millisecond)
	hb.Stop()
	hb.Stop()

	if n := beats.Load(); n < 3 {
		t.Errorf("beats = %d, want at least 3", n)
	}
	stats := hb.Stats()
	if stats.CurrentSeq < 3 {
		t.Errorf("CurrentSeq = %d, want at least 3", stats.CurrentSeq)
	}
	if stats.LastBeat.IsZero() {
		t.Error("LastBeat not recorded")
	}
	if hb.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestHeartbeatReportsFailure(t *testing.T) {
	errGone := errors.New("stream gone")
	var calls atomic.Int32
	failed := make(chan error, 1)

	hb := NewHeartbeat(HeartbeatConfig{Interval: 10 * time.Millisecond, MaxFailures: 2},
		func(uint32) error {
			calls.Add(1)
			return errGone
		}, func(err error) { failed <- err })
	hb.Start(context.Background())

	select {
	case err := <-failed:
		if !errors.Is(err, errGone) {
			t.Errorf("onFailure err = %v, want %v", err, errGone)
		}
	case <-time.After(time.Second):
		t.Fatal("onFailure not called")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("send calls = %d, want 2", n)
	}
	if hb.IsRunning() {
		t.Error("heartbeat should stop after reporting failure")
	}
}

func TestHeartbeatStopsWithContext(t *testing.T) {
	hb := NewHeartbeat(HeartbeatConfig{Interval: time.Hour}, func(uint32) error { return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	hb.Start(ctx)
	cancel()

	deadline := time.Now().Add(time.Second)
	for hb.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hb.IsRunning() {
		t.Error("heartbeat still running after context cancel")
	}
}
