package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Heartbeat defaults.
const (
	// DefaultHeartbeatInterval is the default interval between keep-alives.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultMaxFailures is the number of consecutive failed writes after
	// which the stream is considered dead.
	DefaultMaxFailures = 1
)

// HeartbeatConfig configures a Heartbeat.
type HeartbeatConfig struct {
	// Interval between keep-alive writes.
	Interval time.Duration

	// MaxFailures is the number of consecutive failed writes tolerated.
	MaxFailures int
}

// DefaultHeartbeatConfig returns the default heartbeat configuration.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval:    DefaultHeartbeatInterval,
		MaxFailures: DefaultMaxFailures,
	}
}

// DetectionDelay returns the longest time until a dead stream is reported.
func (c HeartbeatConfig) DetectionDelay() time.Duration {
	return c.Interval * time.Duration(c.MaxFailures)
}

// Heartbeat writes keep-alives on an open stream at a fixed interval.
// After MaxFailures consecutive failed writes it stops and calls onFailure.
type Heartbeat struct {
	config HeartbeatConfig

	send      func(seq uint32) error
	onFailure func(err error)

	sequence atomic.Uint32
	failures int
	lastBeat time.Time
	lastErr  error

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewHeartbeat creates a heartbeat. Zero config fields take defaults.
func NewHeartbeat(config HeartbeatConfig, send func(seq uint32) error, onFailure func(err error)) *Heartbeat {
	if config.Interval <= 0 {
		config.Interval = DefaultHeartbeatInterval
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = DefaultMaxFailures
	}
	return &Heartbeat{
		config:    config,
		send:      send,
		onFailure: onFailure,
		stopCh:    make(chan struct{}),
	}
}

// Start begins writing keep-alives. It is a no-op when already running.
func (hb *Heartbeat) Start(ctx context.Context) {
	hb.mu.Lock()
	if hb.running {
		hb.mu.Unlock()
		return
	}
	hb.running = true
	hb.failures = 0
	hb.stopCh = make(chan struct{})
	stopCh := hb.stopCh
	hb.mu.Unlock()

	go hb.loop(ctx, stopCh)
}

// Stop stops the heartbeat. onFailure is not called.
func (hb *Heartbeat) Stop() {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	if !hb.running {
		return
	}
	hb.running = false
	close(hb.stopCh)
}

// IsRunning returns true while keep-alives are being written.
func (hb *Heartbeat) IsRunning() bool {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return hb.running
}

// HeartbeatStats contains heartbeat statistics.
type HeartbeatStats struct {
	LastBeat   time.Time
	Failures   int
	LastError  error
	CurrentSeq uint32
}

// Stats returns current heartbeat statistics.
func (hb *Heartbeat) Stats() HeartbeatStats {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return HeartbeatStats{
		LastBeat:   hb.lastBeat,
		Failures:   hb.failures,
		LastError:  hb.lastErr,
		CurrentSeq: hb.sequence.Load(),
	}
}

func (hb *Heartbeat) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(hb.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hb.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !hb.beat(stopCh) {
				return
			}
		}
	}
}

// beat writes one keep-alive and reports whether the loop should go on.
func (hb *Heartbeat) beat(stopCh chan struct{}) bool {
	seq := hb.sequence.Add(1)
	err := hb.send(seq)

	hb.mu.Lock()
	if hb.stopCh != stopCh || !hb.running {
		hb.mu.Unlock()
		return false
	}
	if err == nil {
		hb.failures = 0
		hb.lastBeat = time.Now()
		hb.mu.Unlock()
		return true
	}

	hb.failures++
	hb.lastErr = err
	if hb.failures < hb.config.MaxFailures {
		hb.mu.Unlock()
		return true
	}
	hb.running = false
	close(hb.stopCh)
	hb.mu.Unlock()

	if hb.onFailure != nil {
		hb.onFailure(err)
	}
	return false
}
