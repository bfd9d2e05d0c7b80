package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Default retry parameters.
const (
	// ReconnectDelay is the delay between registration attempts.
	ReconnectDelay = 5 * time.Second

	// MaxBackoff caps exponential delays.
	MaxBackoff = 60 * time.Second
)

// Backoff calculates retry delays. A multiplier of 1 gives a fixed delay.
type Backoff struct {
	mu sync.Mutex

	// Current delay (before jitter)
	current time.Duration

	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	attempts int

	rng *rand.Rand
}

// NewBackoff creates a fixed backoff waiting ReconnectDelay.
func NewBackoff() *Backoff {
	return NewFixedBackoff(ReconnectDelay)
}

// NewFixedBackoff creates a backoff that always waits delay.
func NewFixedBackoff(delay time.Duration) *Backoff {
	return NewBackoffWithConfig(BackoffConfig{
		Initial:    delay,
		Max:        delay,
		Multiplier: 1,
	})
}

// BackoffConfig allows customizing backoff parameters.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
// A multiplier below 1 is treated as 1.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = ReconnectDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Reset restores the initial delay. Call this after a successful attempt.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base delay (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Fixed reports whether every delay is the same.
func (b *Backoff) Fixed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.multiplier == 1 && b.jitter == 0
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}
