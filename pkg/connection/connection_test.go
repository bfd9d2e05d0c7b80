package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("FixedByDefault", func(t *testing.T) {
		b := NewBackoff()
		if !b.Fixed() {
			t.Fatal("default backoff should be fixed")
		}
		for i := 0; i < 5; i++ {
			if d := b.Next(); d != ReconnectDelay {
				t.Errorf("attempt %d: delay = %v, want %v", i, d, ReconnectDelay)
			}
		}
		if b.Attempts() != 5 {
			t.Errorf("Attempts() = %d, want 5", b.Attempts())
		}
	})

	t.Run("Exponential", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    time.Second,
			Max:        8 * time.Second,
			Multiplier: 2,
		})
		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			8 * time.Second, // capped
		}
		for i, exp := range expected {
			if d := b.Next(); d != exp {
				t.Errorf("attempt %d: delay = %v, want %v", i, d, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    time.Second,
			Multiplier: 1,
			Jitter:     0.25,
		})
		for i := 0; i < 10; i++ {
			d := b.Next()
			if d < time.Second || d > 1250*time.Millisecond {
				t.Errorf("sample %d: %v out of range [1s, 1.25s]", i, d)
			}
		}
		if b.Fixed() {
			t.Error("jittered backoff should not report Fixed")
		}
	})

	t.Run("MultiplierBelowOne", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Multiplier: 0.5})
		b.Next()
		if b.Current() != time.Second {
			t.Errorf("Current() = %v, want 1s", b.Current())
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Multiplier: 2})
		for i := 0; i < 3; i++ {
			b.Next()
		}
		b.Reset()
		if b.Current() != time.Second || b.Attempts() != 0 {
			t.Errorf("after Reset: current = %v, attempts = %d", b.Current(), b.Attempts())
		}
	})
}

func TestManagerConnect(t *testing.T) {
	var calls int32
	m := NewManager(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)
	defer m.Close()

	var transitions []string
	m.OnStateChange(func(o, n State) {
		transitions = append(transitions, o.String()+"->"+n.String())
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false")
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect err = %v, want ErrAlreadyConnected", err)
	}
	want := []string{"DISCONNECTED->CONNECTING", "CONNECTING->CONNECTED"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestManagerConnectFailure(t *testing.T) {
	errRefused := errors.New("refused")
	m := NewManager(func(ctx context.Context) error { return errRefused }, nil)
	defer m.Close()

	if err := m.Connect(context.Background()); !errors.Is(err, errRefused) {
		t.Errorf("Connect err = %v, want %v", err, errRefused)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", m.State())
	}
}

func TestManagerReconnect(t *testing.T) {
	var calls int32
	m := NewManager(func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("server unavailable")
		}
		return nil
	}, NewFixedBackoff(10*time.Millisecond))
	m.SetAutoReconnect(true)
	m.StartReconnectLoop()
	defer m.Close()

	var mu sync.Mutex
	var attempts []int
	var failures int
	m.OnReconnecting(func(attempt int, delay time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, attempt)
		if delay != 10*time.Millisecond {
			t.Errorf("delay = %v, want 10ms", delay)
		}
	})
	m.OnAttemptError(func(int, error) {
		mu.Lock()
		defer mu.Unlock()
		failures++
	})
	connected := make(chan struct{}, 1)
	m.OnConnected(func() { connected <- struct{}{} })

	m.MarkConnected()
	<-connected
	m.NotifyConnectionLost()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect did not succeed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 {
		t.Errorf("attempts = %v, want 3 attempts", attempts)
	}
	if failures != 2 {
		t.Errorf("failures = %d, want 2", failures)
	}
	if m.BackoffAttempts() != 0 {
		t.Errorf("BackoffAttempts() = %d after success, want 0", m.BackoffAttempts())
	}
}

func TestManagerNoReconnectWhenDisabled(t *testing.T) {
	var calls int32
	m := NewManager(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, NewFixedBackoff(5*time.Millisecond))
	m.StartReconnectLoop()
	defer m.Close()

	m.MarkConnected()
	m.NotifyConnectionLost()
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("connect calls = %d, want 0", got)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", m.State())
	}
}

func TestManagerDisconnectStopsRetrying(t *testing.T) {
	var calls int32
	m := NewManager(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("down")
	}, NewFixedBackoff(20*time.Millisecond))
	m.SetAutoReconnect(true)
	m.StartReconnectLoop()
	defer m.Close()

	m.MarkConnected()
	m.NotifyConnectionLost()
	time.Sleep(5 * time.Millisecond)
	m.Disconnect()
	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("connect calls after Disconnect = %d, want 0", got)
	}
}

func TestManagerClose(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil }, nil)
	m.StartReconnectLoop()
	m.Close()
	m.Close()

	if m.State() != StateClosed {
		t.Errorf("State() = %v, want CLOSED", m.State())
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Connect after Close err = %v, want ErrManagerClosed", err)
	}
}
