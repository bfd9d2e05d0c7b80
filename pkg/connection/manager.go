package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Manager errors.
var (
	ErrManagerClosed    = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// DefaultAttemptTimeout bounds a single connect attempt made by the
// reconnect loop.
const DefaultAttemptTimeout = 30 * time.Second

// State represents the link state.
type State uint8

const (
	// StateDisconnected indicates no active link.
	StateDisconnected State = iota

	// StateConnecting indicates an explicit connect is in progress.
	StateConnecting

	// StateConnected indicates an active link.
	StateConnected

	// StateReconnecting indicates the reconnect loop is retrying.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the link. It returns nil on success.
type ConnectFunc func(ctx context.Context) error

// Manager tracks the link state and reconnects after a loss.
type Manager struct {
	mu sync.RWMutex

	state          State
	backoff        *Backoff
	connectFn      ConnectFunc
	autoReconnect  bool
	attemptTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// reconnectCh holds at most one pending reconnect request.
	reconnectCh chan struct{}

	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
	onAttemptError func(attempt int, err error)
}

// NewManager creates a manager using connectFn and backoff. A nil backoff
// uses NewBackoff. Auto-reconnect starts disabled.
func NewManager(connectFn ConnectFunc, backoff *Backoff) *Manager {
	if backoff == nil {
		backoff = NewBackoff()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:          StateDisconnected,
		backoff:        backoff,
		connectFn:      connectFn,
		attemptTimeout: DefaultAttemptTimeout,
		ctx:            ctx,
		cancel:         cancel,
		reconnectCh:    make(chan struct{}, 1),
	}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if the link is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect enables or disables reconnecting after a loss.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// AutoReconnect reports whether reconnecting is enabled.
func (m *Manager) AutoReconnect() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.autoReconnect
}

// SetAttemptTimeout bounds each attempt of the reconnect loop.
func (m *Manager) SetAttemptTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.attemptTimeout = d
	}
}

// Connect runs the connect function once.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	}
	oldState := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.stateChanged(oldState, StateConnecting)

	if err := m.connectFn(ctx); err != nil {
		m.setState(StateDisconnected)
		return err
	}
	m.connected()
	return nil
}

// MarkConnected records a link established outside the manager, such as
// an explicit registration by the application.
func (m *Manager) MarkConnected() {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state == StateConnected || state == StateClosed {
		return
	}
	m.connected()
}

// Disconnect marks the link as intentionally closed. No reconnect follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateDisconnected
	m.mu.Unlock()

	m.stateChanged(oldState, StateDisconnected)
	if m.onDisconnected != nil {
		m.onDisconnected()
	}
}

// NotifyConnectionLost reports an unexpected loss of the link. With
// auto-reconnect enabled the reconnect loop starts retrying.
func (m *Manager) NotifyConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	autoReconnect := m.autoReconnect
	if autoReconnect {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	m.mu.Unlock()

	m.stateChanged(oldState, newState)
	if m.onDisconnected != nil {
		m.onDisconnected()
	}
	if autoReconnect {
		m.triggerReconnect()
	}
}

// StartReconnectLoop starts the background reconnect loop. Call it once.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

// Close stops the reconnect loop and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.stateChanged(oldState, StateClosed)
	m.cancel()
	m.wg.Wait()
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for an established link.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for a lost or closed link.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback invoked before each reconnect attempt.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// OnAttemptError sets a callback for failed reconnect attempts.
func (m *Manager) OnAttemptError(fn func(attempt int, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAttemptError = fn
}

// BackoffAttempts returns the number of reconnect attempts since the last
// success.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	oldState := m.state
	if oldState == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	m.stateChanged(oldState, s)
}

func (m *Manager) connected() {
	m.mu.Lock()
	oldState := m.state
	m.state = StateConnected
	m.backoff.Reset()
	m.mu.Unlock()

	m.stateChanged(oldState, StateConnected)
	if m.onConnected != nil {
		m.onConnected()
	}
}

func (m *Manager) stateChanged(oldState, newState State) {
	if m.onStateChange != nil && oldState != newState {
		m.onStateChange(oldState, newState)
	}
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

func (m *Manager) attemptReconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()
		if m.onReconnecting != nil {
			m.onReconnecting(attempt, delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		// An explicit connect or disconnect may have happened meanwhile.
		if m.State() != StateReconnecting {
			return
		}

		m.mu.RLock()
		timeout := m.attemptTimeout
		m.mu.RUnlock()

		ctx, cancel := context.WithTimeout(m.ctx, timeout)
		err := m.connectFn(ctx)
		cancel()

		if err == nil {
			if m.State() == StateReconnecting {
				m.connected()
			}
			return
		}
		if m.onAttemptError != nil {
			m.onAttemptError(attempt, err)
		}
	}
}
