package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/connection"
	"github.com/lwm2m-node/lwm2m-go/pkg/interaction"
	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/version"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Node errors.
var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrNodeClosed     = errors.New("node closed")
	ErrNoLocation     = errors.New("registration response without location")
	ErrNotRegistered  = errors.New("not registered")
	ErrInvalidOptions = errors.New("invalid update options")
)

// Defaults.
const (
	DefaultLifetime          = 86400
	DefaultVersion           = version.Current
	DefaultBinding           = "U"
	DefaultListenAddress     = ":5683"
	DefaultRefreshMargin     = 5 * time.Second
	DefaultTick              = time.Second
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultReapInterval      = 60 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
)

// State is the registration state of a node.
type State uint8

const (
	// StateUnregistered - no registration on the server.
	StateUnregistered State = iota

	// StateRegistering - a register request is in flight.
	StateRegistering

	// StateRegistered - registered, the lifetime ticker runs.
	StateRegistered

	// StateUpdating - an update request is in flight.
	StateUpdating
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateRegistering:
		return "REGISTERING"
	case StateRegistered:
		return "REGISTERED"
	case StateUpdating:
		return "UPDATING"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Node.
type Config struct {
	// Name is the client endpoint name. Required.
	Name string

	// Lifetime is the registration lifetime in seconds.
	Lifetime int

	// Version is the LWM2M protocol version sent on registration.
	Version string

	// Binding is the transport binding mode, "U" for UDP or "UQ" for
	// UDP with queue mode.
	Binding string

	// ListenAddress is where the node serves server requests.
	ListenAddress string

	// RefreshMargin is how long before the lifetime ends the update is
	// sent. It is clamped below the lifetime.
	RefreshMargin time.Duration

	// Tick is the real duration of one lifetime second.
	Tick time.Duration

	// AutoReconnect re-registers after the heartbeat stream ended.
	AutoReconnect bool

	// ReconnectDelay is the delay before the first reconnect attempt.
	ReconnectDelay time.Duration

	// ReconnectMultiplier scales the delay after each failed attempt, up to
	// ReconnectMaxDelay. 1 keeps every delay at ReconnectDelay.
	ReconnectMultiplier float64

	// ReconnectMaxDelay caps a growing delay. Zero means one minute.
	ReconnectMaxDelay time.Duration

	// ReconnectJitter adds a random share of up to this fraction to each
	// delay.
	ReconnectJitter float64

	// HeartbeatInterval is the keep-alive interval on the heartbeat stream.
	HeartbeatInterval time.Duration

	// ReapInterval is the period of the idle connection sweep. Zero
	// disables it.
	ReapInterval time.Duration

	// RequestTimeout bounds each request sent to the server.
	RequestTimeout time.Duration

	// DefaultPmin and DefaultPmax apply to paths without own attributes.
	DefaultPmin int
	DefaultPmax int

	// Resolver maps numeric identifiers to symbolic names. Nil uses the
	// built-in objects.
	Resolver model.Resolver

	// OnRequest is called after each served request.
	OnRequest func(op interaction.Operation, code wire.Code, elapsed time.Duration)

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives registration, link and notification events.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with sensible defaults. Name still has
// to be set.
func DefaultConfig() Config {
	return Config{
		Lifetime:            DefaultLifetime,
		Version:             DefaultVersion,
		Binding:             DefaultBinding,
		ListenAddress:       DefaultListenAddress,
		RefreshMargin:       DefaultRefreshMargin,
		Tick:                DefaultTick,
		ReconnectDelay:      connection.ReconnectDelay,
		ReconnectMultiplier: 1,
		HeartbeatInterval:   DefaultHeartbeatInterval,
		ReapInterval:        DefaultReapInterval,
		RequestTimeout:      DefaultRequestTimeout,
		DefaultPmin:         0,
		DefaultPmax:         60,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	case c.Lifetime <= 0:
		return fmt.Errorf("%w: lifetime must be positive", ErrInvalidConfig)
	case c.Tick <= 0:
		return fmt.Errorf("%w: tick must be positive", ErrInvalidConfig)
	case c.RefreshMargin < 0:
		return fmt.Errorf("%w: refresh margin must not be negative", ErrInvalidConfig)
	case c.ReconnectDelay <= 0:
		return fmt.Errorf("%w: reconnect delay must be positive", ErrInvalidConfig)
	case c.ReconnectMultiplier < 1:
		return fmt.Errorf("%w: reconnect multiplier must be at least 1", ErrInvalidConfig)
	case c.ReconnectMaxDelay < 0 || c.ReconnectJitter < 0:
		return fmt.Errorf("%w: reconnect max delay and jitter must not be negative", ErrInvalidConfig)
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("%w: heartbeat interval must be positive", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	case c.DefaultPmin < 0 || c.DefaultPmax < 0:
		return fmt.Errorf("%w: default periods must not be negative", ErrInvalidConfig)
	}
	if err := version.Check(c.Version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := version.CheckBinding(c.Binding); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// UpdateOptions selects what a registration update changes. Nil fields
// are left as they are.
type UpdateOptions struct {
	Lifetime *int
	Version  *string
	Binding  *string

	// ObjectList re-sends the object list.
	ObjectList bool
}

// Session is a snapshot of the client session.
type Session struct {
	Name     string
	Lifetime int
	Version  string
	Binding  string

	ServerHost string
	ServerPort int

	// Location is the registration path assigned by the server.
	Location string

	State State

	// Elapsed is the number of lifetime seconds since the last refresh.
	Elapsed int

	Sleeping      bool
	AutoReconnect bool

	// Heartbeat is set while the heartbeat stream is open.
	Heartbeat bool

	// ListenAddress is the bound listener address, empty when closed.
	ListenAddress string
}

// StatusError reports an unexpected response code from the server.
type StatusError struct {
	Op   string
	Code wire.Code
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server answered %s", e.Op, e.Code.Dotted())
}

// EventType identifies a node event.
type EventType uint8

const (
	// EventRegistered - registration created.
	EventRegistered EventType = iota

	// EventUpdated - registration updated.
	EventUpdated

	// EventDeregistered - registration removed.
	EventDeregistered

	// EventNotified - an observe notification was pushed.
	EventNotified

	// EventLogin - the heartbeat stream opened.
	EventLogin

	// EventLogout - the heartbeat stream ended.
	EventLogout

	// EventOffline - the server is considered unreachable.
	EventOffline

	// EventReconnecting - a reconnect attempt is scheduled.
	EventReconnecting

	// EventError - a background operation failed.
	EventError

	// EventAnnounce - the server posted to /announce.
	EventAnnounce

	// EventBootstrap - a bootstrap request was answered.
	EventBootstrap
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventRegistered:
		return "REGISTERED"
	case EventUpdated:
		return "UPDATED"
	case EventDeregistered:
		return "DEREGISTERED"
	case EventNotified:
		return "NOTIFIED"
	case EventLogin:
		return "LOGIN"
	case EventLogout:
		return "LOGOUT"
	case EventOffline:
		return "OFFLINE"
	case EventReconnecting:
		return "RECONNECTING"
	case EventError:
		return "ERROR"
	case EventAnnounce:
		return "ANNOUNCE"
	case EventBootstrap:
		return "BOOTSTRAP"
	default:
		return "UNKNOWN"
	}
}

// Event represents a node event.
type Event struct {
	// Type is the event type.
	Type EventType

	// Path is the notified path (for notification events).
	Path model.Path

	// Value is the notified value (for notification events).
	Value any

	// Forced is set when pmax forced the notification.
	Forced bool

	// Location is the registration path (for registration events).
	Location string

	// Code is the server response code, when there was one.
	Code wire.Code

	// Attempt is the reconnect attempt number.
	Attempt int

	// Delay is the wait before the reconnect attempt.
	Delay time.Duration

	// Payload is the announce payload.
	Payload []byte

	// Error is set if the event is an error.
	Error error
}

// EventHandler handles node events.
type EventHandler func(Event)

// reconnectBackoff builds the backoff spacing reconnect attempts.
func (c *Config) reconnectBackoff() *connection.Backoff {
	if c.ReconnectMultiplier <= 1 && c.ReconnectJitter == 0 {
		return connection.NewFixedBackoff(c.ReconnectDelay)
	}
	return connection.NewBackoffWithConfig(connection.BackoffConfig{
		Initial:    c.ReconnectDelay,
		Max:        c.ReconnectMaxDelay,
		Multiplier: c.ReconnectMultiplier,
		Jitter:     c.ReconnectJitter,
	})
}
