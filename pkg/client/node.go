package client

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/attribute"
	"github.com/lwm2m-node/lwm2m-go/pkg/codec"
	"github.com/lwm2m-node/lwm2m-go/pkg/connection"
	"github.com/lwm2m-node/lwm2m-go/pkg/interaction"
	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/observe"
	"github.com/lwm2m-node/lwm2m-go/pkg/registry"
	"github.com/lwm2m-node/lwm2m-go/pkg/transport"
)

// Node is an LWM2M client node. It owns the resource tree, registers it
// with a server and serves the server's requests.
type Node struct {
	config    Config
	transport transport.Transport
	logger    *slog.Logger
	plog      log.Logger

	tree       *model.Tree
	attrs      *attribute.Store
	engine     *observe.Engine
	codec      *codec.Codec
	dispatcher *interaction.Dispatcher
	conn       *connection.Manager

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes Register, Update, Deregister and ticker refreshes.
	opMu sync.Mutex

	mu       sync.RWMutex
	state    State
	lifetime int
	version  string
	binding  string
	host     string
	port     int
	location string
	elapsed  int
	sleeping bool
	closed   bool

	tickGen  uint64
	tickStop chan struct{}

	listenCancel context.CancelFunc
	reapStop     chan struct{}

	hb       *transport.Heartbeat
	hbStream transport.ResponseWriter

	eventMu       sync.RWMutex
	eventHandlers []EventHandler
}

// NewNode creates a node speaking through t. The node does not touch the
// network until Register is called.
func NewNode(config Config, t transport.Transport) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	resolver := config.Resolver
	if resolver == nil {
		resolver = registry.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config:    config,
		transport: t,
		logger:    config.Logger,
		plog:      log.OrNoop(config.ProtocolLogger),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateUnregistered,
		lifetime:  config.Lifetime,
		version:   config.Version,
		binding:   config.Binding,
	}

	n.tree = model.NewTree(resolver)
	n.attrs = attribute.NewStore(resolver, config.DefaultPmin, config.DefaultPmax)
	n.engine = observe.NewEngine(n.tree, n.attrs, observe.Config{
		Unit:     config.Tick,
		Logger:   config.Logger,
		OnNotify: n.onNotify,
		OnError:  n.onReportError,
	})
	n.tree.Subscribe(n.engine)
	n.codec = codec.New(resolver)
	n.dispatcher = interaction.NewDispatcher(n.tree, n.attrs, n.engine, n.codec, interaction.Config{
		Logger:      config.Logger,
		OnHeartbeat: n.handleHeartbeat,
		OnAnnounce:  n.onAnnounce,
		OnRequest:   config.OnRequest,
	})

	n.conn = connection.NewManager(n.reconnect, config.reconnectBackoff())
	n.conn.SetAutoReconnect(config.AutoReconnect)
	n.conn.OnReconnecting(func(attempt int, delay time.Duration) {
		n.debugLog("reconnect scheduled", "attempt", attempt, "delay", delay)
		n.emitEvent(Event{Type: EventReconnecting, Attempt: attempt, Delay: delay})
	})
	n.conn.OnAttemptError(func(attempt int, err error) {
		n.debugLog("reconnect attempt failed", "attempt", attempt, "error", err)
		n.emitEvent(Event{Type: EventError, Attempt: attempt, Error: err})
	})
	n.conn.OnStateChange(func(oldState, newState connection.State) {
		n.logState(log.StateEntityLink, oldState.String(), newState.String(), "")
	})
	n.conn.StartReconnectLoop()

	return n, nil
}

// Tree returns the resource tree.
func (n *Node) Tree() *model.Tree { return n.tree }

// Attributes returns the attribute store.
func (n *Node) Attributes() *attribute.Store { return n.attrs }

// Engine returns the observation engine.
func (n *Node) Engine() *observe.Engine { return n.engine }

// Dispatcher returns the request dispatcher.
func (n *Node) Dispatcher() *interaction.Dispatcher { return n.dispatcher }

// Codec returns the payload codec of the node.
func (n *Node) Codec() *codec.Codec { return n.codec }

// State returns the registration state.
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Session returns a snapshot of the client session.
func (n *Node) Session() Session {
	n.mu.RLock()
	s := Session{
		Name:          n.config.Name,
		Lifetime:      n.lifetime,
		Version:       n.version,
		Binding:       n.binding,
		ServerHost:    n.host,
		ServerPort:    n.port,
		Location:      n.location,
		State:         n.state,
		Elapsed:       n.elapsed,
		Sleeping:      n.sleeping,
		AutoReconnect: n.config.AutoReconnect,
		Heartbeat:     n.hbStream != nil,
	}
	listening := n.listenCancel != nil
	n.mu.RUnlock()

	if listening {
		s.ListenAddress = n.transport.Addr()
	}
	return s
}

// OnEvent registers a handler for node events. Handlers run in their own
// goroutine.
func (n *Node) OnEvent(handler EventHandler) {
	n.eventMu.Lock()
	defer n.eventMu.Unlock()
	n.eventHandlers = append(n.eventHandlers, handler)
}

// Close deregisters nothing. It stops every timer, closes the transport
// and releases the node.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.cancel()
	n.conn.Close()
	n.opMu.Lock()
	n.mu.Lock()
	n.stopTickerLocked()
	n.state = StateUnregistered
	n.mu.Unlock()
	n.opMu.Unlock()

	n.stopHeartbeat()
	n.dispatcher.Close()
	n.closeListener()
	return n.transport.Shutdown()
}

func (n *Node) isClosed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.closed
}

// serverAddr returns the registration peer as host:port.
func (n *Node) serverAddr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.host == "" {
		return ""
	}
	return net.JoinHostPort(n.host, strconv.Itoa(n.port))
}

func (n *Node) onNotify(nf observe.Notification) {
	n.plog.Log(log.Event{
		Timestamp: nf.Timestamp,
		Direction: log.DirectionOut,
		Layer:     log.LayerService,
		Category:  log.CategoryMessage,
		Endpoint:  n.config.Name,
		Notification: &log.NotificationEvent{
			Path:   nf.Path.Numeric(n.tree.Resolver()),
			Forced: nf.Forced,
		},
	})
	n.emitEvent(Event{Type: EventNotified, Path: nf.Path, Value: nf.Value, Forced: nf.Forced})
}

func (n *Node) onReportError(path model.Path, err error) {
	n.debugLog("report failed", "path", path.String(), "error", err)
	n.logError("report "+path.String(), err, nil)
	n.emitEvent(Event{Type: EventError, Path: path, Error: err})
}

func (n *Node) onAnnounce(payload []byte) {
	n.emitEvent(Event{Type: EventAnnounce, Payload: append([]byte(nil), payload...)})
}

func (n *Node) logState(entity log.StateEntity, oldState, newState, reason string) {
	n.plog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		Endpoint:  n.config.Name,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (n *Node) logError(op string, err error, code *int) {
	n.plog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerService,
		Category:  log.CategoryError,
		Endpoint:  n.config.Name,
		Error: &log.ErrorEventData{
			Layer:   log.LayerService,
			Message: err.Error(),
			Code:    code,
			Context: op,
		},
	})
}

// emitEvent sends an event to all registered handlers. It must not be
// called with n.mu held.
func (n *Node) emitEvent(event Event) {
	n.eventMu.RLock()
	handlers := n.eventHandlers
	n.eventMu.RUnlock()
	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (n *Node) debugLog(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Debug(msg, args...)
	}
}
