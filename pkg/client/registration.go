package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/codec"
	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/version"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Register registers the node with the server at host:port. Failures are
// returned to the caller and never retried here.
func (n *Node) Register(ctx context.Context, host string, port int) (wire.Code, error) {
	n.opMu.Lock()
	defer n.opMu.Unlock()
	return n.register(ctx, host, port)
}

// reconnect is the connect function of the link manager. It registers
// again with the last server.
func (n *Node) reconnect(ctx context.Context) error {
	n.mu.RLock()
	host, port := n.host, n.port
	n.mu.RUnlock()

	n.opMu.Lock()
	defer n.opMu.Unlock()
	_, err := n.register(ctx, host, port)
	return err
}

func (n *Node) register(ctx context.Context, host string, port int) (wire.Code, error) {
	if n.isClosed() {
		return 0, ErrNodeClosed
	}

	n.mu.Lock()
	n.stopTickerLocked()
	old := n.state
	n.state = StateRegistering
	n.host, n.port = host, port
	n.location = ""
	req := wire.NewRequest(wire.MethodPost, "/rd").
		WithQuery("ep", n.config.Name).
		WithQuery("lt", strconv.Itoa(n.lifetime)).
		WithQuery("lwm2m", n.version).
		WithQuery("b", n.binding).
		WithPayload(wire.FormatLinkFormat, n.objectList())
	n.mu.Unlock()
	n.logState(log.StateEntityRegistration, old.String(), StateRegistering.String(), "")

	n.debugLog("registering", "server", host, "port", port, "endpoint", n.config.Name)
	resp, err := n.send(ctx, host, port, req)
	if err != nil {
		n.setState(StateUnregistered, err.Error())
		return 0, fmt.Errorf("register: %w", err)
	}
	if resp.Code != wire.CodeCreated {
		n.setState(StateUnregistered, resp.Code.String())
		return resp.Code, &StatusError{Op: "register", Code: resp.Code}
	}
	location := resp.LocationPath()
	if location == "" {
		n.setState(StateUnregistered, ErrNoLocation.Error())
		return resp.Code, ErrNoLocation
	}

	n.mu.Lock()
	n.location = location
	n.elapsed = 0
	n.state = StateRegistered
	n.startTickerLocked()
	n.mu.Unlock()
	n.logState(log.StateEntityRegistration, StateRegistering.String(), StateRegistered.String(), location)

	if err := n.openListener(); err != nil {
		n.debugLog("listener failed", "error", err)
		n.emitEvent(Event{Type: EventError, Error: err})
	}
	n.conn.MarkConnected()

	n.debugLog("registered", "location", location)
	n.emitEvent(Event{Type: EventRegistered, Location: location, Code: resp.Code})
	return resp.Code, nil
}

// Update sends a registration update carrying the changed fields of opts.
// An update without changes is answered locally with 2.04. When the node
// is not registered the result is 4.04 without an error.
func (n *Node) Update(ctx context.Context, opts UpdateOptions) (wire.Code, error) {
	n.opMu.Lock()
	defer n.opMu.Unlock()
	return n.update(ctx, opts, false)
}

// update sends the registration update. With refresh set the lifetime is
// sent even when unchanged.
func (n *Node) update(ctx context.Context, opts UpdateOptions, refresh bool) (wire.Code, error) {
	if n.isClosed() {
		return 0, ErrNodeClosed
	}
	if opts.Lifetime != nil && *opts.Lifetime <= 0 {
		return wire.CodeBadRequest, fmt.Errorf("%w: lifetime must be positive", ErrInvalidOptions)
	}
	if opts.Version != nil {
		if err := version.Check(*opts.Version); err != nil {
			return wire.CodeBadRequest, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}
	if opts.Binding != nil {
		if err := version.CheckBinding(*opts.Binding); err != nil {
			return wire.CodeBadRequest, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}

	n.mu.Lock()
	if n.state != StateRegistered {
		n.mu.Unlock()
		return wire.CodeNotFound, nil
	}

	lifetime, enabler, binding := n.lifetime, n.version, n.binding
	req := wire.NewRequest(wire.MethodPost, n.location)
	changed := false
	if opts.Lifetime != nil && *opts.Lifetime != n.lifetime {
		lifetime = *opts.Lifetime
		changed = true
	}
	if changed || refresh {
		req.WithQuery("lt", strconv.Itoa(lifetime))
	}
	if opts.Version != nil && *opts.Version != n.version {
		enabler = *opts.Version
		req.WithQuery("lwm2m", enabler)
		changed = true
	}
	if opts.Binding != nil && *opts.Binding != n.binding {
		binding = *opts.Binding
		req.WithQuery("b", binding)
		changed = true
	}
	if opts.ObjectList {
		req.WithPayload(wire.FormatLinkFormat, n.objectList())
		changed = true
	}
	if !changed && !refresh {
		n.mu.Unlock()
		return wire.CodeChanged, nil
	}
	n.state = StateUpdating
	host, port := n.host, n.port
	n.mu.Unlock()
	n.logState(log.StateEntityRegistration, StateRegistered.String(), StateUpdating.String(), "")

	resp, err := n.send(ctx, host, port, req)
	if err != nil {
		n.unregister(err.Error())
		return 0, fmt.Errorf("update: %w", err)
	}

	switch {
	case resp.Code.IsSuccess():
		n.mu.Lock()
		n.lifetime, n.version, n.binding = lifetime, enabler, binding
		n.elapsed = 0
		n.state = StateRegistered
		location := n.location
		n.mu.Unlock()
		n.logState(log.StateEntityRegistration, StateUpdating.String(), StateRegistered.String(), "")
		n.emitEvent(Event{Type: EventUpdated, Location: location, Code: resp.Code})
		return resp.Code, nil

	case resp.Code == wire.CodeNotFound:
		// The server dropped the registration.
		n.unregister(resp.Code.String())
		return resp.Code, nil

	default:
		n.setState(StateRegistered, resp.Code.String())
		return resp.Code, &StatusError{Op: "update", Code: resp.Code}
	}
}

// Deregister removes the registration. When the node is not registered
// the result is 4.04 without an error. Timers, observers and the listener
// are stopped whatever the server answers.
func (n *Node) Deregister(ctx context.Context) (wire.Code, error) {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.Lock()
	if n.state == StateUnregistered {
		n.mu.Unlock()
		return wire.CodeNotFound, nil
	}
	n.stopTickerLocked()
	old := n.state
	location, host, port := n.location, n.host, n.port
	n.mu.Unlock()

	resp, err := n.send(ctx, host, port, wire.NewRequest(wire.MethodDelete, location))

	n.mu.Lock()
	n.state = StateUnregistered
	n.location = ""
	n.elapsed = 0
	n.mu.Unlock()
	n.logState(log.StateEntityRegistration, old.String(), StateUnregistered.String(), "deregister")

	n.dispatcher.CancelObservations()
	n.stopHeartbeat()
	n.closeListener()
	n.conn.Disconnect()

	var code wire.Code
	if resp != nil {
		code = resp.Code
	}
	n.emitEvent(Event{Type: EventDeregistered, Location: location, Code: code})

	if err != nil {
		return 0, fmt.Errorf("deregister: %w", err)
	}
	if resp.Code != wire.CodeDeleted {
		return resp.Code, &StatusError{Op: "deregister", Code: resp.Code}
	}
	return resp.Code, nil
}

// Bootstrap asks the bootstrap server at host:port to provision the node.
func (n *Node) Bootstrap(ctx context.Context, host string, port int) (wire.Code, error) {
	if n.isClosed() {
		return 0, ErrNodeClosed
	}
	req := wire.NewRequest(wire.MethodPost, "/bs").WithQuery("ep", n.config.Name)
	resp, err := n.send(ctx, host, port, req)
	if err != nil {
		return 0, fmt.Errorf("bootstrap: %w", err)
	}
	n.emitEvent(Event{Type: EventBootstrap, Code: resp.Code})
	if !resp.Code.IsSuccess() {
		return resp.Code, &StatusError{Op: "bootstrap", Code: resp.Code}
	}
	return resp.Code, nil
}

// Ping checks that the registration server answers.
func (n *Node) Ping(ctx context.Context) error {
	n.mu.RLock()
	host, port := n.host, n.port
	n.mu.RUnlock()
	if host == "" {
		return ErrNotRegistered
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.RequestTimeout)
	defer cancel()
	if err := n.transport.Ping(ctx, host, port); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (n *Node) send(ctx context.Context, host string, port int, req *wire.Request) (*wire.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, n.config.RequestTimeout)
	defer cancel()
	return n.transport.Send(ctx, host, port, req)
}

// objectList returns the link-format list of objects and instances.
func (n *Node) objectList() []byte {
	paths := n.tree.Objects()
	links := make([]codec.Link, 0, len(paths))
	for _, p := range paths {
		links = append(links, codec.Link{Target: p.Numeric(n.tree.Resolver())})
	}
	return codec.FormatLinks(links)
}

func (n *Node) setState(s State, reason string) {
	n.mu.Lock()
	old := n.state
	n.state = s
	n.mu.Unlock()
	if old != s {
		n.logState(log.StateEntityRegistration, old.String(), s.String(), reason)
	}
}

// unregister drops the local registration after the server lost it.
func (n *Node) unregister(reason string) {
	n.mu.Lock()
	n.stopTickerLocked()
	old := n.state
	n.state = StateUnregistered
	n.mu.Unlock()
	n.logState(log.StateEntityRegistration, old.String(), StateUnregistered.String(), reason)
	n.conn.Disconnect()
}

// refreshAfterLocked returns the elapsed lifetime seconds after which the
// registration is refreshed.
func (n *Node) refreshAfterLocked() int {
	margin := int(n.config.RefreshMargin / time.Second)
	if margin >= n.lifetime {
		margin = n.lifetime / 2
	}
	return n.lifetime - margin
}

func (n *Node) startTickerLocked() {
	n.stopTickerLocked()
	stop := make(chan struct{})
	n.tickStop = stop
	go n.runTicker(n.tickGen, stop)
}

func (n *Node) stopTickerLocked() {
	n.tickGen++
	if n.tickStop != nil {
		close(n.tickStop)
		n.tickStop = nil
	}
}

func (n *Node) runTicker(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(n.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			n.mu.Lock()
			if n.tickGen != gen {
				n.mu.Unlock()
				return
			}
			if n.state != StateRegistered {
				n.mu.Unlock()
				continue
			}
			n.elapsed++
			due := n.elapsed >= n.refreshAfterLocked()
			n.mu.Unlock()

			if due {
				n.refresh(gen)
			}
		}
	}
}

// refresh sends the lifetime update of the ticker.
func (n *Node) refresh(gen uint64) {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.Lock()
	if n.tickGen != gen || n.state != StateRegistered {
		n.mu.Unlock()
		return
	}
	n.elapsed = 0
	n.state = StateUpdating
	lifetime := n.lifetime
	location, host, port := n.location, n.host, n.port
	n.mu.Unlock()

	req := wire.NewRequest(wire.MethodPost, location).WithQuery("lt", strconv.Itoa(lifetime))
	resp, err := n.send(n.ctx, host, port, req)

	switch {
	case err != nil:
		n.setState(StateRegistered, err.Error())
		n.debugLog("refresh failed", "error", err)
		n.logError("refresh", err, nil)
		n.emitEvent(Event{Type: EventError, Location: location, Error: fmt.Errorf("refresh: %w", err)})

	case resp.Code == wire.CodeNotFound:
		n.debugLog("registration lost", "location", location)
		n.unregister("refresh: " + resp.Code.String())
		n.emitEvent(Event{Type: EventError, Location: location, Code: resp.Code,
			Error: &StatusError{Op: "refresh", Code: resp.Code}})

	case !resp.Code.IsSuccess():
		n.setState(StateRegistered, resp.Code.String())
		code := int(resp.Code)
		statusErr := &StatusError{Op: "refresh", Code: resp.Code}
		n.logError("refresh", statusErr, &code)
		n.emitEvent(Event{Type: EventError, Location: location, Code: resp.Code, Error: statusErr})

	default:
		n.setState(StateRegistered, "")
		n.emitEvent(Event{Type: EventUpdated, Location: location, Code: resp.Code})
	}
}
