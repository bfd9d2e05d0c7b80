package client

import (
	"github.com/google/uuid"

	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/transport"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// handleHeartbeat serves observe and cancel-observe on the heartbeat path.
// An observe opens the heartbeat stream, replacing an older one. The node
// then writes a keep-alive token every HeartbeatInterval until the stream
// ends.
func (n *Node) handleHeartbeat(w transport.ResponseWriter, req *wire.Request) {
	if req.Observe != nil && *req.Observe == wire.ObserveDeregister {
		_ = w.Respond(wire.CodeContent, wire.FormatNone, nil)
		if n.stopHeartbeat() {
			n.debugLog("heartbeat cancelled", "peer", w.RemoteAddr())
			n.emitEvent(Event{Type: EventLogout})
		}
		return
	}

	if err := w.Respond(wire.CodeContent, wire.FormatTextPlain, []byte(n.config.Name)); err != nil {
		n.debugLog("heartbeat respond failed", "error", err)
		return
	}

	hb := transport.NewHeartbeat(transport.HeartbeatConfig{Interval: n.config.HeartbeatInterval},
		func(uint32) error {
			return w.Write([]byte(uuid.NewString()))
		},
		func(err error) {
			n.heartbeatLost(w, err)
		})

	n.mu.Lock()
	oldHB, oldStream := n.hb, n.hbStream
	n.hb, n.hbStream = hb, w
	n.mu.Unlock()

	if oldHB != nil {
		oldHB.Stop()
	}
	if oldStream != nil {
		_ = oldStream.Close()
	}

	hb.Start(n.ctx)
	go n.watchHeartbeat(w)

	n.debugLog("heartbeat stream opened", "peer", w.RemoteAddr())
	n.logState(log.StateEntityObservation, "", "HEARTBEAT", w.RemoteAddr())
	n.emitEvent(Event{Type: EventLogin})
}

func (n *Node) watchHeartbeat(w transport.ResponseWriter) {
	select {
	case <-w.Done():
		n.heartbeatLost(w, transport.ErrStreamClosed)
	case <-n.ctx.Done():
	}
}

// heartbeatLost handles the end of stream w. The node counts as offline:
// it drops the registration and, with auto-reconnect, registers again.
func (n *Node) heartbeatLost(w transport.ResponseWriter, reason error) {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.Lock()
	if n.hbStream != w {
		n.mu.Unlock()
		return
	}
	hb := n.hb
	n.hb, n.hbStream = nil, nil
	n.stopTickerLocked()
	old := n.state
	n.state = StateUnregistered
	closed := n.closed
	n.mu.Unlock()

	hb.Stop()
	_ = w.Close()
	if closed {
		return
	}

	n.debugLog("heartbeat lost", "peer", w.RemoteAddr(), "reason", reason)
	n.logState(log.StateEntityRegistration, old.String(), StateUnregistered.String(), "heartbeat: "+reason.Error())
	n.emitEvent(Event{Type: EventLogout, Error: reason})
	n.emitEvent(Event{Type: EventOffline, Error: reason})
	n.conn.NotifyConnectionLost()
}

// stopHeartbeat ends the heartbeat stream without the offline handling.
// It reports whether a stream was open.
func (n *Node) stopHeartbeat() bool {
	n.mu.Lock()
	hb, w := n.hb, n.hbStream
	n.hb, n.hbStream = nil, nil
	n.mu.Unlock()

	if w == nil {
		return false
	}
	hb.Stop()
	_ = w.Close()
	return true
}

// heartbeatPeer returns the address of the heartbeat stream, if open.
func (n *Node) heartbeatPeer() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.hbStream == nil {
		return ""
	}
	return n.hbStream.RemoteAddr()
}
