package client

import (
	"context"
	"fmt"
	"time"
)

// openListener starts serving server requests unless already serving.
func (n *Node) openListener() error {
	n.mu.Lock()
	if n.listenCancel != nil {
		n.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(n.ctx)
	n.listenCancel = cancel
	n.mu.Unlock()

	if err := n.transport.Listen(ctx, n.config.ListenAddress, n.dispatcher.Serve); err != nil {
		cancel()
		n.mu.Lock()
		n.listenCancel = nil
		n.mu.Unlock()
		return fmt.Errorf("listen %s: %w", n.config.ListenAddress, err)
	}
	n.debugLog("listening", "addr", n.transport.Addr())
	n.startReaper()
	return nil
}

func (n *Node) closeListener() {
	n.mu.Lock()
	cancel := n.listenCancel
	n.listenCancel = nil
	stop := n.reapStop
	n.reapStop = nil
	n.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if cancel == nil {
		return
	}
	cancel()
	if err := n.transport.Close(); err != nil {
		n.debugLog("listener close failed", "error", err)
	}
}

func (n *Node) startReaper() {
	if n.config.ReapInterval <= 0 {
		return
	}
	n.mu.Lock()
	if n.reapStop != nil {
		n.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	n.reapStop = stop
	n.mu.Unlock()

	go n.runReaper(stop)
}

// runReaper periodically closes idle secondary peer connections.
func (n *Node) runReaper(stop <-chan struct{}) {
	ticker := time.NewTicker(n.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			n.reapIdle(n.config.ReapInterval)
		}
	}
}

// reapIdle closes peer connections idle for longer than maxIdle. The
// registration peer, the heartbeat peer and peers with observers are kept.
func (n *Node) reapIdle(maxIdle time.Duration) int {
	server := n.serverAddr()
	heartbeat := n.heartbeatPeer()
	closed := n.transport.CloseIdle(maxIdle, func(addr string) bool {
		return addr == server || addr == heartbeat || n.dispatcher.ObservedBy(addr)
	})
	if closed > 0 {
		n.debugLog("reaped idle connections", "count", closed)
	}
	return closed
}
