package client

import (
	"context"

	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Sleep enters queue mode: observe timers are paused and no reports are
// sent until Wake.
func (n *Node) Sleep() {
	n.mu.Lock()
	n.sleeping = true
	n.mu.Unlock()
	n.engine.Pause()
	n.debugLog("sleeping")
}

// Wake leaves queue mode. Observe timers resume and a registration update
// tells the server the node is reachable again. An unregistered node
// resumes its timers and gets 4.04.
func (n *Node) Wake(ctx context.Context) (wire.Code, error) {
	n.mu.Lock()
	n.sleeping = false
	n.mu.Unlock()
	n.engine.Resume()
	n.debugLog("awake")

	n.opMu.Lock()
	defer n.opMu.Unlock()
	return n.update(ctx, UpdateOptions{}, true)
}

// Sleeping reports whether the node is in queue mode.
func (n *Node) Sleeping() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sleeping
}
