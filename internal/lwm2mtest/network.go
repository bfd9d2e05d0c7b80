package lwm2mtest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/transport"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// ErrUnreachable is returned when no server answers at an address.
var ErrUnreachable = errors.New("host unreachable")

// Handler answers requests sent to an in-memory server.
type Handler interface {
	Handle(req *wire.Request) (*wire.Response, error)
}

var _ transport.Transport = (*Network)(nil)

// Network connects a client node to in-memory servers. It implements
// transport.Client for outbound requests and transport.Listener for
// requests a test delivers to the node.
type Network struct {
	mu      sync.Mutex
	servers map[string]Handler
	sent    []*wire.Request

	handler transport.Handler
	addr    string
	gen     int
	peers   *transport.PeerTracker
	conns   map[string]*peerConn
}

// peerConn holds the open streams of one peer so reaping can end them.
type peerConn struct {
	mu      sync.Mutex
	streams []*Recorder
}

func (c *peerConn) Close() error {
	c.mu.Lock()
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()
	for _, r := range streams {
		_ = r.Close()
	}
	return nil
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		servers: make(map[string]Handler),
		peers:   transport.NewPeerTracker(),
		conns:   make(map[string]*peerConn),
	}
}

// AddServer makes h reachable at host:port.
func (n *Network) AddServer(host string, port int, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[net.JoinHostPort(host, strconv.Itoa(port))] = h
}

// RemoveServer makes host:port unreachable.
func (n *Network) RemoveServer(host string, port int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, net.JoinHostPort(host, strconv.Itoa(port)))
}

// Send implements transport.Client.
func (n *Network) Send(ctx context.Context, host string, port int, req *wire.Request) (*wire.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := net.JoinHostPort(host, strconv.Itoa(port))
	n.mu.Lock()
	h, ok := n.servers[target]
	n.sent = append(n.sent, req)
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("send %s %s: %w", req.Method, target, ErrUnreachable)
	}
	return h.Handle(req)
}

// Ping implements transport.Client.
func (n *Network) Ping(ctx context.Context, host string, port int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := net.JoinHostPort(host, strconv.Itoa(port))
	n.mu.Lock()
	_, ok := n.servers[target]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("ping %s: %w", target, ErrUnreachable)
	}
	return nil
}

// Sent returns every request sent through the network.
func (n *Network) Sent() []*wire.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*wire.Request(nil), n.sent...)
}

// Listen implements transport.Listener.
func (n *Network) Listen(ctx context.Context, addr string, h transport.Handler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.handler != nil {
		return transport.ErrAlreadyStarted
	}
	if addr == "" {
		addr = "127.0.0.1:5683"
	}
	n.handler = h
	n.addr = addr
	n.gen++
	gen := n.gen

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		current := n.gen == gen && n.handler != nil
		n.mu.Unlock()
		if current {
			_ = n.Close()
		}
	}()
	return nil
}

// Addr implements transport.Listener.
func (n *Network) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.addr
}

// Listening reports whether the node listens.
func (n *Network) Listening() bool {
	return n.Addr() != ""
}

// CloseIdle implements transport.Listener.
func (n *Network) CloseIdle(maxIdle time.Duration, keep func(addr string) bool) int {
	closed := n.peers.CloseIdle(maxIdle, keep)
	n.mu.Lock()
	for _, addr := range closed {
		delete(n.conns, addr)
	}
	n.mu.Unlock()
	return len(closed)
}

// Peers returns the addresses that delivered requests and were not reaped.
func (n *Network) Peers() []string {
	var out []string
	for _, p := range n.peers.Peers() {
		out = append(out, p.Addr)
	}
	return out
}

// Close implements transport.Listener.
func (n *Network) Close() error {
	n.mu.Lock()
	n.handler = nil
	n.addr = ""
	n.conns = make(map[string]*peerConn)
	n.mu.Unlock()
	n.peers.CloseAll()
	return nil
}

// Shutdown implements transport.Transport.
func (n *Network) Shutdown() error {
	return n.Close()
}

// Deliver hands req from peer to the node's handler and returns the
// recorder of the response. It fails when the node does not listen.
func (n *Network) Deliver(peer string, req *wire.Request) (*Recorder, error) {
	n.mu.Lock()
	h := n.handler
	if h == nil {
		n.mu.Unlock()
		return nil, fmt.Errorf("deliver to node: %w", ErrUnreachable)
	}
	conn, ok := n.conns[peer]
	if !ok {
		conn = &peerConn{}
		n.conns[peer] = conn
	}
	n.mu.Unlock()

	n.peers.Add(peer, conn)
	rec := NewRecorder(peer)
	conn.mu.Lock()
	conn.streams = append(conn.streams, rec)
	conn.mu.Unlock()

	h(rec, req)
	return rec, nil
}

// Request delivers req from peer and waits for the response.
func (n *Network) Request(peer string, req *wire.Request, timeout time.Duration) (*Recorder, error) {
	rec, err := n.Deliver(peer, req)
	if err != nil {
		return nil, err
	}
	if !rec.Wait(timeout) {
		return rec, fmt.Errorf("%s %s: no response within %s", req.Method, req.Path, timeout)
	}
	return rec, nil
}
