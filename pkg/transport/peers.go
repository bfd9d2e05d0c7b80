package transport

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PeerTracker records the connections of a listener and their last
// activity, so idle ones can be reaped.
type PeerTracker struct {
	mu    sync.Mutex
	peers map[string]*peer
	now   func() time.Time
}

type peer struct {
	id       string
	closer   io.Closer
	added    time.Time
	lastSeen time.Time
}

// PeerInfo describes a tracked peer.
type PeerInfo struct {
	ID       string
	Addr     string
	Added    time.Time
	LastSeen time.Time
}

// NewPeerTracker creates an empty tracker.
func NewPeerTracker() *PeerTracker {
	return &PeerTracker{
		peers: make(map[string]*peer),
		now:   time.Now,
	}
}

// Add registers the connection to addr and returns its connection ID.
// Adding a known address replaces the closer and keeps the ID.
func (pt *PeerTracker) Add(addr string, closer io.Closer) string {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := pt.now()
	if p, ok := pt.peers[addr]; ok {
		p.closer = closer
		p.lastSeen = now
		return p.id
	}
	p := &peer{
		id:       uuid.NewString(),
		closer:   closer,
		added:    now,
		lastSeen: now,
	}
	pt.peers[addr] = p
	return p.id
}

// Touch records activity on addr. Unknown addresses are ignored.
func (pt *PeerTracker) Touch(addr string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if p, ok := pt.peers[addr]; ok {
		p.lastSeen = pt.now()
	}
}

// ID returns the connection ID of addr, or "" if unknown.
func (pt *PeerTracker) ID(addr string) string {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if p, ok := pt.peers[addr]; ok {
		return p.id
	}
	return ""
}

// Remove forgets addr without closing it. Safe to call on absent peers.
func (pt *PeerTracker) Remove(addr string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.peers, addr)
}

// CloseIdle closes and removes peers without activity for longer than
// maxIdle, skipping those keep returns true for. It returns the closed
// addresses.
func (pt *PeerTracker) CloseIdle(maxIdle time.Duration, keep func(addr string) bool) []string {
	pt.mu.Lock()
	cutoff := pt.now().Add(-maxIdle)
	var victims []string
	var closers []io.Closer
	for addr, p := range pt.peers {
		if !p.lastSeen.Before(cutoff) {
			continue
		}
		if keep != nil && keep(addr) {
			continue
		}
		victims = append(victims, addr)
		closers = append(closers, p.closer)
		delete(pt.peers, addr)
	}
	pt.mu.Unlock()

	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
	sort.Strings(victims)
	return victims
}

// CloseAll closes and removes every peer and returns how many there were.
func (pt *PeerTracker) CloseAll() int {
	pt.mu.Lock()
	peers := pt.peers
	pt.peers = make(map[string]*peer)
	pt.mu.Unlock()

	for _, p := range peers {
		if p.closer != nil {
			_ = p.closer.Close()
		}
	}
	return len(peers)
}

// Len returns the number of tracked peers.
func (pt *PeerTracker) Len() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.peers)
}

// Peers returns the tracked peers sorted by address.
func (pt *PeerTracker) Peers() []PeerInfo {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]PeerInfo, 0, len(pt.peers))
	for addr, p := range pt.peers {
		out = append(out, PeerInfo{ID: p.id, Addr: addr, Added: p.added, LastSeen: p.lastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
