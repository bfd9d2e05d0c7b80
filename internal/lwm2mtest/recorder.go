// Package lwm2mtest provides an in-memory network and a fake LWM2M server
// for testing client nodes without sockets.
package lwm2mtest

import (
	"errors"
	"sync"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/transport"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// ErrAlreadyResponded is returned by a second Respond call.
var ErrAlreadyResponded = errors.New("already responded")

// Recorder is a transport.ResponseWriter that records what the handler
// sent.
type Recorder struct {
	addr string

	mu        sync.Mutex
	responded bool
	code      wire.Code
	format    wire.Format
	payload   []byte
	writes    [][]byte
	closed    bool

	respondedCh chan struct{}
	done        chan struct{}
	notify      chan []byte
}

// NewRecorder creates a recorder for a request from addr.
func NewRecorder(addr string) *Recorder {
	return &Recorder{
		addr:        addr,
		format:      wire.FormatNone,
		respondedCh: make(chan struct{}),
		done:        make(chan struct{}),
		notify:      make(chan []byte, 64),
	}
}

// Respond records the response.
func (r *Recorder) Respond(code wire.Code, format wire.Format, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded {
		return ErrAlreadyResponded
	}
	r.responded = true
	r.code = code
	r.format = format
	r.payload = append([]byte(nil), payload...)
	close(r.respondedCh)
	return nil
}

// Write records a notification.
func (r *Recorder) Write(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return transport.ErrStreamClosed
	}
	if !r.responded {
		return transport.ErrNotResponded
	}
	p := append([]byte(nil), payload...)
	r.writes = append(r.writes, p)
	select {
	case r.notify <- p:
	default:
	}
	return nil
}

// Close ends the stream. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	return nil
}

// Done is closed by Close.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// RemoteAddr returns the peer address given to NewRecorder.
func (r *Recorder) RemoteAddr() string {
	return r.addr
}

// Wait blocks until Respond was called or timeout passed.
func (r *Recorder) Wait(timeout time.Duration) bool {
	select {
	case <-r.respondedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Responded reports whether Respond was called.
func (r *Recorder) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responded
}

// Code returns the recorded response code.
func (r *Recorder) Code() wire.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// Format returns the recorded content format.
func (r *Recorder) Format() wire.Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

// Payload returns the recorded response payload.
func (r *Recorder) Payload() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payload
}

// Writes returns every notification written so far.
func (r *Recorder) Writes() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.writes...)
}

// Notifications delivers notifications as they are written. Writes are
// dropped from the channel, not from Writes, once 64 are unread.
func (r *Recorder) Notifications() <-chan []byte {
	return r.notify
}

// Closed reports whether the stream ended.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
