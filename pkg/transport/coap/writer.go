package coap

import (
	"bytes"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"

	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/transport"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// responseWriter answers one CoAP request. For an accepted observe
// request it keeps pushing notifications on the same connection.
type responseWriter struct {
	t      *Transport
	conn   mux.Conn
	req    *wire.Request
	remote string
	connID string

	mu        sync.Mutex
	resp      *wire.Response
	responded chan struct{}
	abandoned bool
	observing bool
	seq       uint32
	closed    bool
	done      chan struct{}
}

var _ transport.ResponseWriter = (*responseWriter)(nil)

func newResponseWriter(t *Transport, conn mux.Conn, req *wire.Request, remote, connID string) *responseWriter {
	rw := &responseWriter{
		t:         t,
		conn:      conn,
		req:       req,
		remote:    remote,
		connID:    connID,
		responded: make(chan struct{}),
		done:      make(chan struct{}),
	}
	if req.Observe != nil && *req.Observe == wire.ObserveRegister {
		conn.AddOnClose(func() { _ = rw.Close() })
	}
	return rw
}

// Respond records the response; the CoAP handler sends it.
func (rw *responseWriter) Respond(code wire.Code, format wire.Format, payload []byte) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.resp != nil || rw.abandoned {
		return transport.ErrStreamClosed
	}
	rw.resp = &wire.Response{Code: code, ContentFormat: format, Payload: payload}
	rw.observing = code.IsSuccess() && rw.req.Observe != nil && *rw.req.Observe == wire.ObserveRegister
	if rw.observing {
		rw.seq = 1
	} else {
		rw.closeLocked()
	}
	close(rw.responded)
	return nil
}

func (rw *responseWriter) response() *wire.Response {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.resp
}

func (rw *responseWriter) observeSeq() (uint32, bool) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.seq, rw.observing
}

// abandon marks the request as timed out; a late Respond fails.
func (rw *responseWriter) abandon() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.abandoned = true
	rw.closeLocked()
}

// Write pushes a notification with the next Observe sequence number.
func (rw *responseWriter) Write(payload []byte) error {
	rw.mu.Lock()
	if rw.resp == nil {
		rw.mu.Unlock()
		return transport.ErrNotResponded
	}
	if rw.closed || !rw.observing {
		rw.mu.Unlock()
		return transport.ErrStreamClosed
	}
	rw.seq++
	seq := rw.seq
	format := rw.resp.ContentFormat
	rw.mu.Unlock()

	m := rw.conn.AcquireMessage(rw.conn.Context())
	defer rw.conn.ReleaseMessage(m)
	m.SetCode(codes.Content)
	m.SetToken(rw.req.Token)
	m.SetObserve(seq)
	if format.IsSet() {
		m.SetContentFormat(message.MediaType(format))
	}
	m.SetBody(bytes.NewReader(payload))

	if err := rw.conn.WriteMessage(m); err != nil {
		rw.t.logError(rw.connID, rw.remote, log.LayerTransport, err, "notify "+rw.req.Path)
		_ = rw.Close()
		return err
	}
	rw.t.peers.Touch(rw.remote)
	rw.t.logEvent(rw.connID, rw.remote, log.DirectionOut, log.LayerWire, log.CategoryMessage, func(e *log.Event) {
		ev := log.ResponseMessage(rw.req.Path, &wire.Response{Code: wire.CodeContent, ContentFormat: format, Payload: payload}, 0)
		ev.Type = log.MessageTypeNotification
		ev.Observe = &seq
		ev.Token = rw.req.Token
		e.Message = ev
	})
	return nil
}

// Close ends the stream. Calling it again is a no-op.
func (rw *responseWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.closeLocked()
	return nil
}

func (rw *responseWriter) closeLocked() {
	if rw.closed {
		return
	}
	rw.closed = true
	close(rw.done)
}

// Done is closed when the stream ended.
func (rw *responseWriter) Done() <-chan struct{} {
	return rw.done
}

// RemoteAddr returns the peer address.
func (rw *responseWriter) RemoteAddr() string {
	return rw.remote
}

