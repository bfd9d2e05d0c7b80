package coap

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/mux"
	coapNet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	udpClient "github.com/plgd-dev/go-coap/v3/udp/client"
	udpServer "github.com/plgd-dev/go-coap/v3/udp/server"

	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/transport"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// DefaultResponseTimeout is how long an inbound request waits for the
// handler's response.
const DefaultResponseTimeout = 10 * time.Second

// Config configures a Transport.
type Config struct {
	// Endpoint is the client endpoint name recorded in protocol events.
	Endpoint string

	// ResponseTimeout bounds the wait for a handler response.
	ResponseTimeout time.Duration

	// Logger is used for debug output. Nil disables it.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events. Nil disables them.
	ProtocolLogger log.Logger
}

// Transport is a CoAP/UDP implementation of transport.Transport.
type Transport struct {
	config Config
	plog   log.Logger

	mu       sync.Mutex
	handler  transport.Handler
	dialed   map[string]*dialedConn
	server   *udpServer.Server
	listener *coapNet.UDPConn
	addr     string
	closed   bool

	peers *transport.PeerTracker
}

type dialedConn struct {
	cc *udpClient.Conn
	id string
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport. Nothing is opened until the first Send or Listen.
func New(config Config) *Transport {
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = DefaultResponseTimeout
	}
	return &Transport{
		config: config,
		plog:   log.OrNoop(config.ProtocolLogger),
		dialed: make(map[string]*dialedConn),
		peers:  transport.NewPeerTracker(),
	}
}

// Send delivers req to host:port over the dialed connection for that
// address, dialing it first if needed.
func (t *Transport) Send(ctx context.Context, host string, port int, req *wire.Request) (*wire.Response, error) {
	dc, err := t.dial(host, port)
	if err != nil {
		return nil, err
	}
	remote := dc.cc.RemoteAddr().String()
	t.logEvent(dc.id, remote, log.DirectionOut, log.LayerWire, log.CategoryMessage, func(e *log.Event) {
		e.Message = log.RequestMessage(req)
	})

	start := time.Now()
	opts := requestOptions(req)
	var resp *pool.Message
	switch req.Method {
	case wire.MethodGet:
		resp, err = dc.cc.Get(ctx, req.Path, opts...)
	case wire.MethodPost:
		resp, err = dc.cc.Post(ctx, req.Path, message.MediaType(req.ContentFormat), body(req.Payload), opts...)
	case wire.MethodPut:
		resp, err = dc.cc.Put(ctx, req.Path, message.MediaType(req.ContentFormat), body(req.Payload), opts...)
	case wire.MethodDelete:
		resp, err = dc.cc.Delete(ctx, req.Path, opts...)
	default:
		return nil, fmt.Errorf("send %s: unsupported method %s", req.Path, req.Method)
	}
	if err != nil {
		t.logError(dc.id, remote, log.LayerTransport, err, "send "+req.URI())
		return nil, fmt.Errorf("send %s to %s: %w", req.URI(), remote, err)
	}

	out, err := toResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", remote, err)
	}
	t.logEvent(dc.id, remote, log.DirectionIn, log.LayerWire, log.CategoryMessage, func(e *log.Event) {
		e.Message = log.ResponseMessage(req.Path, out, time.Since(start))
	})
	return out, nil
}

// Ping sends a CoAP ping to host:port.
func (t *Transport) Ping(ctx context.Context, host string, port int) error {
	dc, err := t.dial(host, port)
	if err != nil {
		return err
	}
	remote := dc.cc.RemoteAddr().String()
	t.logEvent(dc.id, remote, log.DirectionOut, log.LayerTransport, log.CategoryControl, func(e *log.Event) {
		e.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgPing}
	})
	if err := dc.cc.Ping(ctx); err != nil {
		t.logError(dc.id, remote, log.LayerTransport, err, "ping")
		return fmt.Errorf("ping %s: %w", remote, err)
	}
	t.logEvent(dc.id, remote, log.DirectionIn, log.LayerTransport, log.CategoryControl, func(e *log.Event) {
		e.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgPong}
	})
	return nil
}

func (t *Transport) dial(host string, port int) (*dialedConn, error) {
	target := net.JoinHostPort(host, strconv.Itoa(port))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrClosed
	}
	if dc, ok := t.dialed[target]; ok {
		return dc, nil
	}

	cc, err := udp.Dial(target, options.WithMux(t.router()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	dc := &dialedConn{cc: cc, id: uuid.NewString()}
	t.dialed[target] = dc
	cc.AddOnClose(func() {
		t.mu.Lock()
		if t.dialed[target] == dc {
			delete(t.dialed, target)
		}
		t.mu.Unlock()
		t.logEvent(dc.id, target, log.DirectionOut, log.LayerTransport, log.CategoryControl, func(e *log.Event) {
			e.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgClose, Reason: "dialed connection closed"}
		})
	})
	t.debugLog("dialed", "target", target, "conn_id", dc.id)
	return dc, nil
}

// Listen binds addr and serves inbound requests with h. Requests arriving
// over dialed connections are served by h as well.
func (t *Transport) Listen(ctx context.Context, addr string, h transport.Handler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if t.server != nil {
		t.mu.Unlock()
		return transport.ErrAlreadyStarted
	}
	t.handler = h

	l, err := coapNet.NewListenUDP("udp", addr)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s := udp.NewServer(
		options.WithMux(t.router()),
		options.WithOnNewConn(t.onNewConn),
	)
	t.server = s
	t.listener = l
	t.addr = l.LocalAddr().String()
	t.mu.Unlock()

	go func() {
		if err := s.Serve(l); err != nil {
			t.debugLog("serve stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		t.mu.Lock()
		current := t.server == s
		t.mu.Unlock()
		if current {
			_ = t.Close()
		}
	}()
	t.debugLog("listening", "addr", t.Addr())
	return nil
}

// SetHandler installs h for requests over dialed connections without
// opening a listener.
func (t *Transport) SetHandler(h transport.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *Transport) onNewConn(cc *udpClient.Conn) {
	remote := cc.RemoteAddr().String()
	id := t.peers.Add(remote, cc)
	cc.AddOnClose(func() {
		t.peers.Remove(remote)
	})
	t.logEvent(id, remote, log.DirectionIn, log.LayerTransport, log.CategoryState, func(e *log.Event) {
		e.StateChange = &log.StateChangeEvent{Entity: log.StateEntityLink, NewState: "OPEN"}
	})
}

// Addr returns the bound listener address.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}

// CloseIdle closes listener peers idle for longer than maxIdle. Dialed
// server connections are never reaped here.
func (t *Transport) CloseIdle(maxIdle time.Duration, keep func(addr string) bool) int {
	closed := t.peers.CloseIdle(maxIdle, keep)
	for _, addr := range closed {
		t.logEvent("", addr, log.DirectionOut, log.LayerTransport, log.CategoryControl, func(e *log.Event) {
			e.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgClose, Reason: "idle"}
		})
		t.debugLog("reaped idle peer", "addr", addr)
	}
	return len(closed)
}

// Peers returns the listener peers.
func (t *Transport) Peers() []transport.PeerInfo {
	return t.peers.Peers()
}

// Close stops the listener and closes its peer connections. Dialed
// connections stay open and Listen may be called again.
func (t *Transport) Close() error {
	t.mu.Lock()
	s, l := t.server, t.listener
	t.server, t.listener, t.addr = nil, nil, ""
	t.mu.Unlock()

	var err error
	if s != nil {
		s.Stop()
	}
	if l != nil {
		err = l.Close()
	}
	t.peers.CloseAll()
	return err
}

// Shutdown closes the listener and every dialed connection. The transport
// cannot be used afterwards.
func (t *Transport) Shutdown() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	dialed := t.dialed
	t.dialed = make(map[string]*dialedConn)
	t.mu.Unlock()

	firstErr := t.Close()
	for _, dc := range dialed {
		if err := dc.cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Transport) currentHandler() transport.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler
}

func (t *Transport) router() *mux.Router {
	r := mux.NewRouter()
	r.DefaultHandle(mux.HandlerFunc(t.serveCoAP))
	return r
}

// serveCoAP adapts one inbound CoAP request to the transport handler and
// waits for its response.
func (t *Transport) serveCoAP(w mux.ResponseWriter, r *mux.Message) {
	conn := w.Conn()
	remote := conn.RemoteAddr().String()
	t.peers.Touch(remote)
	connID := t.connID(remote)

	req, err := toRequest(r)
	if err != nil {
		t.logError(connID, remote, log.LayerWire, err, "decode request")
		_ = w.SetResponse(codes.BadRequest, message.TextPlain, nil)
		return
	}
	t.logEvent(connID, remote, log.DirectionIn, log.LayerWire, log.CategoryMessage, func(e *log.Event) {
		e.Message = log.RequestMessage(req)
	})

	h := t.currentHandler()
	if h == nil {
		_ = w.SetResponse(codes.ServiceUnavailable, message.TextPlain, nil)
		return
	}

	start := time.Now()
	rw := newResponseWriter(t, conn, req, remote, connID)
	h(rw, req)

	var resp *wire.Response
	select {
	case <-rw.responded:
		resp = rw.response()
	case <-time.After(t.config.ResponseTimeout):
		rw.abandon()
		resp = wire.NewResponse(wire.CodeServiceUnavailable)
	case <-conn.Done():
		rw.abandon()
		return
	}

	var payload *bytes.Reader
	if len(resp.Payload) > 0 {
		payload = bytes.NewReader(resp.Payload)
	}
	format := message.TextPlain
	if resp.ContentFormat.IsSet() {
		format = message.MediaType(resp.ContentFormat)
	}
	if payload == nil {
		_ = w.SetResponse(coapCode(resp.Code), format, nil)
	} else {
		_ = w.SetResponse(coapCode(resp.Code), format, payload)
	}
	if seq, ok := rw.observeSeq(); ok {
		w.Message().SetObserve(seq)
	}
	t.logEvent(connID, remote, log.DirectionOut, log.LayerWire, log.CategoryMessage, func(e *log.Event) {
		e.Message = log.ResponseMessage(req.Path, resp, time.Since(start))
	})
}

func (t *Transport) connID(remote string) string {
	if id := t.peers.ID(remote); id != "" {
		return id
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, dc := range t.dialed {
		if dc.cc.RemoteAddr().String() == remote {
			return dc.id
		}
	}
	return ""
}

func toRequest(r *mux.Message) (*wire.Request, error) {
	path, err := r.Path()
	if err != nil {
		path = "/"
	}
	req := wire.NewRequest(methodOf(r.Code()), path)
	if q, err := r.Queries(); err == nil {
		req.Query = q
	}
	req.ContentFormat = formatOf(r.ContentFormat())
	if accept, err := r.Options().GetUint32(message.Accept); err == nil {
		req.Accept = wire.Format(accept)
	}
	if obs, err := r.Observe(); err == nil {
		req.Observe = &obs
	}
	if tok := r.Token(); len(tok) > 0 {
		req.Token = append([]byte(nil), tok...)
	}
	if r.Body() != nil {
		payload, err := r.ReadBody()
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		req.Payload = payload
	}
	return req, nil
}

func toResponse(m *pool.Message) (*wire.Response, error) {
	resp := wire.NewResponse(wireCode(m.Code()))
	resp.ContentFormat = formatOf(m.ContentFormat())
	resp.Location = locationPath(m.Options())
	if m.Body() != nil {
		payload, err := m.ReadBody()
		if err != nil {
			return nil, err
		}
		resp.Payload = payload
	}
	return resp, nil
}

func body(payload []byte) *bytes.Reader {
	return bytes.NewReader(payload)
}

func (t *Transport) logEvent(connID, remote string, dir log.Direction, layer log.Layer, cat log.Category, fill func(*log.Event)) {
	e := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		Endpoint:     t.config.Endpoint,
		RemoteAddr:   remote,
	}
	fill(&e)
	t.plog.Log(e)
}

func (t *Transport) logError(connID, remote string, layer log.Layer, err error, op string) {
	t.logEvent(connID, remote, log.DirectionIn, layer, log.CategoryError, func(e *log.Event) {
		e.Error = &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op}
	})
	t.debugLog("transport error", "remote", remote, "op", op, "error", err)
}

func (t *Transport) debugLog(msg string, args ...any) {
	if t.config.Logger != nil {
		t.config.Logger.Debug(msg, args...)
	}
}
