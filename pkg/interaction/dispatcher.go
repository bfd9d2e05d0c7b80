package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/attribute"
	"github.com/lwm2m-node/lwm2m-go/pkg/codec"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/observe"
	"github.com/lwm2m-node/lwm2m-go/pkg/transport"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// DefaultHeartbeatPath is the reserved observe path of the heartbeat stream.
const DefaultHeartbeatPath = "/heartbeat"

// Config configures a Dispatcher.
type Config struct {
	// Logger is used for debug output. Nil disables it.
	Logger *slog.Logger

	// HeartbeatPath is the reserved path handled by OnHeartbeat.
	// Defaults to DefaultHeartbeatPath.
	HeartbeatPath string

	// OnHeartbeat takes over observe and cancel-observe requests on the
	// heartbeat path. Without it such requests get 4.04.
	OnHeartbeat func(w transport.ResponseWriter, req *wire.Request)

	// OnAnnounce receives the payload of POST /announce.
	OnAnnounce func(payload []byte)

	// OnRequest is called after every response with the operation, the
	// response code and the time spent.
	OnRequest func(op Operation, code wire.Code, elapsed time.Duration)
}

type job struct {
	w        transport.ResponseWriter
	req      *wire.Request
	received time.Time
}

type peerQueue struct {
	pending []job
}

// Dispatcher routes inbound requests to the tree, the attribute store and
// the observation engine.
type Dispatcher struct {
	tree   *model.Tree
	attrs  *attribute.Store
	engine *observe.Engine
	codec  *codec.Codec
	config Config

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string]*peerQueue
	closed bool
	wg     sync.WaitGroup

	// obsMu orders observer setup against stream teardown.
	obsMu   sync.Mutex
	streams map[string]transport.ResponseWriter
}

// NewDispatcher creates a dispatcher over the given node components.
func NewDispatcher(tree *model.Tree, attrs *attribute.Store, engine *observe.Engine, c *codec.Codec, config Config) *Dispatcher {
	if config.HeartbeatPath == "" {
		config.HeartbeatPath = DefaultHeartbeatPath
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		tree:    tree,
		attrs:   attrs,
		engine:  engine,
		codec:   c,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[string]*peerQueue),
		streams: make(map[string]transport.ResponseWriter),
	}
}

// Serve queues req for handling and returns immediately. It has the
// signature of transport.Handler.
func (d *Dispatcher) Serve(w transport.ResponseWriter, req *wire.Request) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = w.Respond(wire.CodeServiceUnavailable, wire.FormatNone, nil)
		return
	}
	peer := w.RemoteAddr()
	q, running := d.queues[peer]
	if !running {
		q = &peerQueue{}
		d.queues[peer] = q
		d.wg.Add(1)
	}
	q.pending = append(q.pending, job{w: w, req: req, received: time.Now()})
	d.mu.Unlock()

	if !running {
		go d.drain(peer, q)
	}
}

// drain handles the queue of one peer until it is empty.
func (d *Dispatcher) drain(peer string, q *peerQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			delete(d.queues, peer)
			d.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending = q.pending[1:]
		d.mu.Unlock()

		d.handle(j)
	}
}

// Close stops accepting requests, waits for queued ones and closes all
// observe streams.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.CancelObservations()
}

// CancelObservations stops every observer and closes its stream.
func (d *Dispatcher) CancelObservations() {
	d.obsMu.Lock()
	streams := d.streams
	d.streams = make(map[string]transport.ResponseWriter)
	d.engine.CancelAll()
	d.obsMu.Unlock()

	for _, w := range streams {
		_ = w.Close()
	}
}

// Streams returns the number of open observe streams.
func (d *Dispatcher) Streams() int {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	return len(d.streams)
}

// ObservedBy reports whether an observe stream from peer addr is open.
func (d *Dispatcher) ObservedBy(addr string) bool {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	for _, w := range d.streams {
		if w.RemoteAddr() == addr {
			return true
		}
	}
	return false
}

func (d *Dispatcher) handle(j job) {
	op := Classify(j.req)
	d.debugLog("request", "op", op, "uri", j.req.URI(), "peer", j.w.RemoteAddr())

	var code wire.Code
	switch op {
	case OpEmpty:
		code = d.respond(j.w, wire.CodeEmpty, wire.FormatNone, nil)
	case OpPing:
		code = d.respond(j.w, wire.CodeContent, wire.FormatNone, nil)
	case OpAnnounce:
		code = d.handleAnnounce(j.w, j.req)
	case OpRead:
		code = d.handleRead(j.w, j.req)
	case OpDiscover:
		code = d.handleDiscover(j.w, j.req)
	case OpWrite:
		code = d.handleWrite(j.w, j.req)
	case OpWriteAttributes:
		code = d.handleWriteAttributes(j.w, j.req)
	case OpExecute:
		code = d.handleExecute(j.w, j.req)
	case OpCreate:
		code = d.handleCreate(j.w, j.req)
	case OpDelete:
		code = d.handleDelete(j.w, j.req)
	case OpObserve:
		code = d.handleObserve(j.w, j.req)
	case OpCancelObserve:
		code = d.handleCancelObserve(j.w, j.req)
	default:
		code = d.respond(j.w, wire.CodeMethodNotAllowed, wire.FormatNone, nil)
	}

	if d.config.OnRequest != nil {
		d.config.OnRequest(op, code, time.Since(j.received))
	}
}

func (d *Dispatcher) handleAnnounce(w transport.ResponseWriter, req *wire.Request) wire.Code {
	if d.config.OnAnnounce != nil {
		d.config.OnAnnounce(append([]byte(nil), req.Payload...))
	}
	return d.respond(w, wire.CodeChanged, wire.FormatNone, nil)
}

func (d *Dispatcher) handleRead(w transport.ResponseWriter, req *wire.Request) wire.Code {
	p, err := model.ParsePath(d.tree.Resolver(), req.Path)
	if err != nil {
		return d.respondError(w, err)
	}
	value, err := d.tree.Read(d.ctx, p)
	if err != nil && (p.Level() == model.LevelResource || value == nil) {
		return d.respondError(w, err)
	}
	if err != nil {
		d.debugLog("partial read", "path", p.Key(), "error", err)
	}
	return d.respondValue(w, req, p, value, wire.CodeContent)
}

func (d *Dispatcher) handleDiscover(w transport.ResponseWriter, req *wire.Request) wire.Code {
	var links []codec.Link
	if cleanPath(req.Path) == "/" {
		r := d.tree.Resolver()
		for _, p := range d.tree.Objects() {
			links = append(links, codec.Link{Target: p.Numeric(r)})
		}
	} else {
		p, err := model.ParsePath(d.tree.Resolver(), req.Path)
		if err != nil {
			return d.respondError(w, err)
		}
		if links, err = d.attrs.Discover(d.tree, p); err != nil {
			return d.respondError(w, err)
		}
	}
	return d.respond(w, wire.CodeContent, wire.FormatLinkFormat, codec.FormatLinks(links))
}

func (d *Dispatcher) handleWrite(w transport.ResponseWriter, req *wire.Request) wire.Code {
	p, err := model.ParsePath(d.tree.Resolver(), req.Path)
	if err != nil {
		return d.respondError(w, err)
	}
	value, err := d.decode(req, p)
	if err != nil {
		return d.respondError(w, err)
	}
	if err := d.tree.Write(d.ctx, p, value); err != nil {
		return d.respondError(w, err)
	}
	return d.respond(w, wire.CodeChanged, wire.FormatNone, nil)
}

func (d *Dispatcher) handleWriteAttributes(w transport.ResponseWriter, req *wire.Request) wire.Code {
	p, err := model.ParsePath(d.tree.Resolver(), req.Path)
	if err != nil {
		return d.respondError(w, err)
	}
	if !d.tree.Exists(p) {
		return d.respond(w, wire.CodeNotFound, wire.FormatNone, nil)
	}
	attrs := attribute.ParseQuery(req.Query)
	if err := d.attrs.Set(p, attrs); err != nil {
		return d.respondError(w, err)
	}
	if _, ok := attrs["cancel"]; ok && d.attrs.Get(p).Cancel {
		d.stopObserving(p)
	}
	return d.respond(w, wire.CodeChanged, wire.FormatNone, nil)
}

func (d *Dispatcher) handleExecute(w transport.ResponseWriter, req *wire.Request) wire.Code {
	p, err := model.ParsePath(d.tree.Resolver(), req.Path)
	if err != nil {
		return d.respondError(w, err)
	}
	result, err := d.tree.Execute(d.ctx, p, splitArgs(req.Payload))
	if err != nil {
		return d.respondError(w, err)
	}
	if result == nil {
		return d.respond(w, wire.CodeChanged, wire.FormatNone, nil)
	}
	return d.respondValue(w, req, p, result, wire.CodeChanged)
}

func (d *Dispatcher) handleCreate(w transport.ResponseWriter, req *wire.Request) wire.Code {
	p, err := model.ParsePath(d.tree.Resolver(), req.Path)
	if err != nil {
		return d.respondError(w, err)
	}
	if !d.tree.Exists(p) {
		return d.respond(w, wire.CodeNotFound, wire.FormatNone, nil)
	}

	var value any
	if len(req.Payload) > 0 {
		if value, err = d.decode(req, p); err != nil {
			return d.respondError(w, err)
		}
	}
	instances, err := d.splitCreate(p, value)
	if err != nil {
		return d.respondError(w, err)
	}
	for iid, values := range instances {
		if err := d.tree.CreateInstance(p.Object, iid, values); err != nil {
			return d.respondError(w, err)
		}
		d.debugLog("instance created", "path", model.InstancePath(p.Object, iid).Key())
	}
	return d.respond(w, wire.CodeCreated, wire.FormatNone, nil)
}

// splitCreate maps a create payload to the instances it creates. A map
// keyed by instance ids creates those instances; anything else becomes
// the resources of the next free instance.
func (d *Dispatcher) splitCreate(p model.Path, value any) (map[int]map[string]any, error) {
	m, _ := value.(map[string]any)
	if value != nil && m == nil {
		return nil, fmt.Errorf("%w: create payload must be a map, got %T", model.ErrBadRequest, value)
	}

	byInstance := make(map[int]map[string]any, len(m))
	for k, v := range m {
		iid, err := model.ParseInstanceID(k)
		inst, ok := v.(map[string]any)
		if err != nil || !ok {
			byInstance = nil
			break
		}
		byInstance[iid] = inst
	}
	if len(byInstance) > 0 {
		return byInstance, nil
	}

	iid := d.tree.NextInstanceID(p.Object)
	if iid == model.NoInstance {
		return nil, fmt.Errorf("%w: no free instance id in %s", model.ErrNotAllowed, p)
	}
	if m == nil {
		m = map[string]any{}
	}
	return map[int]map[string]any{iid: m}, nil
}

func (d *Dispatcher) handleDelete(w transport.ResponseWriter, req *wire.Request) wire.Code {
	p, err := model.ParsePath(d.tree.Resolver(), req.Path)
	if err != nil {
		return d.respondError(w, err)
	}
	if err := d.tree.DeleteInstance(p); err != nil {
		return d.respondError(w, err)
	}
	d.stopObserving(p)
	for _, child := range d.engine.Observed() {
		if p.Contains(child) {
			d.stopObserving(child)
		}
	}
	return d.respond(w, wire.CodeDeleted, wire.FormatNone, nil)
}

func (d *Dispatcher) handleObserve(w transport.ResponseWriter, req *wire.Request) wire.Code {
	if d.isHeartbeat(req) {
		return d.handleHeartbeat(w, req)
	}
	p, err := model.ParsePath(d.tree.Resolver(), req.Path)
	if err != nil {
		return d.respondError(w, err)
	}
	p = p.Normalize(d.tree.Resolver())
	format := d.responseFormat(req, p)
	key := p.Key()

	// Notifications wait until the observe response is out.
	ready := make(chan struct{})
	write := func(v any) error {
		select {
		case <-ready:
		case <-w.Done():
			return transport.ErrStreamClosed
		}
		payload, err := d.encode(format, p, v)
		if err != nil {
			return err
		}
		return w.Write(payload)
	}

	d.obsMu.Lock()
	value, err := d.engine.EnableReport(d.ctx, p, write)
	if err != nil {
		d.obsMu.Unlock()
		return d.respondError(w, err)
	}
	old := d.streams[key]
	d.streams[key] = w
	d.obsMu.Unlock()

	if old != nil && old != w {
		_ = old.Close()
	}

	payload, err := d.encode(format, p, value)
	if err != nil {
		d.stopObserving(p)
		return d.respondError(w, err)
	}
	code := d.respond(w, wire.CodeContent, format, payload)
	close(ready)

	go d.watchStream(p, w)
	return code
}

// watchStream drops the observer of p once w ends, unless a newer stream
// took over the path.
func (d *Dispatcher) watchStream(p model.Path, w transport.ResponseWriter) {
	<-w.Done()
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	if d.streams[p.Key()] != w {
		return
	}
	delete(d.streams, p.Key())
	d.engine.DisableReport(p)
	d.debugLog("observe stream closed", "path", p.Key())
}

func (d *Dispatcher) handleCancelObserve(w transport.ResponseWriter, req *wire.Request) wire.Code {
	if d.isHeartbeat(req) {
		return d.handleHeartbeat(w, req)
	}
	p, err := model.ParsePath(d.tree.Resolver(), req.Path)
	if err != nil {
		return d.respondError(w, err)
	}
	d.stopObserving(p)

	value, err := d.tree.Dump(d.ctx, p)
	if err != nil && (p.Level() == model.LevelResource || value == nil) {
		return d.respondError(w, err)
	}
	return d.respondValue(w, req, p, value, wire.CodeContent)
}

// stopObserving drops the observer of p and closes its stream.
func (d *Dispatcher) stopObserving(p model.Path) {
	p = p.Normalize(d.tree.Resolver())
	d.obsMu.Lock()
	d.engine.DisableReport(p)
	old := d.streams[p.Key()]
	delete(d.streams, p.Key())
	d.obsMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

func (d *Dispatcher) isHeartbeat(req *wire.Request) bool {
	return cleanPath(req.Path) == cleanPath(d.config.HeartbeatPath)
}

func (d *Dispatcher) handleHeartbeat(w transport.ResponseWriter, req *wire.Request) wire.Code {
	if d.config.OnHeartbeat == nil {
		return d.respond(w, wire.CodeNotFound, wire.FormatNone, nil)
	}
	d.config.OnHeartbeat(w, req)
	return wire.CodeContent
}

func (d *Dispatcher) respondValue(w transport.ResponseWriter, req *wire.Request, p model.Path, value any, code wire.Code) wire.Code {
	format := d.responseFormat(req, p)
	payload, err := d.encode(format, p, value)
	if err != nil {
		return d.respondError(w, err)
	}
	return d.respond(w, code, format, payload)
}

func (d *Dispatcher) respondError(w transport.ResponseWriter, err error) wire.Code {
	code := CodeFor(err)
	d.debugLog("request failed", "code", code, "error", err)
	return d.respond(w, code, wire.FormatNone, nil)
}

func (d *Dispatcher) respond(w transport.ResponseWriter, code wire.Code, format wire.Format, payload []byte) wire.Code {
	if err := w.Respond(code, format, payload); err != nil {
		d.debugLog("respond failed", "code", code, "error", err)
	}
	return code
}

func (d *Dispatcher) debugLog(msg string, args ...any) {
	if d.config.Logger != nil {
		d.config.Logger.Debug(msg, args...)
	}
}

// CodeFor maps a tree, attribute or codec error to a response code.
func CodeFor(err error) wire.Code {
	switch {
	case err == nil:
		return wire.CodeContent
	case errors.Is(err, model.ErrNotFound):
		return wire.CodeNotFound
	case errors.Is(err, model.ErrUnreadable),
		errors.Is(err, model.ErrUnwritable),
		errors.Is(err, model.ErrUnexecutable),
		errors.Is(err, model.ErrNotAllowed):
		return wire.CodeMethodNotAllowed
	case errors.Is(err, codec.ErrUnsupportedFormat):
		return wire.CodeUnsupportedContentFormat
	default:
		return wire.CodeBadRequest
	}
}
