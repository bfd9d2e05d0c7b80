package transport

import (
	"context"
	"errors"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Transport errors.
var (
	ErrClosed         = errors.New("transport closed")
	ErrStreamClosed   = errors.New("stream closed")
	ErrNotResponded   = errors.New("write before respond")
	ErrAlreadyStarted = errors.New("listener already started")
)

// Client sends requests to a peer.
type Client interface {
	// Send delivers req to host:port and waits for the response.
	Send(ctx context.Context, host string, port int, req *wire.Request) (*wire.Response, error)

	// Ping checks that the peer answers an empty message.
	Ping(ctx context.Context, host string, port int) error
}

// Handler serves one inbound request. It must not block: the response
// may be given later through w.
type Handler func(w ResponseWriter, req *wire.Request)

// ResponseWriter answers an inbound request and carries observe pushes.
type ResponseWriter interface {
	// Respond sends the response. It may be called once.
	Respond(code wire.Code, format wire.Format, payload []byte) error

	// Write pushes a notification on an observe stream, using the content
	// format given to Respond.
	Write(payload []byte) error

	// Close ends the stream.
	Close() error

	// Done is closed when the stream ended.
	Done() <-chan struct{}

	// RemoteAddr returns the peer address as host:port.
	RemoteAddr() string
}

// Listener serves inbound requests.
type Listener interface {
	// Listen starts serving on addr and returns once the socket is bound.
	// Serving stops when ctx is cancelled or Close is called.
	Listen(ctx context.Context, addr string, h Handler) error

	// Addr returns the bound address, or "" when not listening.
	Addr() string

	// CloseIdle closes peer connections idle for longer than maxIdle,
	// except those keep returns true for. It returns the number closed.
	CloseIdle(maxIdle time.Duration, keep func(addr string) bool) int

	// Close stops serving and closes every peer connection.
	Close() error
}

// Transport combines both directions, as a CoAP endpoint does.
type Transport interface {
	Client
	Listener

	// Shutdown releases every connection. The transport cannot be used
	// afterwards.
	Shutdown() error
}
