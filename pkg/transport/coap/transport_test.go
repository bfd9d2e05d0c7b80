package coap

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/transport"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) count(cat log.Category) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Category == cat {
			n++
		}
	}
	return n
}

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return host, port
}

// startServer listens on loopback with h.
func startServer(t *testing.T, h transport.Handler, plog log.Logger) *Transport {
	t.Helper()
	srv := New(Config{Endpoint: "server", ProtocolLogger: plog, ResponseTimeout: time.Second})
	require.NoError(t, srv.Listen(context.Background(), "127.0.0.1:0", h))
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv
}

func TestEncodeUint(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, nil},
		{40, []byte{40}},
		{11543, []byte{0x2D, 0x17}},
		{0x010000, []byte{1, 0, 0}},
		{0x01000000, []byte{1, 0, 0, 0}},
	}
	for _, tt := range tests {
		if got := encodeUint(tt.v); !bytes.Equal(got, tt.want) {
			t.Errorf("encodeUint(%d) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestRequestOptions(t *testing.T) {
	req := wire.NewRequest(wire.MethodGet, "/3/0").WithQuery("ep", "node").WithObserve(0)
	req.Accept = wire.FormatSenMLJSON

	opts := requestOptions(req)
	var queries []string
	var accept, observe bool
	for _, o := range opts {
		switch o.ID {
		case message.URIQuery:
			queries = append(queries, string(o.Value))
		case message.Accept:
			accept = bytes.Equal(o.Value, []byte{110})
		case message.Observe:
			observe = len(o.Value) == 0
		}
	}
	assert.Equal(t, []string{"ep=node"}, queries)
	assert.True(t, accept, "accept option missing")
	assert.True(t, observe, "observe option missing")
}

func TestSendAndServe(t *testing.T) {
	plog := &captureLogger{}
	requests := make(chan *wire.Request, 1)
	srv := startServer(t, func(w transport.ResponseWriter, req *wire.Request) {
		requests <- req
		go func() {
			_ = w.Respond(wire.CodeContent, wire.FormatTextPlain, []byte("21.5"))
		}()
	}, plog)

	cli := New(Config{Endpoint: "node-1", ProtocolLogger: plog})
	defer cli.Shutdown()
	host, port := hostPort(t, srv.Addr())

	req := wire.NewRequest(wire.MethodGet, "/3303/0/5700").WithQuery("x", "1")
	req.Accept = wire.FormatTextPlain
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := cli.Send(ctx, host, port, req)
	require.NoError(t, err)
	assert.Equal(t, wire.CodeContent, resp.Code)
	assert.Equal(t, wire.FormatTextPlain, resp.ContentFormat)
	assert.Equal(t, "21.5", string(resp.Payload))

	got := <-requests
	assert.Equal(t, wire.MethodGet, got.Method)
	assert.Equal(t, "/3303/0/5700", got.Path)
	assert.Equal(t, []string{"x=1"}, got.Query)
	assert.Equal(t, wire.FormatTextPlain, got.Accept)

	assert.Equal(t, 1, len(srv.Peers()))
	assert.GreaterOrEqual(t, plog.count(log.CategoryMessage), 4)
}

func TestRegistrationLocation(t *testing.T) {
	srv := startServer(t, func(w transport.ResponseWriter, req *wire.Request) {
		_ = w.Respond(wire.CodeCreated, wire.FormatNone, nil)
	}, nil)
	cli := New(Config{})
	defer cli.Shutdown()
	host, port := hostPort(t, srv.Addr())

	req := wire.NewRequest(wire.MethodPost, "/rd").
		WithQuery("ep", "node-1").
		WithPayload(wire.FormatLinkFormat, []byte("</3/0>"))
	resp, err := cli.Send(context.Background(), host, port, req)
	require.NoError(t, err)
	assert.Equal(t, wire.CodeCreated, resp.Code)
	assert.Empty(t, resp.Payload)
}

func TestResponseTimeout(t *testing.T) {
	srv := New(Config{ResponseTimeout: 50 * time.Millisecond})
	require.NoError(t, srv.Listen(context.Background(), "127.0.0.1:0", func(transport.ResponseWriter, *wire.Request) {}))
	defer srv.Shutdown()

	cli := New(Config{})
	defer cli.Shutdown()
	host, port := hostPort(t, srv.Addr())
	resp, err := cli.Send(context.Background(), host, port, wire.NewRequest(wire.MethodGet, "/3"))
	require.NoError(t, err)
	assert.Equal(t, wire.CodeServiceUnavailable, resp.Code)
}

func TestObserveNotifications(t *testing.T) {
	writers := make(chan transport.ResponseWriter, 1)
	srv := startServer(t, func(w transport.ResponseWriter, req *wire.Request) {
		_ = w.Respond(wire.CodeContent, wire.FormatTextPlain, []byte("1"))
		if req.Observe != nil {
			writers <- w
		}
	}, nil)

	cc, err := udp.Dial(srv.Addr())
	require.NoError(t, err)
	defer cc.Close()

	values := make(chan string, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obs, err := cc.Observe(ctx, "/3303/0/5700", func(m *pool.Message) {
		b, _ := m.ReadBody()
		values <- string(b)
	})
	require.NoError(t, err)
	defer func() { _ = obs.Cancel(context.Background()) }()

	var w transport.ResponseWriter
	select {
	case w = <-writers:
	case <-ctx.Done():
		t.Fatal("observe request not served")
	}
	require.NoError(t, w.Write([]byte("2")))
	require.NoError(t, w.Write([]byte("3")))

	var seen []string
	for len(seen) < 3 {
		select {
		case v := <-values:
			seen = append(seen, v)
		case <-ctx.Done():
			t.Fatalf("notifications = %v, want 1, 2, 3", seen)
		}
	}
	assert.Equal(t, []string{"1", "2", "3"}, seen)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write([]byte("4")), transport.ErrStreamClosed)
	select {
	case <-w.Done():
	default:
		t.Error("Done not closed after Close")
	}
}

func TestWriteWithoutObserve(t *testing.T) {
	done := make(chan error, 1)
	srv := startServer(t, func(w transport.ResponseWriter, req *wire.Request) {
		if err := w.Write([]byte("x")); err != transport.ErrNotResponded {
			done <- err
			return
		}
		_ = w.Respond(wire.CodeChanged, wire.FormatNone, nil)
		done <- w.Write([]byte("x"))
	}, nil)
	cli := New(Config{})
	defer cli.Shutdown()
	host, port := hostPort(t, srv.Addr())

	_, err := cli.Send(context.Background(), host, port, wire.NewRequest(wire.MethodPut, "/1/0/1").WithPayload(wire.FormatTextPlain, []byte("60")))
	require.NoError(t, err)
	assert.ErrorIs(t, <-done, transport.ErrStreamClosed)
}

func TestCloseIdleKeepsProtectedPeers(t *testing.T) {
	srv := startServer(t, func(w transport.ResponseWriter, req *wire.Request) {
		_ = w.Respond(wire.CodeContent, wire.FormatTextPlain, []byte("ok"))
	}, nil)
	host, port := hostPort(t, srv.Addr())

	a, b := New(Config{}), New(Config{})
	defer a.Close()
	defer b.Close()
	for _, c := range []*Transport{a, b} {
		_, err := c.Send(context.Background(), host, port, wire.NewRequest(wire.MethodGet, "/3"))
		require.NoError(t, err)
	}
	peers := srv.Peers()
	require.Len(t, peers, 2)

	keep := peers[0].Addr
	time.Sleep(20 * time.Millisecond)
	n := srv.CloseIdle(10*time.Millisecond, func(addr string) bool { return addr == keep })
	assert.Equal(t, 1, n)
	remaining := srv.Peers()
	require.Len(t, remaining, 1)
	assert.Equal(t, keep, remaining[0].Addr)
}

func TestListenTwice(t *testing.T) {
	srv := startServer(t, func(transport.ResponseWriter, *wire.Request) {}, nil)
	err := srv.Listen(context.Background(), "127.0.0.1:0", nil)
	assert.ErrorIs(t, err, transport.ErrAlreadyStarted)

	require.NoError(t, srv.Close())
	assert.Equal(t, "", srv.Addr())
	require.NoError(t, srv.Listen(context.Background(), "127.0.0.1:0", nil))
	assert.NotEqual(t, "", srv.Addr())

	require.NoError(t, srv.Shutdown())
	_, err = srv.Send(context.Background(), "127.0.0.1", 1, wire.NewRequest(wire.MethodGet, "/"))
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, srv.Listen(context.Background(), "127.0.0.1:0", nil), transport.ErrClosed)
}
