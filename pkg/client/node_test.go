package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-node/lwm2m-go/internal/lwm2mtest"
	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

const (
	serverHost = "10.0.0.9"
	serverPort = 5683
	serverPeer = "10.0.0.9:5683"

	waitTimeout = 2 * time.Second
)

type fixture struct {
	network *lwm2mtest.Network
	server  *lwm2mtest.Server
	node    *Node

	mu     sync.Mutex
	events []Event
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Name = "node-1"
	cfg.Lifetime = 600
	cfg.Tick = 10 * time.Millisecond
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.ReapInterval = 0
	cfg.ListenAddress = "127.0.0.1:5683"
	cfg.RequestTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	network := lwm2mtest.NewNetwork()
	server := lwm2mtest.NewServer()
	network.AddServer(serverHost, serverPort, server)

	node, err := NewNode(cfg, network)
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	require.NoError(t, node.Tree().InitResource("device", 0, map[string]any{"manuf": "acme"}))
	require.NoError(t, node.Tree().InitResource("3303", 0, map[string]any{"5700": 21.5}))

	f := &fixture{network: network, server: server, node: node}
	node.OnEvent(func(e Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) register(t *testing.T) {
	t.Helper()
	code, err := f.node.Register(context.Background(), serverHost, serverPort)
	require.NoError(t, err)
	require.Equal(t, wire.CodeCreated, code)
}

func (f *fixture) count(typ EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (f *fixture) last(typ EventType) (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Type == typ {
			return f.events[i], true
		}
	}
	return Event{}, false
}

func (f *fixture) waitEvent(t *testing.T, typ EventType) Event {
	t.Helper()
	require.Eventually(t, func() bool { return f.count(typ) > 0 }, waitTimeout, 5*time.Millisecond,
		"no %s event", typ)
	e, _ := f.last(typ)
	return e
}

func (f *fixture) openHeartbeat(t *testing.T) *lwm2mtest.Recorder {
	t.Helper()
	req := wire.NewRequest(wire.MethodGet, "/heartbeat").WithObserve(wire.ObserveRegister)
	rec, err := f.network.Request(serverPeer, req, waitTimeout)
	require.NoError(t, err)
	require.Equal(t, wire.CodeContent, rec.Code())
	f.waitEvent(t, EventLogin)
	return rec
}

func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.Name = "node-1"
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no name", func(c *Config) { c.Name = "" }},
		{"zero lifetime", func(c *Config) { c.Lifetime = 0 }},
		{"zero tick", func(c *Config) { c.Tick = 0 }},
		{"negative margin", func(c *Config) { c.RefreshMargin = -time.Second }},
		{"zero reconnect delay", func(c *Config) { c.ReconnectDelay = 0 }},
		{"shrinking reconnect delay", func(c *Config) { c.ReconnectMultiplier = 0.5 }},
		{"negative jitter", func(c *Config) { c.ReconnectJitter = -0.1 }},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"negative pmin", func(c *Config) { c.DefaultPmin = -1 }},
		{"unsupported version", func(c *Config) { c.Version = "2.0" }},
		{"bad binding", func(c *Config) { c.Binding = "T" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := NewNode(Config{}, lwm2mtest.NewNetwork()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewNode() error = %v, want ErrInvalidConfig", err)
	}
}

func TestReconnectBackoff(t *testing.T) {
	c := DefaultConfig()
	c.ReconnectDelay = 10 * time.Millisecond
	b := c.reconnectBackoff()
	if !b.Fixed() {
		t.Error("default backoff should be fixed")
	}
	for i := 0; i < 3; i++ {
		if d := b.Next(); d != 10*time.Millisecond {
			t.Errorf("fixed delay %d = %v, want 10ms", i, d)
		}
	}

	c.ReconnectMultiplier = 2
	c.ReconnectMaxDelay = 30 * time.Millisecond
	b = c.reconnectBackoff()
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond}
	for i, w := range want {
		if d := b.Next(); d != w {
			t.Errorf("delay %d = %v, want %v", i, d, w)
		}
	}

	c.ReconnectMultiplier = 1
	c.ReconnectJitter = 0.5
	b = c.reconnectBackoff()
	if b.Fixed() {
		t.Error("jittered backoff reported as fixed")
	}
	if d := b.Next(); d < 10*time.Millisecond || d > 15*time.Millisecond {
		t.Errorf("jittered delay = %v, want within [10ms, 15ms]", d)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUnregistered: "UNREGISTERED",
		StateRegistering:  "REGISTERING",
		StateRegistered:   "REGISTERED",
		StateUpdating:     "UPDATING",
		State(99):         "UNKNOWN",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
	if got := EventReconnecting.String(); got != "RECONNECTING" {
		t.Errorf("EventReconnecting.String() = %q, want RECONNECTING", got)
	}
}

func TestRegisterThenUpdateLifetime(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	s := f.node.Session()
	assert.Equal(t, StateRegistered, s.State)
	assert.Equal(t, "/rd/1", s.Location)
	assert.Equal(t, "127.0.0.1:5683", s.ListenAddress)
	assert.True(t, f.network.Listening())

	reg, ok := f.server.Registration("node-1")
	require.True(t, ok)
	assert.Equal(t, 600, reg.Lifetime)
	assert.Equal(t, "1.0", reg.Version)
	assert.Equal(t, "U", reg.Binding)
	var targets []string
	for _, l := range reg.Objects {
		targets = append(targets, l.Target)
	}
	assert.Equal(t, []string{"/3/0", "/3303/0"}, targets)

	e := f.waitEvent(t, EventRegistered)
	assert.Equal(t, "/rd/1", e.Location)

	code, err := f.node.Update(context.Background(), UpdateOptions{Lifetime: intPtr(1200)})
	require.NoError(t, err)
	assert.Equal(t, wire.CodeChanged, code)

	reg, _ = f.server.Registration("node-1")
	assert.Equal(t, 1200, reg.Lifetime)
	assert.Equal(t, 1, reg.Updates)
	assert.Equal(t, 1200, f.node.Session().Lifetime)
	f.waitEvent(t, EventUpdated)
}

func TestDeregisterAndUpdateWhenUnregistered(t *testing.T) {
	f := newFixture(t, nil)

	code, err := f.node.Deregister(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.CodeNotFound, code)

	code, err = f.node.Update(context.Background(), UpdateOptions{Lifetime: intPtr(100)})
	require.NoError(t, err)
	assert.Equal(t, wire.CodeNotFound, code)

	assert.Empty(t, f.network.Sent())
}

func TestDeregister(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	obs := wire.NewRequest(wire.MethodGet, "/3303/0/5700").WithObserve(wire.ObserveRegister)
	rec, err := f.network.Request(serverPeer, obs, waitTimeout)
	require.NoError(t, err)
	require.Equal(t, wire.CodeContent, rec.Code())
	require.Len(t, f.node.Engine().Observed(), 1)

	code, err := f.node.Deregister(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.CodeDeleted, code)

	assert.Equal(t, StateUnregistered, f.node.State())
	assert.Equal(t, 0, f.server.Registrations())
	assert.False(t, f.network.Listening())
	assert.Empty(t, f.node.Engine().Observed())
	assert.True(t, rec.Closed())
	f.waitEvent(t, EventDeregistered)

	// The node can register again.
	f.register(t)
	assert.Equal(t, "/rd/2", f.node.Session().Location)
	assert.True(t, f.network.Listening())
}

func TestDeregisterNetworkError(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	f.network.RemoveServer(serverHost, serverPort)

	_, err := f.node.Deregister(context.Background())
	assert.ErrorIs(t, err, lwm2mtest.ErrUnreachable)
	assert.Equal(t, StateUnregistered, f.node.State())
	assert.False(t, f.network.Listening())
	f.waitEvent(t, EventDeregistered)
}

func TestUpdateWithoutChanges(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	code, err := f.node.Update(context.Background(), UpdateOptions{
		Lifetime: intPtr(600),
		Version:  stringPtr("1.0"),
	})
	require.NoError(t, err)
	assert.Equal(t, wire.CodeChanged, code)
	assert.Len(t, f.server.Requests(), 1, "only the register request reaches the server")
}

func TestUpdateSendsChangedFields(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	code, err := f.node.Update(context.Background(), UpdateOptions{
		Lifetime: intPtr(600),
		Binding:  stringPtr("UQ"),
	})
	require.NoError(t, err)
	assert.Equal(t, wire.CodeChanged, code)

	reqs := f.server.RequestsTo(wire.MethodPost)
	require.Len(t, reqs, 2)
	update := reqs[1]
	assert.Equal(t, "/rd/1", update.Path)
	assert.Equal(t, []string{"b=UQ"}, update.Query)
	assert.Empty(t, update.Payload)
	assert.Equal(t, "UQ", f.node.Session().Binding)

	_, err = f.node.Update(context.Background(), UpdateOptions{ObjectList: true})
	require.NoError(t, err)
	reqs = f.server.RequestsTo(wire.MethodPost)
	assert.Equal(t, "</3/0>,</3303/0>", string(reqs[2].Payload))
	assert.Equal(t, wire.FormatLinkFormat, reqs[2].ContentFormat)
}

func TestUpdateInvalidLifetime(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	code, err := f.node.Update(context.Background(), UpdateOptions{Lifetime: intPtr(0)})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, wire.CodeBadRequest, code)
	assert.Equal(t, StateRegistered, f.node.State())

	code, err = f.node.Update(context.Background(), UpdateOptions{Version: stringPtr("9.9")})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, wire.CodeBadRequest, code)

	code, err = f.node.Update(context.Background(), UpdateOptions{Binding: stringPtr("X")})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, wire.CodeBadRequest, code)
	assert.Len(t, f.server.RequestsTo(wire.MethodPost), 1, "only the registration was sent")
}

func TestUpdateNetworkErrorUnregisters(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	f.network.RemoveServer(serverHost, serverPort)

	_, err := f.node.Update(context.Background(), UpdateOptions{Lifetime: intPtr(30)})
	assert.ErrorIs(t, err, lwm2mtest.ErrUnreachable)
	assert.Equal(t, StateUnregistered, f.node.State())
	assert.Equal(t, 600, f.node.Session().Lifetime)
}

func TestUpdateServerLostRegistration(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	require.NoError(t, f.server.Forget("node-1"))

	code, err := f.node.Update(context.Background(), UpdateOptions{Lifetime: intPtr(30)})
	require.NoError(t, err)
	assert.Equal(t, wire.CodeNotFound, code)
	assert.Equal(t, StateUnregistered, f.node.State())
}

func TestRegisterFailures(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		f := newFixture(t, nil)
		f.network.RemoveServer(serverHost, serverPort)

		_, err := f.node.Register(context.Background(), serverHost, serverPort)
		assert.ErrorIs(t, err, lwm2mtest.ErrUnreachable)
		assert.Equal(t, StateUnregistered, f.node.State())
		assert.False(t, f.network.Listening())
	})

	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		f.server.Handlers.OnRequest = func(req *wire.Request) *wire.Response {
			return wire.NewResponse(wire.CodeBadRequest)
		}

		code, err := f.node.Register(context.Background(), serverHost, serverPort)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, wire.CodeBadRequest, statusErr.Code)
		assert.Equal(t, wire.CodeBadRequest, code)
		assert.Equal(t, StateUnregistered, f.node.State())
	})

	t.Run("no location", func(t *testing.T) {
		f := newFixture(t, nil)
		f.server.Handlers.OnRequest = func(req *wire.Request) *wire.Response {
			return wire.NewResponse(wire.CodeCreated)
		}

		_, err := f.node.Register(context.Background(), serverHost, serverPort)
		assert.ErrorIs(t, err, ErrNoLocation)
		assert.Equal(t, StateUnregistered, f.node.State())
	})
}

func TestLifetimeRefresh(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Lifetime = 3
		c.RefreshMargin = time.Second
	})
	f.register(t)

	require.Eventually(t, func() bool {
		reg, ok := f.server.Registration("node-1")
		return ok && reg.Updates >= 2
	}, waitTimeout, 5*time.Millisecond)

	for _, req := range f.server.RequestsTo(wire.MethodPost)[1:] {
		assert.Equal(t, "/rd/1", req.Path)
		assert.Equal(t, []string{"lt=3"}, req.Query)
	}
	assert.Equal(t, StateRegistered, f.node.State())
	f.waitEvent(t, EventUpdated)
}

func TestRefreshNotFoundStopsTicker(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Lifetime = 2
		c.RefreshMargin = time.Second
	})
	f.register(t)
	require.NoError(t, f.server.Forget("node-1"))

	require.Eventually(t, func() bool {
		return f.node.State() == StateUnregistered
	}, waitTimeout, 5*time.Millisecond)

	e := f.waitEvent(t, EventError)
	assert.Equal(t, wire.CodeNotFound, e.Code)

	sent := len(f.server.Requests())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, f.server.Requests(), sent, "no refresh after 4.04")
}

func TestRefreshNetworkErrorKeepsRegistration(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Lifetime = 2
		c.RefreshMargin = time.Second
	})
	f.register(t)
	f.server.FailMethod(wire.MethodPost, errors.New("timeout"))

	e := f.waitEvent(t, EventError)
	assert.Error(t, e.Error)
	assert.Equal(t, StateRegistered, f.node.State())

	f.server.FailMethod(wire.MethodPost, nil)
	require.Eventually(t, func() bool {
		reg, _ := f.server.Registration("node-1")
		return reg.Updates >= 1
	}, waitTimeout, 5*time.Millisecond)
}

// captureLogger keeps protocol log events in memory.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) byCategory(cat log.Category) []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []log.Event
	for _, e := range c.events {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

func TestProtocolLogLocalEventsAreOutbound(t *testing.T) {
	plog := &captureLogger{}
	f := newFixture(t, func(c *Config) {
		c.Lifetime = 2
		c.RefreshMargin = time.Second
		c.ProtocolLogger = plog
	})
	f.register(t)
	f.server.FailMethod(wire.MethodPost, errors.New("timeout"))
	f.waitEvent(t, EventError)

	require.Eventually(t, func() bool {
		return len(plog.byCategory(log.CategoryError)) > 0
	}, waitTimeout, 5*time.Millisecond)

	states := plog.byCategory(log.CategoryState)
	require.NotEmpty(t, states)
	for _, e := range append(states, plog.byCategory(log.CategoryError)...) {
		if e.Direction != log.DirectionOut {
			t.Errorf("%s event Direction = %v, want OUT", e.Category, e.Direction)
		}
	}

	in, state := log.DirectionIn, log.CategoryState
	filter := log.Filter{Direction: &in, Category: &state}
	for _, e := range states {
		if filter.Matches(e) {
			t.Errorf("state event %+v matches an inbound filter", e.StateChange)
		}
	}
}

func TestRefreshAfterClampsMargin(t *testing.T) {
	tests := []struct {
		lifetime int
		margin   time.Duration
		want     int
	}{
		{86400, 5 * time.Second, 86395},
		{10, 5 * time.Second, 5},
		{4, 10 * time.Second, 2},
		{1, 5 * time.Second, 1},
		{60, 0, 60},
	}
	for _, tt := range tests {
		n := &Node{config: Config{RefreshMargin: tt.margin}, lifetime: tt.lifetime}
		if got := n.refreshAfterLocked(); got != tt.want {
			t.Errorf("refreshAfter(lt=%d, margin=%s) = %d, want %d", tt.lifetime, tt.margin, got, tt.want)
		}
	}
}

func TestServesServerRequests(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	rec, err := f.network.Request(serverPeer, wire.NewRequest(wire.MethodGet, "/3/0/0"), waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, wire.CodeContent, rec.Code())
	assert.Equal(t, "acme", string(rec.Payload()))

	rec, err = f.network.Request(serverPeer, wire.NewRequest(wire.MethodPost, "/announce").
		WithPayload(wire.FormatTextPlain, []byte("maintenance")), waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, wire.CodeChanged, rec.Code())
	e := f.waitEvent(t, EventAnnounce)
	assert.Equal(t, "maintenance", string(e.Payload))
}

func TestNotifiedEvent(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	obs := wire.NewRequest(wire.MethodGet, "/3303/0/5700").WithObserve(wire.ObserveRegister)
	rec, err := f.network.Request(serverPeer, obs, waitTimeout)
	require.NoError(t, err)
	require.Equal(t, wire.CodeContent, rec.Code())

	p := model.ResourcePath("3303", 0, "5700").Normalize(f.node.Tree().Resolver())
	require.NoError(t, f.node.Tree().Write(context.Background(), p, 30.5))

	e := f.waitEvent(t, EventNotified)
	assert.Equal(t, p, e.Path)
	assert.Equal(t, 30.5, e.Value)
	select {
	case payload := <-rec.Notifications():
		assert.Contains(t, string(payload), "30.5")
	case <-time.After(waitTimeout):
		t.Fatal("no notification on the observe stream")
	}
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	rec := f.openHeartbeat(t)
	assert.Equal(t, "node-1", string(rec.Payload()))
	assert.True(t, f.node.Session().Heartbeat)

	for i := 0; i < 2; i++ {
		select {
		case token := <-rec.Notifications():
			_, err := uuid.Parse(string(token))
			assert.NoError(t, err, "keep-alive token %q", token)
		case <-time.After(waitTimeout):
			t.Fatal("no keep-alive written")
		}
	}
}

func TestHeartbeatCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	stream := f.openHeartbeat(t)

	cancel := wire.NewRequest(wire.MethodGet, "/heartbeat").WithObserve(wire.ObserveDeregister)
	rec, err := f.network.Request(serverPeer, cancel, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, wire.CodeContent, rec.Code())

	f.waitEvent(t, EventLogout)
	assert.True(t, stream.Closed())
	assert.Equal(t, StateRegistered, f.node.State())
	assert.Equal(t, 0, f.count(EventOffline))
}

func TestHeartbeatLostWithoutReconnect(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	stream := f.openHeartbeat(t)

	require.NoError(t, stream.Close())

	f.waitEvent(t, EventLogout)
	f.waitEvent(t, EventOffline)
	assert.Equal(t, StateUnregistered, f.node.State())
	assert.False(t, f.node.Session().Heartbeat)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, f.count(EventReconnecting))
	assert.Len(t, f.server.RequestsTo(wire.MethodPost), 1)
}

func TestHeartbeatLostReconnects(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AutoReconnect = true })
	f.register(t)
	stream := f.openHeartbeat(t)

	// The server is gone for the first attempts.
	f.network.RemoveServer(serverHost, serverPort)
	require.NoError(t, stream.Close())

	f.waitEvent(t, EventOffline)
	require.Eventually(t, func() bool { return f.count(EventReconnecting) >= 2 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, StateUnregistered, f.node.State())

	f.network.AddServer(serverHost, serverPort, f.server)
	require.Eventually(t, func() bool { return f.count(EventRegistered) >= 2 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, StateRegistered, f.node.State())
	assert.Equal(t, "/rd/2", f.node.Session().Location)
	assert.Equal(t, 1, f.server.Registrations())
}

func TestExplicitDeregisterDoesNotReconnect(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AutoReconnect = true })
	f.register(t)
	f.openHeartbeat(t)

	_, err := f.node.Deregister(context.Background())
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, f.count(EventOffline))
	assert.Equal(t, 0, f.count(EventReconnecting))
	assert.Equal(t, StateUnregistered, f.node.State())
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t, nil)

	code, err := f.node.Bootstrap(context.Background(), serverHost, serverPort)
	require.NoError(t, err)
	assert.Equal(t, wire.CodeChanged, code)
	assert.Equal(t, []string{"node-1"}, f.server.Bootstraps())
	e := f.waitEvent(t, EventBootstrap)
	assert.Equal(t, wire.CodeChanged, e.Code)

	_, err = f.node.Bootstrap(context.Background(), "10.9.9.9", 5683)
	assert.ErrorIs(t, err, lwm2mtest.ErrUnreachable)
}

func TestPing(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.node.Ping(context.Background()), ErrNotRegistered)

	f.register(t)
	assert.NoError(t, f.node.Ping(context.Background()))

	f.network.RemoveServer(serverHost, serverPort)
	assert.ErrorIs(t, f.node.Ping(context.Background()), lwm2mtest.ErrUnreachable)
}

func TestSleepWake(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	f.node.Sleep()
	assert.True(t, f.node.Sleeping())
	assert.True(t, f.node.Session().Sleeping)

	code, err := f.node.Wake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.CodeChanged, code)
	assert.False(t, f.node.Sleeping())

	reqs := f.server.RequestsTo(wire.MethodPost)
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"lt=600"}, reqs[1].Query)
}

func TestWakeUnregistered(t *testing.T) {
	f := newFixture(t, nil)
	f.node.Sleep()

	code, err := f.node.Wake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.CodeNotFound, code)
	assert.False(t, f.node.Sleeping())
}

func TestReapIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	const other = "10.0.0.50:40000"
	for _, peer := range []string{serverPeer, other} {
		_, err := f.network.Request(peer, wire.NewRequest(wire.MethodGet, "/3/0/0"), waitTimeout)
		require.NoError(t, err)
	}
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, f.node.reapIdle(time.Millisecond))
	assert.Equal(t, []string{serverPeer}, f.network.Peers())
}

func TestReapKeepsObservers(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	const observer = "10.0.0.51:40000"
	obs := wire.NewRequest(wire.MethodGet, "/3303/0/5700").WithObserve(wire.ObserveRegister)
	rec, err := f.network.Request(observer, obs, waitTimeout)
	require.NoError(t, err)
	require.Equal(t, wire.CodeContent, rec.Code())
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 0, f.node.reapIdle(time.Millisecond))
	assert.False(t, rec.Closed())
}

func TestClose(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	require.NoError(t, f.node.Close())
	require.NoError(t, f.node.Close())

	assert.Equal(t, StateUnregistered, f.node.State())
	assert.False(t, f.network.Listening())

	_, err := f.node.Register(context.Background(), serverHost, serverPort)
	assert.ErrorIs(t, err, ErrNodeClosed)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Op: "register", Code: wire.CodeBadRequest}
	if !strings.Contains(err.Error(), "register") || !strings.Contains(err.Error(), "4.00") {
		t.Errorf("Error() = %q, want op and dotted code", err.Error())
	}
}
