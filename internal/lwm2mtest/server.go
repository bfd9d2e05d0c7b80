package lwm2mtest

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/lwm2m-node/lwm2m-go/pkg/codec"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Registration is a client registration held by the fake server.
type Registration struct {
	// Endpoint is the client name from the ep parameter.
	Endpoint string

	// Location is the path assigned on registration, like "/rd/1".
	Location string

	Lifetime int
	Version  string
	Binding  string

	// Objects is the last object list the client sent.
	Objects []codec.Link

	// Updates counts successful update requests.
	Updates int
}

// ServerHandlers holds optional callbacks.
type ServerHandlers struct {
	// OnRequest is called for every request before it is handled. A
	// non-nil response is returned instead of the normal handling.
	OnRequest func(req *wire.Request) *wire.Response
}

// Server is a scriptable fake LWM2M server with a registration
// directory under /rd and a bootstrap endpoint under /bs.
type Server struct {
	// Handlers are callbacks for server operations.
	Handlers ServerHandlers

	mu            sync.Mutex
	registrations map[string]*Registration
	nextID        int
	requests      []*wire.Request
	failures      map[wire.Method]error
	bootstraps    []string
}

// NewServer creates a server without registrations.
func NewServer() *Server {
	return &Server{
		registrations: make(map[string]*Registration),
		failures:      make(map[wire.Method]error),
		nextID:        1,
	}
}

// FailMethod makes every request with method m fail with err until
// cleared with a nil err.
func (s *Server) FailMethod(m wire.Method, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, m)
		return
	}
	s.failures[m] = err
}

// Handle implements Handler.
func (s *Server) Handle(req *wire.Request) (*wire.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	failure := s.failures[req.Method]
	s.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if s.Handlers.OnRequest != nil {
		if resp := s.Handlers.OnRequest(req); resp != nil {
			return resp, nil
		}
	}

	segs := wire.SplitPath(req.Path)
	switch {
	case len(segs) == 1 && segs[0] == "rd" && req.Method == wire.MethodPost:
		return s.register(req), nil
	case len(segs) == 2 && segs[0] == "rd" && req.Method == wire.MethodPost:
		return s.update(segs[1], req), nil
	case len(segs) == 2 && segs[0] == "rd" && req.Method == wire.MethodDelete:
		return s.deregister(segs[1]), nil
	case len(segs) == 1 && segs[0] == "bs" && req.Method == wire.MethodPost:
		return s.bootstrap(req), nil
	}
	return wire.NewResponse(wire.CodeNotFound), nil
}

func (s *Server) register(req *wire.Request) *wire.Response {
	ep, ok := req.QueryValue("ep")
	if !ok || ep == "" {
		return wire.NewResponse(wire.CodeBadRequest)
	}
	objects, err := codec.ParseLinks(req.Payload)
	if err != nil {
		return wire.NewResponse(wire.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A client registering again replaces its old registration.
	for id, r := range s.registrations {
		if r.Endpoint == ep {
			delete(s.registrations, id)
		}
	}
	id := strconv.Itoa(s.nextID)
	s.nextID++
	reg := &Registration{
		Endpoint: ep,
		Location: "/rd/" + id,
		Objects:  objects,
	}
	applyQuery(reg, req)
	s.registrations[id] = reg

	resp := wire.NewResponse(wire.CodeCreated)
	resp.Location = []string{"rd", id}
	return resp
}

func (s *Server) update(id string, req *wire.Request) *wire.Response {
	var objects []codec.Link
	if len(req.Payload) > 0 {
		var err error
		if objects, err = codec.ParseLinks(req.Payload); err != nil {
			return wire.NewResponse(wire.CodeBadRequest)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok {
		return wire.NewResponse(wire.CodeNotFound)
	}
	applyQuery(reg, req)
	if objects != nil {
		reg.Objects = objects
	}
	reg.Updates++
	return wire.NewResponse(wire.CodeChanged)
}

func (s *Server) deregister(id string) *wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[id]; !ok {
		return wire.NewResponse(wire.CodeNotFound)
	}
	delete(s.registrations, id)
	return wire.NewResponse(wire.CodeDeleted)
}

func (s *Server) bootstrap(req *wire.Request) *wire.Response {
	ep, ok := req.QueryValue("ep")
	if !ok || ep == "" {
		return wire.NewResponse(wire.CodeBadRequest)
	}
	s.mu.Lock()
	s.bootstraps = append(s.bootstraps, ep)
	s.mu.Unlock()
	return wire.NewResponse(wire.CodeChanged)
}

func applyQuery(reg *Registration, req *wire.Request) {
	if v, ok := req.QueryValue("lt"); ok {
		if lt, err := strconv.Atoi(v); err == nil {
			reg.Lifetime = lt
		}
	}
	if v, ok := req.QueryValue("lwm2m"); ok {
		reg.Version = v
	}
	if v, ok := req.QueryValue("b"); ok {
		reg.Binding = v
	}
}

// Registration returns a copy of the registration of endpoint ep.
func (s *Server) Registration(ep string) (Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.registrations {
		if r.Endpoint == ep {
			c := *r
			c.Objects = append([]codec.Link(nil), r.Objects...)
			return c, true
		}
	}
	return Registration{}, false
}

// Registrations returns the number of live registrations.
func (s *Server) Registrations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registrations)
}

// Forget drops the registration of ep, as a server does when the
// lifetime expired. Later updates get 4.04.
func (s *Server) Forget(ep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.registrations {
		if r.Endpoint == ep {
			delete(s.registrations, id)
			return nil
		}
	}
	return fmt.Errorf("forget %s: %w", ep, errNoRegistration)
}

var errNoRegistration = errors.New("no registration")

// Requests returns every request the server received.
func (s *Server) Requests() []*wire.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*wire.Request(nil), s.requests...)
}

// RequestsTo returns the received requests with method m.
func (s *Server) RequestsTo(m wire.Method) []*wire.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*wire.Request
	for _, r := range s.requests {
		if r.Method == m {
			out = append(out, r)
		}
	}
	return out
}

// Bootstraps returns the endpoints that requested bootstrap.
func (s *Server) Bootstraps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bootstraps...)
}
