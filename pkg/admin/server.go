// Package admin serves a small HTTP API for inspecting a running node:
// its session, its resource tree, a live event stream and metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lwm2m-node/lwm2m-go/pkg/client"
	"github.com/lwm2m-node/lwm2m-go/pkg/interaction"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 30 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Events buffered per subscriber before new ones are dropped.
	subscriberBuffer = 64

	shutdownTimeout = 5 * time.Second
)

// Config configures the admin server.
type Config struct {
	// Gatherer is served on /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer

	// Logger is used for debug output. Nil disables it.
	Logger *slog.Logger
}

// Server is the admin HTTP server of a node.
type Server struct {
	node     *client.Node
	config   Config
	router   *mux.Router
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[chan apiEvent]struct{}
}

// New creates the admin server for node and subscribes to its events.
func New(node *client.Node, config Config) *Server {
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		node:   node,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subscribers: make(map[chan apiEvent]struct{}),
	}
	s.router = s.routes()
	node.OnEvent(s.broadcast)
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	a := r.PathPrefix("/api/v1").Subrouter()
	a.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	})

	a.Path("/session").
		Methods(http.MethodGet).
		HandlerFunc(s.handleSession)

	a.Path("/registration").
		Methods(http.MethodDelete).
		HandlerFunc(s.handleDeregister)

	a.Path("/tree").
		Methods(http.MethodGet).
		HandlerFunc(s.handleObjects)

	a.Path("/tree/{path:.+}").
		Methods(http.MethodGet).
		HandlerFunc(s.handleRead)

	a.Path("/tree/{path:.+}").
		Methods(http.MethodPut).
		HandlerFunc(s.handleWrite)

	r.Path("/api/v1/events").
		Methods(http.MethodGet).
		HandlerFunc(s.handleEvents)

	r.Path("/metrics").
		Methods(http.MethodGet).
		Handler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))

	r.Path("/healthz").
		Methods(http.MethodGet, http.MethodOptions).
		HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("OK"))
		})

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.debugLog("admin listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.closeSubscribers()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin shutdown: %w", err)
		}
		return nil
	}
}

type apiErrorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

type apiSession struct {
	Name          string   `json:"name"`
	State         string   `json:"state"`
	Lifetime      int      `json:"lifetime"`
	Version       string   `json:"version"`
	Binding       string   `json:"binding"`
	Server        string   `json:"server,omitempty"`
	Location      string   `json:"location,omitempty"`
	Elapsed       int      `json:"elapsed"`
	Sleeping      bool     `json:"sleeping"`
	AutoReconnect bool     `json:"autoReconnect"`
	Heartbeat     bool     `json:"heartbeat"`
	Listen        string   `json:"listen,omitempty"`
	Observed      []string `json:"observed"`
}

type apiObjectsResponse struct {
	Objects []string `json:"objects"`
}

type apiValueResponse struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type apiEvent struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Path     string    `json:"path,omitempty"`
	Value    any       `json:"value,omitempty"`
	Forced   bool      `json:"forced,omitempty"`
	Location string    `json:"location,omitempty"`
	Code     string    `json:"code,omitempty"`
	Attempt  int       `json:"attempt,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.node.Session()
	resp := apiSession{
		Name:          sess.Name,
		State:         sess.State.String(),
		Lifetime:      sess.Lifetime,
		Version:       sess.Version,
		Binding:       sess.Binding,
		Location:      sess.Location,
		Elapsed:       sess.Elapsed,
		Sleeping:      sess.Sleeping,
		AutoReconnect: sess.AutoReconnect,
		Heartbeat:     sess.Heartbeat,
		Listen:        sess.ListenAddress,
		Observed:      []string{},
	}
	if sess.ServerHost != "" {
		resp.Server = net.JoinHostPort(sess.ServerHost, fmt.Sprint(sess.ServerPort))
	}
	resolver := s.node.Tree().Resolver()
	for _, p := range s.node.Engine().Observed() {
		resp.Observed = append(resp.Observed, p.Numeric(resolver))
	}
	writeJSON(w, resp)
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	code, err := s.node.Deregister(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	if code == wire.CodeNotFound {
		s.writeError(w, http.StatusNotFound, client.ErrNotRegistered)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	resolver := s.node.Tree().Resolver()
	resp := apiObjectsResponse{Objects: []string{}}
	for _, p := range s.node.Tree().Objects() {
		resp.Objects = append(resp.Objects, p.Numeric(resolver))
	}
	writeJSON(w, resp)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	p, ok := s.path(w, r)
	if !ok {
		return
	}
	value, err := s.node.Tree().Dump(r.Context(), p)
	if err != nil && value == nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, apiValueResponse{Path: p.Numeric(s.node.Tree().Resolver()), Value: value})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	p, ok := s.path(w, r)
	if !ok {
		return
	}
	var value any
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to parse request body: %w", err))
		return
	}
	if err := s.node.Tree().Write(r.Context(), p, fromJSON(value)); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) path(w http.ResponseWriter, r *http.Request) (model.Path, bool) {
	raw := mux.Vars(r)["path"]
	p, err := model.ParsePath(s.node.Tree().Resolver(), raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return model.Path{}, false
	}
	return p, true
}

// fromJSON converts decoded JSON numbers to int64 or float64.
func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = fromJSON(e)
		}
		return x
	}
	return v
}

// statusFor maps a tree error to an HTTP status.
func statusFor(err error) int {
	switch interaction.CodeFor(err) {
	case wire.CodeNotFound:
		return http.StatusNotFound
	case wire.CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, resp any) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.debugLog("request failed", "error", err)
	w.WriteHeader(code)
	writeJSON(w, apiErrorResponse{
		Error:  err.Error(),
		Status: http.StatusText(code),
	})
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
