package admin

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lwm2m-node/lwm2m-go/pkg/client"
)

// handleEvents upgrades to a websocket and streams node events as JSON
// until the peer goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.debugLog("websocket upgrade failed", "error", err)
		return
	}

	events := s.subscribe()
	defer s.unsubscribe(events)

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, events, done)
}

// readPump consumes control frames and closes done when the peer is gone.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.debugLog("websocket read failed", "error", err)
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, events <-chan apiEvent, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return

		case e, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				s.debugLog("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) subscribe() chan apiEvent {
	ch := make(chan apiEvent, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan apiEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Server) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Subscribers returns the number of connected event streams.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// broadcast fans a node event out to every subscriber. Slow subscribers
// lose events.
func (s *Server) broadcast(e client.Event) {
	ae := toAPIEvent(e, s.node)

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ae:
		default:
		}
	}
}

func toAPIEvent(e client.Event, node *client.Node) apiEvent {
	ae := apiEvent{
		Type:     e.Type.String(),
		Time:     time.Now(),
		Value:    e.Value,
		Forced:   e.Forced,
		Location: e.Location,
		Attempt:  e.Attempt,
	}
	if e.Path.Object != "" {
		ae.Path = e.Path.Numeric(node.Tree().Resolver())
	}
	if e.Code != 0 {
		ae.Code = e.Code.Dotted()
	}
	if e.Error != nil {
		ae.Error = e.Error.Error()
	}
	if e.Payload != nil && ae.Value == nil {
		ae.Value = string(e.Payload)
	}
	return ae
}
