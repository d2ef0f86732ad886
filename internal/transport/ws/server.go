package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/conclave/internal/bus"
	"github.com/xiaot623/conclave/internal/domain"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	pollInterval = time.Second
)

// Server upgrades observer connections and mirrors the decisions
// channel to them.
type Server struct {
	hub      *Hub
	bus      *bus.Bus
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(h *Hub, b *bus.Bus) *Server {
	return &Server{
		hub: h,
		bus: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the observer endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/decisions", s.HandleWebSocket)
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: websocket upgrade failed: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// Mirror polls the decisions channel and broadcasts every new message
// to connected observers. It returns when ctx is done.
//
// Each poll resumes just before the newest timestamp seen, so a message
// published later with that same timestamp is not skipped; seen filters
// the frontier messages delivered again.
func (s *Server) Mirror(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	frontier := time.Now()
	seen := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		messages, err := s.bus.Poll(ctx, domain.ChannelDecisions, frontier.Add(-time.Nanosecond), 0, bus.Filter{})
		if err != nil {
			log.Printf("WARN: decisions poll failed: %v", err)
			continue
		}
		for _, msg := range messages {
			if _, dup := seen[msg.MessageID]; dup {
				continue
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			s.hub.Broadcast(data)
		}
		if len(messages) == 0 {
			continue
		}
		frontier = messages[len(messages)-1].Timestamp
		next := make(map[string]struct{})
		for _, msg := range messages {
			if !msg.Timestamp.Before(frontier) {
				next[msg.MessageID] = struct{}{}
			}
		}
		seen = next
	}
}

// readPump discards observer input; it exists to detect disconnects and
// keep pong handling alive.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: websocket error: %v", err)
			}
			return
		}
	}
}

func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WARN: failed to write to observer: %v", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
