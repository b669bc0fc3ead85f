package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from arbitrary origins in deployments;
	// there is no session to protect on this read-only stream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsObserver adapts one WebSocket connection to the notify.Observer
// interface. Writes are serialized; the hub and the read loop both send
// on the same connection.
type wsObserver struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (o *wsObserver) ID() string { return o.id }

func (o *wsObserver) Send(payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return o.conn.WriteMessage(websocket.TextMessage, payload)
}

// serveWebSocket handles GET /ws. Connected clients receive
// data_refreshed notifications after each successful refresh cycle;
// any message a client sends is answered with a ping frame carrying
// the server time.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	observer := &wsObserver{
		id:   uuid.New().String(),
		conn: conn,
	}
	s.hub.Register(observer)

	defer func() {
		s.hub.Unregister(observer.id)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		pong := []byte(`{"type":"ping","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}`)
		if err := observer.Send(pong); err != nil {
			return
		}
	}
}
