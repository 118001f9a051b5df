package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tmaxmax/go-sse"

	"freeda-support/src/events"
	"freeda-support/src/ticket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// Viewers only listen; anything they send is read and discarded.
	maxClientFrame = 4096
)

// watch attaches a viewer to the :id ticket. Errors are written as regular
// HTTP responses since nothing has been upgraded yet.
func (s *Server) watch(c *gin.Context) (*events.Subscription, bool) {
	id := c.Param("id")
	if !ticket.ValidID(id) {
		s.fail(c, ticket.ErrNotFound)
		return nil, false
	}
	sub, err := s.orch.Watch(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return sub, true
}

// serveWebSocket streams a ticket's events as JSON text frames, starting
// with a ticket_snapshot.
func (s *Server) serveWebSocket(c *gin.Context) {
	sub, ok := s.watch(c)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		s.orch.Unwatch(sub)
		s.log.Warn("[WS] Upgrade failed for %s: %v", sub.TicketID(), err)
		return
	}
	s.log.Debug("[WS] Viewer connected to %s", sub.TicketID())

	go s.writeFrames(conn, sub)

	conn.SetReadLimit(maxClientFrame)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.orch.Unwatch(sub)
	s.log.Debug("[WS] Viewer left %s", sub.TicketID())
}

// writeFrames is the only writer of conn. It exits when the subscription is
// closed or a write fails, and closes the connection on its way out.
func (s *Server) writeFrames(conn *websocket.Conn, sub *events.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case f := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, f.Data); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-sub.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

// streamEvents is the server-sent events flavour of serveWebSocket. The SSE
// event name is the event type and the data is the same JSON document.
func (s *Server) streamEvents(c *gin.Context) {
	sub, ok := s.watch(c)
	if !ok {
		return
	}
	defer s.orch.Unwatch(sub)

	sess, err := sse.Upgrade(c.Writer, c.Request)
	if err != nil {
		s.log.Warn("[SSE] Upgrade failed for %s: %v", sub.TicketID(), err)
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case f := <-sub.C():
			msg := &sse.Message{Type: sse.Type(string(f.Type))}
			msg.AppendData(string(f.Data))
			if err := sess.Send(msg); err != nil {
				return
			}
			if err := sess.Flush(); err != nil {
				return
			}
		case <-sub.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
