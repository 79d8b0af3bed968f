package board

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"go-board/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong or frame from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Maximum frame size allowed from peer. Text limits are checked per frame kind.
	sendBuffer     = 256                 // Outbound frames a session may have pending.
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Boards are open to any page that knows the board id.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type sessionState int

const (
	stateAwaitingIdentity sessionState = iota
	stateActive
	stateClosed
)

// outbound is one item of a session's write queue: a text frame, or a close
// frame that ends the connection after everything queued before it.
type outbound struct {
	data  []byte
	close bool
	code  int
	text  string
}

// Session is a middleman between one websocket connection and its board's
// hub.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan outbound
	ip   string

	// Everything below is owned by the hub goroutine.
	state      sessionState
	name       string
	blocked    [][]byte
	gate       *ratelimit.Gate
	quit       bool
	closing    bool
	sendClosed bool
	departed   bool
}

// readPump pumps frames from the websocket connection to the hub.
func (s *Session) readPump() {
	// Cleanup: tell the hub we left, then drop the connection.
	defer func() {
		s.hub.leave(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.hub.logger.Debug("websocket read failed", "ip", s.ip, "error", err)
			}
			return
		}
		// Any frame proves the peer is alive.
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if !s.hub.submit(s, data) {
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if msg.close {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(msg.code, msg.text))
				return
			}
			// One frame per event: clients decode each frame as a single object.
			if err := s.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat logic
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveSession registers an upgraded connection with the hub and starts its
// pumps. It returns immediately.
func (h *Hub) serveSession(conn *websocket.Conn, ip string) {
	s := &Session{hub: h, conn: conn, send: make(chan outbound, sendBuffer), ip: ip}

	select {
	case h.register <- s:
	case <-h.done:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "board closed"))
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump()
}
