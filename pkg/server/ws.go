package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// readWait is the liveness window: clients ping at least every 25s
	// and get 10s of slack. Any inbound frame refreshes it.
	readWait = 35 * time.Second
	// sendBuffer is the per-connection outbound queue. A client that
	// cannot drain this many frames is dead weight and gets closed.
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Game clients are expected from arbitrary origins; sessions are the
	// authority, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Conn is one websocket client. Outbound frames go through a bounded
// channel drained by a single writer goroutine, so broadcasts never block
// on a slow peer.
type Conn struct {
	id  string
	srv *Server
	ws  *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu    sync.Mutex
	token string // bound session token
}

func newConn(srv *Server, ws *websocket.Conn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		srv:  srv,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Token returns the session token bound to this connection.
func (c *Conn) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Conn) bindToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Send queues a payload for the writer goroutine. A full buffer closes the
// connection; the client can resume its session once it recovers.
func (c *Conn) Send(payload []byte) {
	select {
	case c.send <- payload:
	case <-c.done:
	default:
		c.srv.log.Warnf("conn %s: send buffer overflow, closing", c.id)
		c.Close()
	}
}

// Close tears the connection down once. Safe from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

func (c *Conn) writePump() {
	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.Close()
		c.srv.handleDisconnect(c)
	}()
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.log.Debugf("conn %s: read error: %v", c.id, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(readWait))
		c.srv.handleMessage(c, data)
	}
}

// HandleWS upgrades an HTTP request, mints a fresh session for the
// connection and starts the read/write pumps. The client may replace the
// fresh session with resume-session as its first message.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("websocket upgrade failed: %v", err)
		return
	}

	sess, err := s.sessions.Create()
	if err != nil {
		s.log.Errorf("create session: %v", err)
		ws.Close()
		return
	}

	c := newConn(s, ws)
	c.bindToken(sess.Token)
	s.registerConn(sess.PlayerID, c)

	s.events.Publish(SessionCreatedMsg{
		Type:         MsgSessionCreated,
		SessionToken: sess.Token,
		PlayerID:     sess.PlayerID,
	}, c)

	go c.writePump()
	go c.readPump()
}
