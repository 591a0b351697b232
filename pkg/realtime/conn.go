package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/auth"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

// Connection state machine.
type connState int

const (
	stateUnbound connState = iota
	stateJoining
	stateBound
	stateLeaving
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before dropping the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames. Code payloads may be up to
	// 1,000,000 bytes before JSON framing, and escaping can expand a
	// control character to six bytes, so the limit sits well above that
	// worst case.
	maxMessageSize = 8 << 20

	// sendQueueSize is the per-connection outbound buffer. A peer that
	// cannot drain it is disconnected rather than allowed to block the
	// session's fan-out.
	sendQueueSize = 256
)

// Conn is one realtime connection. It is bound to at most one session at a
// time; the binding is an id resolved through the registry, never a pointer.
// Outbound messages pass through a single writer goroutine, which preserves
// per-sender FIFO toward this peer.
type Conn struct {
	id        string
	principal *auth.Principal

	// authenticated is false for guest connections admitted at transport
	// level with a missing or rejected credential.
	authenticated bool
	remoteAddr    string

	hub *Hub
	ws  *websocket.Conn

	send      chan []byte
	closeOnce sync.Once

	mu        sync.Mutex
	state     connState
	sessionID string
	closed    bool
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Principal returns the principal attached at handshake.
func (c *Conn) Principal() *auth.Principal { return c.principal }

// SessionID returns the bound session id, or "" when unbound.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// bindSession transitions UNBOUND -> JOINING. It fails when the connection
// is already bound or mid-join; a connection is single-session.
func (c *Conn) beginJoin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateUnbound {
		return false
	}
	c.state = stateJoining
	return true
}

// completeJoin transitions JOINING -> BOUND on success, or back to UNBOUND.
func (c *Conn) completeJoin(sessionID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.state = stateBound
		c.sessionID = sessionID
		return
	}
	c.state = stateUnbound
	c.sessionID = ""
}

// beginLeave transitions BOUND -> LEAVING and returns the session being
// left. The second return is false when the connection was not bound, which
// makes the leave a no-op and keeps peer notifications exactly-once.
func (c *Conn) beginLeave() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateBound {
		return "", false
	}
	c.state = stateLeaving
	sid := c.sessionID
	return sid, true
}

// completeLeave transitions LEAVING -> UNBOUND.
func (c *Conn) completeLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateUnbound
	c.sessionID = ""
}

// unbind clears the binding without the leave protocol. Used when the
// session itself was deleted.
func (c *Conn) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateUnbound
	c.sessionID = ""
}

// Send queues an already-serialized envelope. A full queue closes the
// connection: a stalled peer must not block the session's event plane.
// Sends racing a close are dropped.
func (c *Conn) Send(msg []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		logger.Warnw("send queue full, dropping connection", "connection_id", c.id)
		c.Close()
	}
}

// SendEvent serializes and queues an event to this connection only.
func (c *Conn) SendEvent(event string, payload any) {
	msg, err := outbound(event, payload)
	if err != nil {
		logger.Errorw("failed to serialize event", "event", event, "error", err)
		return
	}
	c.Send(msg)
}

// SendError sends a typed error event to this connection.
func (c *Conn) SendError(event, kind, message string) {
	c.SendEvent(event, errorPayload{Error: kind, Message: message})
}

// Close tears the connection down once. The read pump's exit path performs
// the implicit leave.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// readPump reads frames, decodes envelopes, and hands them to the router.
// It exits on transport close, after which the hub performs the implicit
// leave and unregisters the connection.
func (c *Conn) readPump() {
	defer c.hub.disconnect(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugw("connection closed unexpectedly", "connection_id", c.id, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.SendError(EventError, "invalid_payload", "malformed envelope")
			continue
		}
		c.hub.router.Dispatch(c, env)
	}
}

// writePump is the single writer for this connection. Envelopes leave in
// queue order, so fan-out order per sender-receiver pair is preserved.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
