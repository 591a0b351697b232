package realtime

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/auth"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/telemetry"
)

// HubConfig carries the hub's transport policy.
type HubConfig struct {
	// AllowGuestHandshake admits connections whose credential is missing
	// or rejected as guest principals. When false the handshake is
	// refused with 401 instead.
	AllowGuestHandshake bool
}

// Hub owns every live realtime connection and the session-to-connection
// index. Connections and sessions reference each other by id only; the hub
// and the session registry are the owning indexes.
type Hub struct {
	verifier auth.Verifier
	limiter  *IPRateLimiter
	cfg      HubConfig

	// router is set once at wiring time, before the hub serves traffic.
	router *Router

	upgrader websocket.Upgrader

	mu        sync.RWMutex
	conns     map[string]*Conn
	bySession map[string]map[string]*Conn
}

// NewHub creates a hub. SetRouter must be called before ServeHTTP.
func NewHub(verifier auth.Verifier, limiter *IPRateLimiter, cfg HubConfig) *Hub {
	return &Hub{
		verifier: verifier,
		limiter:  limiter,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the web origin; cross-origin
			// policy is enforced by session admission, not the transport.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:     make(map[string]*Conn),
		bySession: make(map[string]map[string]*Conn),
	}
}

// SetRouter wires the event router. Must happen before the hub accepts
// connections.
func (h *Hub) SetRouter(r *Router) {
	h.router = r
}

// ServeHTTP is the websocket handshake endpoint. It rate-limits by source
// address, resolves the optional credential to a principal (or a guest),
// upgrades, and starts the connection's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	addr := remoteIP(r)
	if !h.limiter.Allow(addr) {
		telemetry.ConnectionsRefused.Inc()
		logger.Warnw("handshake refused by rate limiter", "addr", addr)
		http.Error(w, "connection_error: too many connections", http.StatusTooManyRequests)
		return
	}

	token := bearerToken(r)
	principal, err := h.verifier.Verify(r.Context(), token)
	authenticated := err == nil
	if !authenticated {
		if !h.cfg.AllowGuestHandshake {
			http.Error(w, "invalid_token", http.StatusUnauthorized)
			return
		}
		principal = auth.NewGuestPrincipal()
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "addr", addr, "error", err)
		return
	}

	conn := &Conn{
		id:            uuid.NewString(),
		principal:     principal,
		authenticated: authenticated,
		remoteAddr:    addr,
		hub:           h,
		ws:            ws,
		send:          make(chan []byte, sendQueueSize),
	}

	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()
	telemetry.ConnectionsOpen.Inc()

	logger.Infow("connection opened",
		"connection_id", conn.id, "user_id", principal.UserID, "authenticated", authenticated)

	go conn.writePump()
	go conn.readPump()

	// An invite key or session id in the handshake query joins eagerly.
	inviteKey := r.URL.Query().Get("inviteKey")
	sessionID := r.URL.Query().Get("sessionId")
	if inviteKey != "" || sessionID != "" {
		h.router.handleJoin(conn, joinPayload{InviteKey: inviteKey, SessionID: sessionID})
	}
}

// bind attaches a connection to a session in the hub index.
func (h *Hub) bind(c *Conn, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.bySession[sessionID]
	if !ok {
		room = make(map[string]*Conn)
		h.bySession[sessionID] = room
	}
	room[c.id] = c
}

// unbind detaches a connection from a session in the hub index.
func (h *Hub) unbind(c *Conn, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.bySession[sessionID]; ok {
		delete(room, c.id)
		if len(room) == 0 {
			delete(h.bySession, sessionID)
		}
	}
}

// roomConns snapshots the connections bound to a session.
func (h *Hub) roomConns(sessionID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.bySession[sessionID]
	out := make([]*Conn, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

// BroadcastToSession fans an event out to every connection bound to the
// session. Serialization happens once; each peer's queue preserves order.
func (h *Hub) BroadcastToSession(sessionID, event string, payload any) {
	h.broadcast(sessionID, event, payload, "")
}

// BroadcastToPeers fans an event out to every session peer except the
// sender's connection.
func (h *Hub) BroadcastToPeers(sessionID, event string, payload any, exceptConnID string) {
	h.broadcast(sessionID, event, payload, exceptConnID)
}

func (h *Hub) broadcast(sessionID, event string, payload any, exceptConnID string) {
	msg, err := outbound(event, payload)
	if err != nil {
		logger.Errorw("failed to serialize broadcast", "event", event, "error", err)
		return
	}
	for _, c := range h.roomConns(sessionID) {
		if c.id == exceptConnID {
			continue
		}
		telemetry.Broadcasts.Inc()
		c.Send(msg)
	}
}

// disconnect is the read pump's exit path: implicit leave, then index
// cleanup.
func (h *Hub) disconnect(c *Conn) {
	h.router.handleLeave(c, true)

	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	c.Close()
	h.limiter.Forget(c.remoteAddr)
	telemetry.ConnectionsOpen.Dec()
	logger.Infow("connection closed", "connection_id", c.id, "user_id", c.principal.UserID)
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll sends a close frame to every connection. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
}

// bearerToken extracts the credential from the Authorization header or the
// token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	return r.URL.Query().Get("token")
}

// remoteIP strips the port from the peer address, honoring X-Forwarded-For
// from a fronting proxy.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
