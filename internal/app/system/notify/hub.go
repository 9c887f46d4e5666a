// Package notify pushes leave request changes to connected browsers over
// WebSocket. Each connection only receives requests its user may view.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Message types
const (
	TypeRequest   = "leave_request"
	TypeLeaveType = "leave_type"
	TypeBalances  = "balances_reset"
	TypeHello     = "hello"
)

// Message is one push frame.
type Message struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Action    string               `json:"action,omitempty"`
	RequestID string               `json:"request_id,omitempty"`
	Status    models.LeaveStatus   `json:"status,omitempty"`
	From      models.LeaveStatus   `json:"from,omitempty"`
	Request   *models.LeaveRequest `json:"request,omitempty"`
	LeaveType *models.LeaveType    `json:"leave_type,omitempty"`
	At        time.Time            `json:"at"`
}

type envelope struct {
	msg Message
	// visible decides per client; nil means everyone.
	visible func(authz.Actor) bool
}

// Client is a single connected WebSocket.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	actor authz.Actor
	send  chan []byte
}

// Hub keeps the set of live clients and fans messages out to them.
type Hub struct {
	gate     authz.Gate
	log      *zap.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

var _ leave.Listener = (*Hub)(nil)

// NewHub builds a hub. allowedOrigins lists the browser origins that may
// connect; empty means same host only.
func NewHub(gate authz.Gate, allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		gate:       gate,
		log:        logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 256),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil // gorilla default: Origin host must equal Host
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

// Run dispatches until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("websocket client connected", zap.String("user_id", c.actor.ID.Hex()))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Debug("websocket client disconnected", zap.String("user_id", c.actor.ID.Hex()))
			}
			h.mu.Unlock()
		case env := <-h.broadcast:
			h.dispatch(env)
		}
	}
}

func (h *Hub) dispatch(env envelope) {
	payload, err := json.Marshal(env.msg)
	if err != nil {
		h.log.Error("encode push message", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if env.visible != nil && !env.visible(c.actor) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// slow consumer
			close(c.send)
			delete(h.clients, c)
			h.log.Warn("dropping slow websocket client", zap.String("user_id", c.actor.ID.Hex()))
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) publish(env envelope) {
	env.msg.ID = uuid.NewString()
	if env.msg.At.IsZero() {
		env.msg.At = time.Now().UTC()
	}
	select {
	case h.broadcast <- env:
	default:
		h.log.Warn("push queue full, dropping message",
			zap.String("type", env.msg.Type), zap.String("action", env.msg.Action))
	}
}

// RequestChanged pushes the request to every client allowed to view it.
func (h *Hub) RequestChanged(_ context.Context, ev leave.RequestEvent) {
	req := ev.Request
	h.publish(envelope{
		msg: Message{
			Type:      TypeRequest,
			Action:    string(ev.Action),
			RequestID: req.ID.Hex(),
			Status:    req.Status,
			From:      ev.From,
			Request:   &req,
			At:        req.UpdatedAt,
		},
		visible: func(a authz.Actor) bool { return h.gate.CanView(a, &req) },
	})
}

// LeaveTypeChanged tells every client the registry changed.
func (h *Hub) LeaveTypeChanged(_ context.Context, _ authz.Actor, lt models.LeaveType, action string) {
	h.publish(envelope{msg: Message{Type: TypeLeaveType, Action: action, LeaveType: &lt}})
}

// BalancesReset tells every client to reload balances.
func (h *Hub) BalancesReset(context.Context, authz.Actor, int, []string) {
	h.publish(envelope{msg: Message{Type: TypeBalances}})
}

// ServeWS upgrades a signed-in request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFromRequest(r)
	if !ok {
		apierr.Unauthorized(w)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{hub: h, conn: conn, actor: actor, send: make(chan []byte, sendBuffer)}

	hello, _ := json.Marshal(Message{ID: uuid.NewString(), Type: TypeHello, At: time.Now().UTC()})
	c.send <- hello

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only watches for close and pong frames.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Info("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
