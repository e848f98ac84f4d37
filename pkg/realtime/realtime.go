// Package realtime pushes inbox events to connected dashboard sessions.
// Events fan out through redis pub/sub so every instance delivers to its
// local websocket connections regardless of which instance produced the
// event. Delivery is best effort; there is no replay.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/nimbuspos/chatgate/internal/telemetry"
)

// Event types pushed to clients.
const (
	EventInboundMessage      = "message.inbound"
	EventMessageStatus       = "message.status"
	EventConversationUpdated = "conversation.updated"
)

const channelPrefix = "realtime:"

// Event is the JSON envelope written to websocket clients.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the dashboard origin; auth happened in
	// the middleware chain before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Notifier owns the local websocket registry and the redis fan-out.
type Notifier struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewNotifier creates a Notifier. Call Run to start the redis subscriber.
func NewNotifier(rdb *redis.Client, logger *slog.Logger) *Notifier {
	return &Notifier{
		rdb:     rdb,
		logger:  logger,
		clients: make(map[string]map[*client]struct{}),
	}
}

// Broadcast publishes an event for a tenant. Marshal errors are logged and
// dropped; callers never fail because the dashboard is unreachable.
func (n *Notifier) Broadcast(ctx context.Context, tenantID uuid.UUID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("marshalling realtime payload", "error", err, "type", eventType)
		return
	}
	msg, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		n.logger.Error("marshalling realtime event", "error", err, "type", eventType)
		return
	}
	if err := n.rdb.Publish(ctx, channelPrefix+tenantID.String(), msg).Err(); err != nil {
		n.logger.Error("publishing realtime event", "error", err, "type", eventType)
	}
}

// Run subscribes to all tenant channels and fans incoming events out to
// local connections. Blocks until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	sub := n.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			tenantKey := strings.TrimPrefix(msg.Channel, channelPrefix)
			n.deliver(tenantKey, []byte(msg.Payload))
		}
	}
}

// deliver writes to every local client of the tenant. Clients with a full
// send buffer are dropped rather than allowed to stall the rest. The read
// lock is held across the sends; unregister closes send channels under the
// write lock, so a send never races a close.
func (n *Notifier) deliver(tenantKey string, msg []byte) {
	n.mu.RLock()
	var slow []*client
	for c := range n.clients[tenantKey] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	n.mu.RUnlock()

	for _, c := range slow {
		n.logger.Warn("dropping slow realtime client", "tenant", tenantKey)
		n.unregister(tenantKey, c)
	}
}

func (n *Notifier) register(tenantKey string, c *client) {
	n.mu.Lock()
	if n.clients[tenantKey] == nil {
		n.clients[tenantKey] = make(map[*client]struct{})
	}
	n.clients[tenantKey][c] = struct{}{}
	n.mu.Unlock()
	telemetry.RealtimeClients.Inc()
}

func (n *Notifier) unregister(tenantKey string, c *client) {
	n.mu.Lock()
	if conns, ok := n.clients[tenantKey]; ok {
		if _, present := conns[c]; present {
			delete(conns, c)
			close(c.send)
			telemetry.RealtimeClients.Dec()
		}
		if len(conns) == 0 {
			delete(n.clients, tenantKey)
		}
	}
	n.mu.Unlock()
}

// ServeWS upgrades the request and registers the connection under the
// tenant. It returns once the pumps are started so the middleware chain can
// unwind and release its per-request resources; the hijacked socket lives on.
func (n *Notifier) ServeWS(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.Error("upgrading realtime connection", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	tenantKey := tenantID.String()
	n.register(tenantKey, c)

	go n.writePump(c)
	go n.readPump(tenantKey, c)
}

// readPump discards client frames; it exists to notice closes and answer pings.
func (n *Notifier) readPump(tenantKey string, c *client) {
	defer func() {
		n.unregister(tenantKey, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (n *Notifier) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
