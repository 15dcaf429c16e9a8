package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fairplay/config"
	"fairplay/session"
	"fairplay/state"

	"github.com/gorilla/websocket"
)

// Event types pushed to subscribers
const (
	EventSubscribed          = "subscribed"
	EventUnsubscribed        = "unsubscribed"
	EventCommitmentCurrent   = "commitment_current"
	EventCommitmentActivated = "commitment_activated"
	EventCommitmentRetired   = "commitment_retired"
	EventRoundPlayed         = "round_played"
	EventError               = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Channel returns the subscription channel of a namespace.
func Channel(namespace string) string {
	return fmt.Sprintf(config.ChannelPattern, namespace)
}

// Event is the envelope of every server message.
type Event struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is what clients send.
type ClientMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// CurrentFunc looks up the commitment a subscriber should see first.
type CurrentFunc func(ctx context.Context, namespace string) (state.CommitmentView, error)

// ClientConnection represents a connected client with their subscriptions
type ClientConnection struct {
	ID            string
	Conn          *websocket.Conn
	Subscriptions map[string]bool // fair:<namespace>
	mu            sync.RWMutex
	Send          chan []byte
	hub           *Hub
}

type broadcast struct {
	channel string
	data    []byte
}

// Hub fans commitment and round events out to WebSocket subscribers.
type Hub struct {
	current CurrentFunc

	clients      map[*ClientConnection]bool
	clientsMutex sync.RWMutex

	register   chan *ClientConnection
	unregister chan *ClientConnection
	events     chan broadcast
	done       chan struct{}

	clientIDCounter atomic.Int64
}

// NewHub creates a hub. current may be nil.
func NewHub(current CurrentFunc) *Hub {
	return &Hub{
		current:    current,
		clients:    make(map[*ClientConnection]bool),
		register:   make(chan *ClientConnection),
		unregister: make(chan *ClientConnection),
		events:     make(chan broadcast, 100),
		done:       make(chan struct{}),
	}
}

// Run is the central message dispatcher. It returns when ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	log.Println("🚀 Event Hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.clientsMutex.Lock()
			// Closing the socket ends readPump, which owns the last
			// reference able to write to Send.
			for client := range h.clients {
				delete(h.clients, client)
				client.Conn.Close()
			}
			h.clientsMutex.Unlock()
			log.Println("🛑 Event Hub stopped")
			return nil

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.clientsMutex.Unlock()
			log.Printf("✅ Client registered: %s (Total: %d)", client.ID, total)

		case client := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			total := len(h.clients)
			h.clientsMutex.Unlock()
			log.Printf("👋 Client unregistered: %s (Total: %d)", client.ID, total)

		case ev := <-h.events:
			h.broadcastToSubscribers(ev.channel, ev.data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) publish(namespace, eventType string, data any) {
	channel := Channel(namespace)
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("❌ Failed to marshal %s for %s: %v", eventType, channel, err)
		return
	}

	select {
	case h.events <- broadcast{channel: channel, data: payload}:
	case <-h.done:
	default:
		log.Printf("⚠️  Event queue full, dropping %s for %s", eventType, channel)
	}
}

// CommitmentActivated announces a rotation: the retired commitment with its
// secret first, then the new public hash.
func (h *Hub) CommitmentActivated(act state.Activation) {
	if act.Retired != nil {
		h.publish(act.Retired.Namespace, EventCommitmentRetired, act.Retired)
	}
	h.publish(act.Active.Namespace, EventCommitmentActivated, act.Active)
}

// RoundPlayed announces a recorded round.
func (h *Hub) RoundPlayed(receipt session.Receipt) {
	h.publish(receipt.Namespace, EventRoundPlayed, receipt)
}

// broadcastToSubscribers sends message to all clients subscribed to a channel
func (h *Hub) broadcastToSubscribers(channel string, message []byte) {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	for client := range h.clients {
		client.mu.RLock()
		subscribed := client.Subscriptions[channel]
		client.mu.RUnlock()

		if subscribed {
			select {
			case client.Send <- message:
			default:
				// Client's send channel is full, skip
				log.Printf("⚠️  Client %s send buffer full, skipping message", client.ID)
			}
		}
	}
}

// HandleWS is the WebSocket endpoint
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	log.Println("📥 WebSocket connection from:", r.RemoteAddr)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("❌ WebSocket upgrade failed:", err)
		return
	}

	client := &ClientConnection{
		ID:            h.generateClientID(),
		Conn:          conn,
		Subscriptions: make(map[string]bool),
		Send:          make(chan []byte, config.WSSendBuffer),
		hub:           h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// writePump sends messages from the Send channel to the WebSocket
func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ Write error for client %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads subscription requests until the connection drops
func (c *ClientConnection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ Read error for client %s: %v", c.ID, err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendEvent(Event{Type: EventError, Error: "invalid message"})
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes incoming client messages
func (c *ClientConnection) handleMessage(msg ClientMessage) {
	channel, _ := msg.Data["channel"].(string)

	switch msg.Type {
	case "subscribe":
		namespace, ok := strings.CutPrefix(channel, "fair:")
		if !ok || namespace == "" {
			c.sendEvent(Event{Type: EventError, Error: fmt.Sprintf("unknown channel %q", channel)})
			return
		}
		c.mu.Lock()
		c.Subscriptions[channel] = true
		c.mu.Unlock()
		log.Printf("📡 Client %s subscribed to: %s", c.ID, channel)

		c.sendEvent(Event{Type: EventSubscribed, Channel: channel})
		c.sendInitialData(channel, namespace)

	case "unsubscribe":
		c.mu.Lock()
		delete(c.Subscriptions, channel)
		c.mu.Unlock()
		log.Printf("📴 Client %s unsubscribed from: %s", c.ID, channel)

		c.sendEvent(Event{Type: EventUnsubscribed, Channel: channel})

	default:
		log.Printf("⚠️  Unknown message type from client %s: %s", c.ID, msg.Type)
		c.sendEvent(Event{Type: EventError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// sendInitialData sends the commitment players should see before betting
func (c *ClientConnection) sendInitialData(channel, namespace string) {
	if c.hub.current == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	view, err := c.hub.current(ctx, namespace)
	if err != nil {
		log.Printf("⚠️  Failed to load commitment for client %s: %v", c.ID, err)
		return
	}
	c.sendEvent(Event{Type: EventCommitmentCurrent, Channel: channel, Data: view})
}

func (c *ClientConnection) sendEvent(ev Event) {
	ev.Timestamp = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("⚠️  Failed to marshal event for client %s: %v", c.ID, err)
		return
	}

	select {
	case c.Send <- data:
	default:
		log.Printf("⚠️  Client %s send buffer full, skipping %s", c.ID, ev.Type)
	}
}

// generateClientID creates a unique client ID
func (h *Hub) generateClientID() string {
	id := h.clientIDCounter.Add(1)
	return fmt.Sprintf("%d-%d", time.Now().Unix(), id)
}
