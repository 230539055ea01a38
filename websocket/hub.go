package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Conn   Conn
}

type message struct {
	userID  uuid.UUID
	payload interface{}
}

// Hub fans booking updates out to every open connection of a user. A user
// may hold several connections, one per browser tab.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	outbound   chan message
	done       chan struct{}
	stop       sync.Once

	mu      sync.RWMutex
	clients map[uuid.UUID]map[Conn]struct{}

	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan message, 256),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID]map[Conn]struct{}),
		log:        log.With().Str("component", "ws").Logger(),
	}
}

// Register adds c to the hub. Once the hub has stopped the connection is
// closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Conn.Close()
	}
}

// Unregister removes c. It returns immediately after the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Push queues payload for userID. It drops the message when the queue is
// full rather than block the caller.
func (h *Hub) Push(userID uuid.UUID, payload interface{}) {
	select {
	case h.outbound <- message{userID: userID, payload: payload}:
	default:
		h.log.Warn().Str("user_id", userID.String()).Msg("push queue full, dropping message")
	}
}

// Connected reports how many connections userID has open.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stop.Do(func() { close(h.done) })
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.UserID] == nil {
				h.clients[c.UserID] = make(map[Conn]struct{})
			}
			h.clients[c.UserID][c.Conn] = struct{}{}
			h.mu.Unlock()
			h.log.Debug().Str("user_id", c.UserID.String()).Msg("client registered")
		case c := <-h.unregister:
			h.remove(c.UserID, c.Conn)
			h.log.Debug().Str("user_id", c.UserID.String()).Msg("client unregistered")
		case m := <-h.outbound:
			h.deliver(m)
		}
	}
}

func (h *Hub) deliver(m message) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.clients[m.userID]))
	for conn := range h.clients[m.userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(m.payload); err != nil {
			h.log.Warn().Err(err).Str("user_id", m.userID.String()).Msg("error sending message to client")
			conn.Close()
			h.remove(m.userID, conn)
		}
	}
}

func (h *Hub) remove(userID uuid.UUID, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for conn := range set {
			conn.Close()
		}
		delete(h.clients, userID)
	}
}
