package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
)

// Client represents one physical WebSocket connection. A participant
// may hold several clients at once (multi-tab); each joins rooms
// independently.
type Client struct {
	Participant entity.Participant
	Conn        *websocket.Conn
	Send        chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues a frame without blocking. False means the client is
// gone or its buffer is full; either way the caller should drop it.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once. Broadcasts may race
// with disconnects, so the flag keeps late senders off a closed channel.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// RoomAuthorizer answers whether a participant belongs to a room. The
// chat service implements it; the manager checks it on every join.
type RoomAuthorizer interface {
	IsParticipant(ctx context.Context, p entity.Participant, roomID string) error
}

// Manager tracks all live connections and their room memberships, and
// fans committed messages out to every connection joined to a room.
// It never originates messages and never touches room/message state.
type Manager struct {
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	authorizer RoomAuthorizer
	mutex      sync.RWMutex
}

// NewManager creates a new WebSocket connection manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// SetAuthorizer injects the join authorization check. Wired in main
// after the chat service exists (the service also depends on the
// manager for broadcasting).
func (m *Manager) SetAuthorizer(authorizer RoomAuthorizer) {
	m.authorizer = authorizer
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client] = struct{}{}
				m.mutex.Unlock()
				log.Printf("WebSocket: client registered for %s %s", client.Participant.Type, client.Participant.ID)

			case client := <-m.Unregister:
				m.removeClient(client)
				log.Printf("WebSocket: client unregistered for %s %s", client.Participant.Type, client.Participant.ID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// JoinRoom adds the client to the room's subscriber set. Clients no
// longer registered are refused: a join frame can still be in flight
// while a broadcast drop removes its connection, and letting it back
// into the rooms map would leave an entry nothing cleans up.
func (m *Manager) JoinRoom(roomID string, client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return
	}

	subscribers, ok := m.rooms[roomID]
	if !ok {
		subscribers = make(map[*Client]struct{})
		m.rooms[roomID] = subscribers
	}
	subscribers[client] = struct{}{}
}

// LeaveRoom removes the client from the room's subscriber set.
func (m *Manager) LeaveRoom(roomID string, client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if subscribers, ok := m.rooms[roomID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(m.rooms, roomID)
		}
	}
}

// BroadcastToRoom delivers the payload to every connection currently
// joined to the room, the sender's own other connections included, so
// multi-tab sessions stay in sync. Delivery is at-most-once per
// connection: a client whose send buffer is full is dropped rather
// than blocking the broadcast.
func (m *Manager) BroadcastToRoom(roomID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("BroadcastToRoom Error: failed to marshal payload for room %s: %v", roomID, err)
		return
	}

	m.mutex.RLock()
	subscribers := make([]*Client, 0, len(m.rooms[roomID]))
	for client := range m.rooms[roomID] {
		subscribers = append(subscribers, client)
	}
	m.mutex.RUnlock()

	for _, client := range subscribers {
		if !client.trySend(data) {
			log.Printf("BroadcastToRoom: dropping slow client of %s %s in room %s", client.Participant.Type, client.Participant.ID, roomID)
			m.removeClient(client)
		}
	}
}

// ClientCount reports how many connections are currently registered.
func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// RoomSubscriberCount reports how many connections are joined to a room.
func (m *Manager) RoomSubscriberCount(roomID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[roomID])
}

// removeClient drops the connection from the client set and from every
// room it joined. Idempotent: the rooms purge runs even for clients
// already gone, so a second removal can never strand a membership.
// Room and message state are untouched.
func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.clients, client)

	for roomID, subscribers := range m.rooms {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(m.rooms, roomID)
		}
	}

	client.shutdown()
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket: read error for %s %s: %v", c.Participant.Type, c.Participant.ID, err)
			}
			break
		}

		m.HandleClientMessage(c, message)
	}
}

// WritePump sends messages to the WebSocket connection
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket: write error for %s %s: %v", c.Participant.Type, c.Participant.ID, err)
			return
		}
	}
}
