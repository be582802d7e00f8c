package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Event is the JSON frame exchanged over a chat WebSocket connection.
//
// Client to server: join_room, leave_room, ping.
// Server to client: joined, left, pong, error, new_message.
type Event struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

const joinAuthTimeout = 5 * time.Second

// HandleClientMessage processes one inbound frame. Malformed or
// unauthorized frames produce an error frame on the offending
// connection only; the connection itself stays up.
func (m *Manager) HandleClientMessage(client *Client, raw []byte) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		log.Printf("WebSocket: malformed frame from %s %s: %v", client.Participant.Type, client.Participant.ID, err)
		m.sendError(client, "", "Malformed frame")
		return
	}

	switch event.Type {
	case "join_room":
		m.handleJoin(client, event.RoomID)

	case "leave_room":
		if event.RoomID == "" {
			m.sendError(client, "", "room_id is required")
			return
		}
		m.LeaveRoom(event.RoomID, client)
		m.sendEvent(client, Event{Type: "left", RoomID: event.RoomID})

	case "ping":
		m.sendEvent(client, Event{Type: "pong"})

	default:
		m.sendError(client, event.RoomID, "Unknown frame type: "+event.Type)
	}
}

// handleJoin authorizes the join against room membership before
// subscribing the connection. A failed join never tears the
// connection down and never subscribes the client.
func (m *Manager) handleJoin(client *Client, roomID string) {
	if roomID == "" {
		m.sendError(client, "", "room_id is required")
		return
	}

	if m.authorizer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), joinAuthTimeout)
		defer cancel()

		if err := m.authorizer.IsParticipant(ctx, client.Participant, roomID); err != nil {
			log.Printf("WebSocket: join denied for %s %s in room %s: %v", client.Participant.Type, client.Participant.ID, roomID, err)
			m.sendError(client, roomID, "Not authorized to join this room")
			return
		}
	}

	m.JoinRoom(roomID, client)
	m.sendEvent(client, Event{Type: "joined", RoomID: roomID})
}

func (m *Manager) sendEvent(client *Client, event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("WebSocket: failed to marshal %s event: %v", event.Type, err)
		return
	}

	if !client.trySend(data) {
		log.Printf("WebSocket: dropping slow client of %s %s", client.Participant.Type, client.Participant.ID)
		m.removeClient(client)
	}
}

func (m *Manager) sendError(client *Client, roomID, message string) {
	m.sendEvent(client, Event{Type: "error", RoomID: roomID, Message: message})
}
