package entity

import "fmt"

// ParticipantType identifies which side of a chat room an identity
// belongs to. Rooms always pair exactly one user with one store.
type ParticipantType string

const (
	ParticipantUser  ParticipantType = "user"
	ParticipantStore ParticipantType = "store"
)

// Participant is a verified identity plus its side of the room. The
// REST/WebSocket boundary authenticates and builds this; the chat core
// trusts it as-is.
type Participant struct {
	ID   string          `json:"id"`
	Type ParticipantType `json:"type"`
}

func NewParticipant(id string, participantType string) (Participant, error) {
	switch ParticipantType(participantType) {
	case ParticipantUser, ParticipantStore:
		return Participant{ID: id, Type: ParticipantType(participantType)}, nil
	default:
		return Participant{}, fmt.Errorf("unknown participant type %q", participantType)
	}
}

// Counterpart returns the opposite side's type.
func (t ParticipantType) Counterpart() ParticipantType {
	if t == ParticipantUser {
		return ParticipantStore
	}
	return ParticipantUser
}
