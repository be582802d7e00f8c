package entity

import "time"

// Room is the single chat room shared by one user and one store. The
// (UserID, StoreID) pair is unique across all rooms.
type Room struct {
	ID      string `json:"id" firestore:"id"`
	UserID  string `json:"user_id" firestore:"userId"`
	StoreID string `json:"store_id" firestore:"storeId"`

	// Denormalized snapshot of the most recently appended message.
	// LastMessageAt stays zero until the first message arrives and is
	// always stored, so rooms without messages still appear in
	// lastMessageAt-ordered queries (they sort last under DESC).
	LastMessage   string    `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty" firestore:"lastMessageAt"`

	// Independent unread counters, one per side. A send increments only
	// the recipient's counter; mark-as-read resets only the reader's.
	UserUnread  int `json:"user_unread" firestore:"userUnread"`
	StoreUnread int `json:"store_unread" firestore:"storeUnread"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Side returns the participant type p holds in the room, or false when
// p is not a member at all.
func (r *Room) Side(p Participant) (ParticipantType, bool) {
	switch p.Type {
	case ParticipantUser:
		if r.UserID == p.ID {
			return ParticipantUser, true
		}
	case ParticipantStore:
		if r.StoreID == p.ID {
			return ParticipantStore, true
		}
	}
	return "", false
}

// UnreadFor returns the counter belonging to the given side.
func (r *Room) UnreadFor(side ParticipantType) int {
	if side == ParticipantUser {
		return r.UserUnread
	}
	return r.StoreUnread
}
