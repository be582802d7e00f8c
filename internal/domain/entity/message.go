package entity

import "time"

// Message is one immutable chat message. CreatedAt is strictly
// increasing within a room, so (CreatedAt, ID) is a total order and a
// stable pagination key.
type Message struct {
	ID            string          `json:"id" firestore:"id"`
	RoomID        string          `json:"room_id" firestore:"roomId"`
	SenderID      string          `json:"sender_id" firestore:"senderId"`
	SenderType    ParticipantType `json:"sender_type" firestore:"senderType"`
	Text          string          `json:"text" firestore:"text"`
	AttachmentURL string          `json:"attachment_url,omitempty" firestore:"attachmentUrl,omitempty"`
	CreatedAt     time.Time       `json:"created_at" firestore:"createdAt"`
}
