package entity

import "time"

// User is the customer-side profile snapshot the chat core reads for
// room listings. Account management lives outside this service.
type User struct {
	ID        string    `json:"id" firestore:"id"`
	Nickname  string    `json:"nickname" firestore:"nickname"`
	AvatarURL string    `json:"avatar_url,omitempty" firestore:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}
