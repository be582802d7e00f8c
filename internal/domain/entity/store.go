package entity

import "time"

// Store is the seller-side profile snapshot. Store onboarding and
// verification are owned by the store service; chat only reads it.
type Store struct {
	ID        string    `json:"id" firestore:"id"`
	Name      string    `json:"name" firestore:"name"`
	LogoURL   string    `json:"logo_url,omitempty" firestore:"logoUrl,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}
