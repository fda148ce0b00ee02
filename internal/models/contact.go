package models

import (
	"encoding/json"
	"time"
)

// Contact is an emergency contact owned by a user.
type Contact struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	FullName  string     `json:"fullName"`
	Phone     string     `json:"phone"`
	Relation  *string    `json:"relation,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// SafePlace is a geolocated bookmark (home, shelter, police station).
type SafePlace struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Type      string     `json:"type,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	// DistanceMeters is populated on proximity queries only.
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
}

// Preference is one per-user setting, keyed by name. Value holds the raw
// JSON the client submitted, so clients own the value schema.
type Preference struct {
	UserID    string          `json:"-"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}
