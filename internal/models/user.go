package models

import "time"

type User struct {
	ID           string     `json:"id"`
	FullName     string     `json:"fullName"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role,omitempty"`
	AvatarPath   *string    `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// PendingRegistration holds submitted signup data until the email one-time
// code is verified. At most one row exists per email; a later signup for the
// same address replaces the earlier one.
type PendingRegistration struct {
	ID           string
	FullName     string
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}
