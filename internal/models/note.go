// Package models defines the domain types shared by the store, the note
// collection and the transport layers.
package models

import "time"

// Note is one user-owned text memo as returned by the remote store.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the descriptive record of a signed-in user.
type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

// Principal is an authenticated identity returned by the auth subsystem.
type Principal struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}
