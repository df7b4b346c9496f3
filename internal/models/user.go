package models

import "time"

// User is an end user of the companion bot, keyed by the chat platform's user id.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserProfile carries the optional profile fields supplied on first contact.
type UserProfile struct {
	Username     string
	FirstName    string
	LanguageCode string
}
