package models

import "time"

// User is the authenticated caller resolved from a session token.
// ID is the identity provider subject; it is also the primary key of the profiles table.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
