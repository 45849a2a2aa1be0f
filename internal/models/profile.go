package models

import "time"

// Role is the value stored in profiles.role.
type Role string

const (
	// RoleAdmin grants access to privileged routes.
	RoleAdmin Role = "admin"
	// RoleAuthor is the default role for community members who publish.
	RoleAuthor Role = "author"
	// RoleReader is a member who only reads and comments.
	RoleReader Role = "reader"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAuthor, RoleReader:
		return true
	default:
		return false
	}
}

// Profile is the subset of a profiles row the API reads for authorization.
type Profile struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Username  *string    `json:"username,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// IsAdmin reports whether the profile carries the administrator role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
