package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the authenticated identity attached to a session.
type User struct {
	ID               uuid.UUID      `json:"id"`
	Email            string         `json:"email"`
	Role             string         `json:"role,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// DisplayName returns the user's display name, falling back to the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name, ok := u.UserMetadata["display_name"].(string); ok && name != "" {
		return name
	}
	return u.Email
}

// IsConfirmed returns true once the user has verified their email address.
func (u *User) IsConfirmed() bool {
	return u.EmailConfirmedAt != nil
}
