package models

import (
	"time"
)

// Session is the credential bundle issued by the auth service.
// The JSON shape matches what the auth service returns so it can be persisted as-is.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Expiry returns the access token expiry as a time. The zero time means unknown.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// IsExpired returns true if the access token has expired, or will within margin.
func (s *Session) IsExpired(margin time.Duration) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(exp)
}

// Email returns the email of the session identity, or "" when there is none.
func (s *Session) Email() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.Email
}
