package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession(t *testing.T) {
	var nilSession *Session
	assert.Empty(t, nilSession.Email())

	sess := &Session{AccessToken: "a"}
	assert.True(t, sess.Expiry().IsZero())
	assert.False(t, sess.IsExpired(time.Hour), "unknown expiry is never expired")

	sess.ExpiresAt = time.Now().Add(5 * time.Second).Unix()
	assert.False(t, sess.IsExpired(0))
	assert.True(t, sess.IsExpired(10*time.Second))

	sess.User = &User{Email: "parent@example.com"}
	assert.Equal(t, "parent@example.com", sess.Email())
}

func TestUser_DisplayName(t *testing.T) {
	var u *User
	assert.Empty(t, u.DisplayName())

	u = &User{Email: "parent@example.com"}
	assert.Equal(t, "parent@example.com", u.DisplayName())
	assert.False(t, u.IsConfirmed())

	u.UserMetadata = map[string]any{"display_name": "Sam"}
	assert.Equal(t, "Sam", u.DisplayName())

	now := time.Now()
	u.EmailConfirmedAt = &now
	assert.True(t, u.IsConfirmed())
}
