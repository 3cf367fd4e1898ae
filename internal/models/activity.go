package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity kinds recorded for auth lifecycle events.
const (
	ActivitySignIn        = "sign_in"
	ActivitySignInFailed  = "sign_in_failed"
	ActivitySignUp        = "sign_up"
	ActivitySignOut       = "sign_out"
	ActivityGuardRedirect = "guard_redirect"
)

// Activity is an audit entry for an auth lifecycle event.
type Activity struct {
	ActivityID uuid.UUID // UUIDv7
	Email      string    // may be empty for anonymous redirects
	Kind       string
	Path       string

	// Optional audit metadata
	IPAddress string
	UserAgent string

	CreatedAt time.Time
}
