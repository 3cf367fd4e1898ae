// Package authclient is the client for the hosted auth service.
//
// It signs users in and out, persists the issued session through a Storage
// back-end, refreshes it before expiry and notifies subscribers of every
// change. Two storage modes are used in practice: a long-lived client backed
// by FileStorage for the consumer app, and a request-scoped client backed by
// CookieStorage for the dashboard server.
package authclient

import (
	"context"

	"github.com/wolfeidau/vitameals/internal/models"
)

// Event identifies why the session changed.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Handler receives session changes. A nil session means signed out.
//
// Handlers run synchronously while the client holds its session lock, so
// they must not call back into the client.
type Handler func(event Event, session *models.Session)

// SignUpResult describes the outcome of a successful registration.
type SignUpResult struct {
	User *models.User

	// ConfirmationRequired is true when the service did not issue a session
	// because the email address must be verified first.
	ConfirmationRequired bool
}

// Client is the contract both surfaces consume.
type Client interface {
	// GetSession returns the current session, refreshing it if it is about
	// to expire. It returns nil, nil when nobody is signed in.
	GetSession(ctx context.Context) (*models.Session, error)

	// OnAuthStateChange registers a handler and returns a function that
	// removes it. The returned function is safe to call more than once.
	OnAuthStateChange(handler Handler) (unsubscribe func())

	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)
	SignOut(ctx context.Context) error
}
