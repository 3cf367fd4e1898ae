package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/vitameals/internal/authclient/authtest"
	"github.com/wolfeidau/vitameals/internal/models"
)

type recorder struct {
	mu       sync.Mutex
	events   []Event
	sessions []*models.Session
}

func (r *recorder) handle(e Event, s *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.sessions = append(r.sessions, s)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) Last() (Event, *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return "", nil
	}
	return r.events[len(r.events)-1], r.sessions[len(r.sessions)-1]
}

func newTestClient(t *testing.T, srv *authtest.Server, storage Storage) (*GoTrue, *recorder) {
	t.Helper()

	c, err := New(Config{
		URL:             srv.URL,
		AnonKey:         authtest.AnonKey,
		Storage:         storage,
		RetryMaxElapsed: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	rec := &recorder{}
	c.OnAuthStateChange(rec.handle)

	return c, rec
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing url", cfg: Config{AnonKey: "k"}, wantErr: "URL is required"},
		{name: "relative url", cfg: Config{URL: "/auth", AnonKey: "k"}, wantErr: "is not absolute"},
		{name: "missing key", cfg: Config{URL: "https://abcd.supabase.co"}, wantErr: "anon key is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStorageKey(t *testing.T) {
	assert.Equal(t, "sb-abcd-auth-token", StorageKey("https://abcd.supabase.co"))
	assert.Equal(t, "sb-localhost-auth-token", StorageKey("http://localhost:54321"))
	assert.Equal(t, "sb-default-auth-token", StorageKey("::bad"))
}

func TestGetSession_NoSession(t *testing.T) {
	srv := authtest.NewServer(t)
	c, rec := newTestClient(t, srv, NewMemoryStorage())

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)

	// the initial load is reported once
	_, err = c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Event{EventInitialSession}, rec.Events())
}

func TestSignIn(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")

	storage := NewMemoryStorage()
	c, rec := newTestClient(t, srv, storage)

	err := c.SignIn(context.Background(), "ann@example.com", "secret1")
	require.NoError(t, err)

	event, sess := rec.Last()
	assert.Equal(t, EventSignedIn, event)
	require.NotNil(t, sess)
	assert.Equal(t, "ann@example.com", sess.Email())
	assert.NotEmpty(t, sess.RefreshToken)

	raw, ok, err := storage.GetItem(c.StorageKey())
	require.NoError(t, err)
	require.True(t, ok)

	var stored models.Session
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, sess.AccessToken, stored.AccessToken)

	current, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, sess.AccessToken, current.AccessToken)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	c, rec := newTestClient(t, srv, NewMemoryStorage())

	err := c.SignIn(context.Background(), "ann@example.com", "wrong-password")
	require.Error(t, err)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "invalid_credentials", se.Code)
	assert.Equal(t, "Invalid login credentials", err.Error())
	assert.Empty(t, rec.Events())
}

func TestSignIn_ServiceDown(t *testing.T) {
	srv := authtest.NewServer(t)
	c, _ := newTestClient(t, srv, NewMemoryStorage())
	srv.Close()

	err := c.SignIn(context.Background(), "ann@example.com", "secret1")
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestSignUp(t *testing.T) {
	t.Run("confirmation required", func(t *testing.T) {
		srv := authtest.NewServer(t)
		srv.RequireConfirmation(true)
		c, rec := newTestClient(t, srv, NewMemoryStorage())

		res, err := c.SignUp(context.Background(), "bob@example.com", "secret1")
		require.NoError(t, err)
		assert.True(t, res.ConfirmationRequired)
		require.NotNil(t, res.User)
		assert.Equal(t, "bob@example.com", res.User.Email)
		assert.False(t, res.User.IsConfirmed())
		assert.Empty(t, rec.Events())

		err = c.SignIn(context.Background(), "bob@example.com", "secret1")
		var se *ServiceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "email_not_confirmed", se.Code)
	})

	t.Run("auto confirmed", func(t *testing.T) {
		srv := authtest.NewServer(t)
		c, rec := newTestClient(t, srv, NewMemoryStorage())

		res, err := c.SignUp(context.Background(), "bob@example.com", "secret1")
		require.NoError(t, err)
		assert.False(t, res.ConfirmationRequired)

		event, sess := rec.Last()
		assert.Equal(t, EventSignedIn, event)
		assert.Equal(t, "bob@example.com", sess.Email())
	})

	t.Run("already registered", func(t *testing.T) {
		srv := authtest.NewServer(t)
		srv.AddUser("bob@example.com", "secret1")
		c, _ := newTestClient(t, srv, NewMemoryStorage())

		_, err := c.SignUp(context.Background(), "bob@example.com", "secret1")
		require.Error(t, err)
		assert.Equal(t, "User already registered", err.Error())
	})
}

func TestGetSession_RefreshesNearExpiry(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	srv.SetAccessTTL(5 * time.Second)

	c, rec := newTestClient(t, srv, NewMemoryStorage())
	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))
	_, signedIn := rec.Last()

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotEqual(t, signedIn.RefreshToken, sess.RefreshToken)

	event, _ := rec.Last()
	assert.Equal(t, EventTokenRefreshed, event)
	assert.Equal(t, 2, srv.Calls("/auth/v1/token"))
}

func TestGetSession_RefreshRejectedClearsSession(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	srv.SetAccessTTL(5 * time.Second)

	storage := NewMemoryStorage()
	c, rec := newTestClient(t, srv, storage)
	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))

	srv.RevokeAll()

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)

	event, _ := rec.Last()
	assert.Equal(t, EventSignedOut, event)

	_, ok, err := storage.GetItem(c.StorageKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetSession_RefreshUnavailable(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	srv.SetAccessTTL(5 * time.Second)

	c, _ := newTestClient(t, srv, NewMemoryStorage())
	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))

	srv.Fail(http.StatusServiceUnavailable)

	_, err := c.GetSession(context.Background())
	require.ErrorIs(t, err, ErrSessionResolution)
}

func TestGetSession_LoadsStoredSession(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")

	storage := NewMemoryStorage()
	first, _ := newTestClient(t, srv, storage)
	require.NoError(t, first.SignIn(context.Background(), "ann@example.com", "secret1"))

	second, rec := newTestClient(t, srv, storage)
	sess, err := second.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "ann@example.com", sess.Email())

	event, initial := rec.Last()
	assert.Equal(t, EventInitialSession, event)
	assert.Equal(t, sess.AccessToken, initial.AccessToken)
}

func TestGetSession_DiscardsUnreadableSession(t *testing.T) {
	srv := authtest.NewServer(t)
	storage := NewMemoryStorage()
	c, _ := newTestClient(t, srv, storage)

	require.NoError(t, storage.SetItem(c.StorageKey(), "{not json"))

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, ok, _ := storage.GetItem(c.StorageKey())
	assert.False(t, ok)
}

func TestSignIn_FillsExpiryFromClaims(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	srv.OmitExpiry(true)

	c, rec := newTestClient(t, srv, NewMemoryStorage())
	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))

	_, sess := rec.Last()
	require.NotNil(t, sess)
	assert.NotZero(t, sess.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.Expiry(), 5*time.Second)
	require.NotNil(t, sess.User)
	assert.Equal(t, "ann@example.com", sess.User.Email)
	assert.Equal(t, "bearer", sess.TokenType)
}

func TestSignOut(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")

	storage := NewMemoryStorage()
	c, rec := newTestClient(t, srv, storage)
	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, 1, srv.Calls("/auth/v1/logout"))

	event, sess := rec.Last()
	assert.Equal(t, EventSignedOut, event)
	assert.Nil(t, sess)

	_, ok, _ := storage.GetItem(c.StorageKey())
	assert.False(t, ok)

	// signing out again does not call the service
	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, 1, srv.Calls("/auth/v1/logout"))

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSignOut_SessionAlreadyRevoked(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	c, rec := newTestClient(t, srv, NewMemoryStorage())
	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))

	srv.RevokeAll()

	require.NoError(t, c.SignOut(context.Background()))
	event, _ := rec.Last()
	assert.Equal(t, EventSignedOut, event)
}

func TestSignOut_ServiceFailureKeepsSession(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	c, rec := newTestClient(t, srv, NewMemoryStorage())
	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))

	srv.Fail(http.StatusInternalServerError)

	err := c.SignOut(context.Background())
	require.Error(t, err)

	event, _ := rec.Last()
	assert.Equal(t, EventSignedIn, event)

	srv.Fail(0)
	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestOnAuthStateChange_Unsubscribe(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	c, first := newTestClient(t, srv, NewMemoryStorage())

	var order []string
	second := &recorder{}
	unsubscribe := c.OnAuthStateChange(func(e Event, s *models.Session) {
		order = append(order, "second")
		second.handle(e, s)
	})
	c.OnAuthStateChange(func(Event, *models.Session) {
		order = append(order, "third")
	})

	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))
	assert.Equal(t, []string{"second", "third"}, order)

	unsubscribe()
	unsubscribe()

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, []Event{EventSignedIn}, second.Events())
	assert.Equal(t, []Event{EventSignedIn, EventSignedOut}, first.Events())
}

func TestSettings_Cached(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.RequireConfirmation(true)
	c, _ := newTestClient(t, srv, NewMemoryStorage())

	for range 3 {
		s, err := c.Settings(context.Background())
		require.NoError(t, err)
		assert.False(t, s.MailerAutoconfirm)
		assert.True(t, s.External["email"])
	}

	assert.Equal(t, 1, srv.Calls("/auth/v1/settings"))
}

func TestAutoRefresh(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret1")
	srv.SetAccessTTL(time.Second)

	c, err := New(Config{
		URL:         srv.URL,
		AnonKey:     authtest.AnonKey,
		RefreshTick: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	rec := &recorder{}
	c.OnAuthStateChange(rec.handle)
	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", "secret1"))

	c.StartAutoRefresh(context.Background())
	c.StartAutoRefresh(context.Background())

	require.Eventually(t, func() bool {
		for _, e := range rec.Events() {
			if e == EventTokenRefreshed {
				return true
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond)

	c.StopAutoRefresh()
	c.StopAutoRefresh()
}
