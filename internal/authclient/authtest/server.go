// Package authtest provides an in-process fake of the hosted auth service for tests.
package authtest

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/vitameals/internal/models"
)

const (
	// AnonKey is the API key the fake accepts.
	AnonKey = "test-anon-key"

	signingSecret = "authtest-signing-secret-32-bytes!"
)

type user struct {
	id        uuid.UUID
	email     string
	password  string
	confirmed bool
	createdAt time.Time
}

// Server is a fake GoTrue API backed by httptest.Server.
type Server struct {
	*httptest.Server

	mu                  sync.Mutex
	users               map[string]*user
	refreshTokens       map[string]string // refresh token -> email
	accessTokens        map[string]string // access token -> email
	calls               map[string]int
	requireConfirmation bool
	accessTTL           time.Duration
	omitExpiry          bool
	failStatus          int
	failMessage         string
}

// NewServer starts a fake auth service and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		users:         make(map[string]*user),
		refreshTokens: make(map[string]string),
		accessTokens:  make(map[string]string),
		calls:         make(map[string]int),
		accessTTL:     time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/signup", s.handleSignUp)
	mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	mux.HandleFunc("POST /auth/v1/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/v1/settings", s.handleSettings)
	mux.HandleFunc("GET /auth/v1/user", s.handleUser)

	s.Server = httptest.NewServer(s.middleware(mux))
	t.Cleanup(s.Close)

	return s
}

// RequireConfirmation controls whether sign up withholds the session until
// the email address is confirmed.
func (s *Server) RequireConfirmation(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireConfirmation = v
}

// SetAccessTTL sets the lifetime of issued access tokens.
func (s *Server) SetAccessTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = ttl
}

// OmitExpiry drops expires_in/expires_at from responses so clients must
// read the token's exp claim.
func (s *Server) OmitExpiry(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitExpiry = v
}

// Fail makes every request return status until called again with 0.
func (s *Server) Fail(status int) {
	s.FailWith(status, "Service unavailable")
}

// FailWith makes every request return status with message as the error.
func (s *Server) FailWith(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
	s.failMessage = message
}

// AddUser registers a confirmed user.
func (s *Server) AddUser(email, password string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.addUserLocked(email, password)
	u.confirmed = true
	return u.id
}

// Confirm marks the user's email address as verified.
func (s *Server) Confirm(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[email]; ok {
		u.confirmed = true
	}
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens = make(map[string]string)
	s.accessTokens = make(map[string]string)
}

// Calls returns how many requests were made to path, e.g. "/auth/v1/logout".
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// IssueSession creates a session for an existing user without a sign in call.
func (s *Server) IssueSession(email string, ttl time.Duration) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return nil
	}
	return s.issueLocked(u, ttl, false)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		failStatus, failMessage := s.failStatus, s.failMessage
		s.mu.Unlock()

		if failStatus != 0 {
			writeError(w, failStatus, "unexpected_failure", failMessage)
			return
		}

		if r.Header.Get("apikey") != AnonKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

type credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[creds.Email]; exists {
		writeError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	if len(creds.Password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	u := s.addUserLocked(creds.Email, creds.Password)

	if s.requireConfirmation {
		writeJSON(w, http.StatusOK, toUser(u))
		return
	}

	u.confirmed = true
	writeJSON(w, http.StatusOK, s.issueLocked(u, s.accessTTL, s.omitExpiry))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Query().Get("grant_type") {
	case "password":
		u, ok := s.users[creds.Email]
		if !ok || u.password != creds.Password {
			writeError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		if !u.confirmed {
			writeError(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
			return
		}
		writeJSON(w, http.StatusOK, s.issueLocked(u, s.accessTTL, s.omitExpiry))

	case "refresh_token":
		email, ok := s.refreshTokens[creds.RefreshToken]
		if !ok {
			writeError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(s.refreshTokens, creds.RefreshToken)
		writeJSON(w, http.StatusOK, s.issueLocked(s.users[email], s.accessTTL, s.omitExpiry))

	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported_grant_type")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.accessTokens[token]
	if !ok {
		writeError(w, http.StatusForbidden, "session_not_found", "Session from session_id claim in JWT does not exist")
		return
	}

	for access, e := range s.accessTokens {
		if e == email {
			delete(s.accessTokens, access)
		}
	}
	for refresh, e := range s.refreshTokens {
		if e == email {
			delete(s.refreshTokens, refresh)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	autoconfirm := !s.requireConfirmation
	s.mu.Unlock()

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, map[string]any{
		"disable_signup":     false,
		"mailer_autoconfirm": autoconfirm,
		"external":           map[string]bool{"email": true},
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.accessTokens[token]
	if !ok {
		writeError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	writeJSON(w, http.StatusOK, toUser(s.users[email]))
}

func (s *Server) addUserLocked(email, password string) *user {
	u := &user{
		id:        uuid.New(),
		email:     email,
		password:  password,
		createdAt: time.Now().UTC(),
	}
	s.users[email] = u
	return u
}

func (s *Server) issueLocked(u *user, ttl time.Duration, omitExpiry bool) *models.Session {
	now := time.Now()
	exp := now.Add(ttl)

	claims := jwt.MapClaims{
		"sub":   u.id.String(),
		"email": u.email,
		"role":  "authenticated",
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   rand.Text(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingSecret))
	if err != nil {
		panic(err)
	}
	refresh := rand.Text()

	s.accessTokens[access] = u.email
	s.refreshTokens[refresh] = u.email

	sess := &models.Session{
		AccessToken:  access,
		TokenType:    "bearer",
		RefreshToken: refresh,
		User:         toUser(u),
	}
	if !omitExpiry {
		sess.ExpiresIn = int64(ttl.Seconds())
		sess.ExpiresAt = exp.Unix()
	} else {
		sess.User = nil
	}
	return sess
}

func toUser(u *user) *models.User {
	mu := &models.User{
		ID:        u.id,
		Email:     u.email,
		Role:      "authenticated",
		CreatedAt: u.createdAt,
	}
	if u.confirmed {
		t := u.createdAt
		mu.EmailConfirmedAt = &t
	}
	return mu
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
