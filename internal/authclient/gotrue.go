package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vitameals/internal/client"
	"github.com/wolfeidau/vitameals/internal/models"
)

const (
	// expiryMargin is how close to expiry a session is refreshed on read.
	expiryMargin = 10 * time.Second

	// refreshTickThreshold is how many auto-refresh ticks before expiry a
	// session is refreshed in the background.
	refreshTickThreshold = 3
)

// Config holds configuration for the GoTrue client.
type Config struct {
	// URL is the project URL, e.g. https://abcd.supabase.co
	URL string

	// AnonKey is the public API key sent with every request.
	AnonKey string

	// Storage persists the session. Default: MemoryStorage
	Storage Storage

	// HTTPClient is used for auth requests. Default: 10s timeout
	HTTPClient *http.Client

	// SettingsClient is used for the cacheable settings endpoint.
	// Default: in-memory caching client
	SettingsClient *http.Client

	// RefreshTick is the auto-refresh check interval. Default: 30s
	RefreshTick time.Duration

	// RetryMaxElapsed bounds refresh retries. Default: 30s
	RetryMaxElapsed time.Duration
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("auth service URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("auth service URL %q is not absolute", c.URL)
	}
	if c.AnonKey == "" {
		return errors.New("auth service anon key is required")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Storage == nil {
		c.Storage = NewMemoryStorage()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.SettingsClient == nil {
		c.SettingsClient = client.NewInMemoryCachingHTTPClient(10 * time.Second)
	}
	if c.RefreshTick == 0 {
		c.RefreshTick = 30 * time.Second
	}
	if c.RetryMaxElapsed == 0 {
		c.RetryMaxElapsed = 30 * time.Second
	}
}

type subscription struct {
	id      uint64
	handler Handler
}

// GoTrue implements Client against a GoTrue-compatible REST API.
type GoTrue struct {
	cfg        Config
	authURL    string
	storageKey string

	// sessMu serialises every session read and mutation together with the
	// emission of its event, so subscribers see changes in the order they
	// happen.
	sessMu  sync.Mutex
	current *models.Session
	loaded  bool

	subMu  sync.Mutex
	subs   []subscription
	nextID uint64

	refreshMu   sync.Mutex
	stopRefresh context.CancelFunc
	refreshDone chan struct{}
}

var _ Client = (*GoTrue)(nil)

// New creates a GoTrue client.
func New(cfg Config) (*GoTrue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth client config: %w", err)
	}
	cfg.ApplyDefaults()

	return &GoTrue{
		cfg:        cfg,
		authURL:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		storageKey: StorageKey(cfg.URL),
	}, nil
}

// StorageKey returns the key the session is persisted under.
func (g *GoTrue) StorageKey() string {
	return g.storageKey
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GetSession returns the current session, refreshing it first if it expires
// within the expiry margin. A rejected refresh token clears the session.
func (g *GoTrue) GetSession(ctx context.Context) (*models.Session, error) {
	g.sessMu.Lock()
	defer g.sessMu.Unlock()

	sess, err := g.loadLocked()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionResolution, err)
	}
	if sess == nil {
		return nil, nil
	}

	return g.refreshWithinLocked(ctx, sess, expiryMargin)
}

// OnAuthStateChange registers a handler for session changes.
func (g *GoTrue) OnAuthStateChange(handler Handler) func() {
	g.subMu.Lock()
	g.nextID++
	id := g.nextID
	g.subs = append(g.subs, subscription{id: id, handler: handler})
	g.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.subMu.Lock()
			defer g.subMu.Unlock()
			for i, s := range g.subs {
				if s.id == id {
					g.subs = append(g.subs[:i:i], g.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// SignIn exchanges an email and password for a session.
func (g *GoTrue) SignIn(ctx context.Context, email, password string) error {
	var sess models.Session
	err := g.do(ctx, http.MethodPost, "/token?grant_type=password", credentials{Email: email, Password: password}, g.cfg.AnonKey, &sess)
	if err != nil {
		log.Debug().Err(err).Str("user", email).Msg("Sign in rejected")
		return err
	}
	normalizeSession(&sess, time.Now())

	g.sessMu.Lock()
	defer g.sessMu.Unlock()

	g.setSessionLocked(EventSignedIn, &sess)

	log.Debug().
		Str("user", email).
		Str("refresh", Fingerprint(sess.RefreshToken)).
		Msg("Signed in")

	return nil
}

// SignUp registers a new user. When the service requires email confirmation
// no session is issued and no event is emitted.
func (g *GoTrue) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	var raw json.RawMessage
	err := g.do(ctx, http.MethodPost, "/signup", credentials{Email: email, Password: password}, g.cfg.AnonKey, &raw)
	if err != nil {
		log.Debug().Err(err).Str("user", email).Msg("Sign up rejected")
		return nil, err
	}

	var issued struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &issued); err != nil {
		return nil, fmt.Errorf("failed to decode sign up response: %w", err)
	}

	if issued.AccessToken == "" {
		var user models.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, fmt.Errorf("failed to decode sign up user: %w", err)
		}
		log.Debug().Str("user", email).Msg("Signed up, confirmation required")
		return &SignUpResult{User: &user, ConfirmationRequired: true}, nil
	}

	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode sign up session: %w", err)
	}
	normalizeSession(&sess, time.Now())

	g.sessMu.Lock()
	defer g.sessMu.Unlock()

	g.setSessionLocked(EventSignedIn, &sess)

	log.Debug().Str("user", email).Msg("Signed up and signed in")

	return &SignUpResult{User: sess.User}, nil
}

// SignOut revokes the session remotely and clears it locally. Signing out
// with no session clears storage and returns nil. If the service reports
// the session is already gone it is cleared as well.
func (g *GoTrue) SignOut(ctx context.Context) error {
	g.sessMu.Lock()
	defer g.sessMu.Unlock()

	sess, err := g.loadLocked()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load session before sign out")
	}

	if sess != nil {
		err := g.do(ctx, http.MethodPost, "/logout", nil, sess.AccessToken, nil)
		if err != nil {
			var se *ServiceError
			if !errors.As(err, &se) || !isSessionGone(se.Status) {
				log.Debug().Err(err).Msg("Sign out failed")
				return err
			}
		}
	}

	g.removeSessionLocked()
	log.Debug().Msg("Signed out")

	return nil
}

func isSessionGone(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound
}

// Settings describes the public configuration of the auth service.
type Settings struct {
	DisableSignup     bool            `json:"disable_signup"`
	MailerAutoconfirm bool            `json:"mailer_autoconfirm"`
	External          map[string]bool `json:"external"`
}

// Settings fetches the service settings through the caching HTTP client.
func (g *GoTrue) Settings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := g.doWith(ctx, g.cfg.SettingsClient, http.MethodGet, "/settings", nil, g.cfg.AnonKey, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StartAutoRefresh refreshes the session in the background before it
// expires. It is a no-op if already running.
func (g *GoTrue) StartAutoRefresh(ctx context.Context) {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	if g.stopRefresh != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.stopRefresh = cancel
	g.refreshDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(g.cfg.RefreshTick)
		defer ticker.Stop()

		g.autoRefresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.autoRefresh(ctx)
			}
		}
	}()
}

// StopAutoRefresh stops the background refresh and waits for it to exit.
func (g *GoTrue) StopAutoRefresh() {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	if g.stopRefresh == nil {
		return
	}
	g.stopRefresh()
	<-g.refreshDone
	g.stopRefresh = nil
	g.refreshDone = nil
}

// Close stops background work.
func (g *GoTrue) Close() error {
	g.StopAutoRefresh()
	return nil
}

func (g *GoTrue) autoRefresh(ctx context.Context) {
	g.sessMu.Lock()
	defer g.sessMu.Unlock()

	sess, err := g.loadLocked()
	if err != nil || sess == nil {
		return
	}

	if _, err := g.refreshWithinLocked(ctx, sess, g.cfg.RefreshTick*refreshTickThreshold); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("Auto refresh failed")
	}
}

// loadLocked reads the persisted session once; the first successful read
// emits INITIAL_SESSION.
func (g *GoTrue) loadLocked() (*models.Session, error) {
	if g.loaded {
		return g.current, nil
	}

	raw, ok, err := g.cfg.Storage.GetItem(g.storageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	g.loaded = true

	if ok {
		var sess models.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.AccessToken == "" {
			log.Warn().Msg("Discarding unreadable stored session")
			if err := g.cfg.Storage.RemoveItem(g.storageKey); err != nil {
				log.Warn().Err(err).Msg("Failed to remove stored session")
			}
		} else {
			g.current = &sess
		}
	}

	g.emitLocked(EventInitialSession, g.current)
	return g.current, nil
}

func (g *GoTrue) setSessionLocked(event Event, sess *models.Session) {
	g.current = sess
	g.loaded = true

	data, err := json.Marshal(sess)
	if err == nil {
		err = g.cfg.Storage.SetItem(g.storageKey, string(data))
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to persist session")
	}

	g.emitLocked(event, sess)
}

func (g *GoTrue) removeSessionLocked() {
	g.current = nil
	g.loaded = true

	if err := g.cfg.Storage.RemoveItem(g.storageKey); err != nil {
		log.Warn().Err(err).Msg("Failed to remove stored session")
	}

	g.emitLocked(EventSignedOut, nil)
}

func (g *GoTrue) emitLocked(event Event, sess *models.Session) {
	g.subMu.Lock()
	handlers := make([]Handler, 0, len(g.subs))
	for _, s := range g.subs {
		handlers = append(handlers, s.handler)
	}
	g.subMu.Unlock()

	var payload *models.Session
	if sess != nil {
		clone := *sess
		payload = &clone
	}

	for _, h := range handlers {
		h(event, payload)
	}
}

func (g *GoTrue) do(ctx context.Context, method, path string, in any, bearer string, out any) error {
	return g.doWith(ctx, g.cfg.HTTPClient, method, path, in, bearer, out)
}

func (g *GoTrue) doWith(ctx context.Context, httpClient *http.Client, method, path string, in any, bearer string, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.authURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", g.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	defer func() {
		// read to EOF so the caching transport can store the response
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseServiceError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
