// Package website serves the partner dashboard: the public home page, the
// sign in and registration forms, the dashboard pages behind the session
// gate and a JSON session endpoint for browser scripts.
package website

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/wolfeidau/vitameals/internal/authclient"
	httpmiddleware "github.com/wolfeidau/vitameals/internal/http"
	"github.com/wolfeidau/vitameals/internal/routes"
	"github.com/wolfeidau/vitameals/internal/store"
)

// Config configures the website.
type Config struct {
	// Routes is the web route table, usually routes.Default().Web.
	Routes routes.Table

	// Factory builds the request-scoped auth client.
	Factory httpmiddleware.ClientFactory

	Cookies authclient.CookieOptions

	// Activity is optional. When set, auth events are recorded and listed on
	// the profile page.
	Activity store.ActivityStore

	// Settings is optional. When set, the registration page tells the user
	// whether they will need to confirm their email address.
	Settings func(ctx context.Context) (*authclient.Settings, error)

	// CORSOrigins are the origins allowed to call the JSON API.
	CORSOrigins []string

	// TrustProxy makes client IP extraction honour X-Forwarded-For.
	TrustProxy bool

	// ResolveTimeout bounds session resolution. Default: 10s
	ResolveTimeout time.Duration
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Factory == nil {
		return errors.New("auth client factory is required")
	}
	return c.Routes.Validate()
}

// Site holds the website handlers.
type Site struct {
	cfg   Config
	pages *pages
}

// New creates the website.
func New(cfg Config) (*Site, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ResolveTimeout == 0 {
		cfg.ResolveTimeout = 10 * time.Second
	}
	if cfg.Activity != nil {
		cfg.Activity = meteredActivity{cfg.Activity}
	}

	p, err := loadPages()
	if err != nil {
		return nil, err
	}

	return &Site{cfg: cfg, pages: p}, nil
}

// Handler returns the complete website handler. HTML routes are CSRF
// protected and gzip compressed, API routes get CORS.
func (s *Site) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.home)
	mux.HandleFunc("GET /auth/login", s.loginPage)
	mux.HandleFunc("POST /auth/login", s.login)
	mux.HandleFunc("GET /auth/register", s.registerPage)
	mux.HandleFunc("POST /auth/register", s.register)
	mux.HandleFunc("POST /auth/logout", s.logout)
	mux.HandleFunc("GET /dashboard", s.dashboard)
	mux.HandleFunc("GET /dashboard/{section}", s.section)
	mux.HandleFunc("GET /api/session", s.apiSession)

	gate := httpmiddleware.SessionGate(s.cfg.Routes, s.cfg.Factory, s.gateOptions())
	site := gate(mux)

	protection := csrf.New()
	html := gzhttp.GzipHandler(protection.Handler(site))
	api := withCORS(s.cfg.CORSOrigins, site)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API routes get CORS, HTML routes get CSRF
		if isAPIRoute(r.URL.Path) {
			api.ServeHTTP(w, r)
		} else {
			html.ServeHTTP(w, r)
		}
	})

	return httpmiddleware.ClientIPMiddleware(s.cfg.TrustProxy)(handler)
}

func (s *Site) gateOptions() httpmiddleware.SessionGateOptions {
	opts := httpmiddleware.SessionGateOptions{
		Cookies:        s.cfg.Cookies,
		ResolveTimeout: s.cfg.ResolveTimeout,
	}
	if s.cfg.Activity != nil {
		opts.Activity = s.cfg.Activity
	}
	return opts
}

// isAPIRoute returns true if the path is an API route that needs CORS instead of CSRF
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// withCORS adds CORS support to the JSON API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
