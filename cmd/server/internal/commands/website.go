package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/vitameals/internal/authclient"
	"github.com/wolfeidau/vitameals/internal/client"
	httpmiddleware "github.com/wolfeidau/vitameals/internal/http"
	"github.com/wolfeidau/vitameals/internal/logger"
	"github.com/wolfeidau/vitameals/internal/routes"
	"github.com/wolfeidau/vitameals/internal/store"
	memorystore "github.com/wolfeidau/vitameals/internal/store/memory"
	postgresstore "github.com/wolfeidau/vitameals/internal/store/postgres"
	"github.com/wolfeidau/vitameals/internal/telemetry"
	"github.com/wolfeidau/vitameals/internal/website"
)

type WebsiteCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8443" env:"VITAMEALS_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"VITAMEALS_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"VITAMEALS_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"VITAMEALS_CORS_ORIGINS"`
	TrustProxy  bool     `help:"trust X-Forwarded-For for client addresses" default:"false" env:"VITAMEALS_TRUST_PROXY"`

	// Auth service configuration
	Auth AuthFlags `embed:"" prefix:"auth-"`

	// Cookie configuration
	CookieSecure bool   `help:"mark session cookies Secure" default:"true" negatable:"" env:"VITAMEALS_COOKIE_SECURE"`
	CookieDomain string `help:"domain attribute for session cookies" default:"" env:"VITAMEALS_COOKIE_DOMAIN"`

	// Telemetry
	Tracing          bool    `help:"enable tracing and metrics export" default:"false" env:"VITAMEALS_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces sampled" default:"1" env:"VITAMEALS_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType         string             `help:"activity store type (memory or postgres)" default:"memory" env:"VITAMEALS_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore     PostgresStoreFlags `embed:"" prefix:"postgres-"`
	ActivityRetention time.Duration      `help:"how long activity entries are kept, 0 keeps them forever" default:"2160h" env:"VITAMEALS_ACTIVITY_RETENTION"`
	PruneInterval     time.Duration      `help:"how often expired activity entries are removed" default:"1h" env:"VITAMEALS_PRUNE_INTERVAL"`
}

// AuthFlags locate the hosted auth service.
type AuthFlags struct {
	URL     string        `help:"auth service base URL" required:"" env:"VITAMEALS_AUTH_URL"`
	AnonKey string        `help:"auth service anonymous API key" required:"" env:"VITAMEALS_AUTH_ANON_KEY"`
	Timeout time.Duration `help:"timeout for auth service requests" default:"10s" env:"VITAMEALS_AUTH_TIMEOUT"`
}

func (a *AuthFlags) config(storage authclient.Storage, httpClient, settingsClient *http.Client) authclient.Config {
	return authclient.Config{
		URL:            a.URL,
		AnonKey:        a.AnonKey,
		Storage:        storage,
		HTTPClient:     httpClient,
		SettingsClient: settingsClient,
	}
}

func (c *WebsiteCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting website")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "vitameals-website",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	activity, closeStore, err := c.createActivityStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if c.ActivityRetention > 0 && c.PruneInterval > 0 {
		go pruneActivity(ctx, activity, c.ActivityRetention, c.PruneInterval)
	}

	// shared by every request-scoped auth client
	httpClient := &http.Client{Timeout: c.Auth.Timeout}
	settingsClient := client.NewInMemoryCachingHTTPClient(c.Auth.Timeout)

	settings, err := authclient.New(c.Auth.config(nil, httpClient, settingsClient))
	if err != nil {
		return fmt.Errorf("failed to create auth client: %w", err)
	}

	cookies := authclient.DefaultCookieOptions()
	cookies.Secure = c.CookieSecure
	cookies.Domain = c.CookieDomain

	site, err := website.New(website.Config{
		Routes: routes.Default().Web,
		Factory: func(storage authclient.Storage) (authclient.Client, error) {
			return authclient.New(c.Auth.config(storage, httpClient, settingsClient))
		},
		Cookies:        cookies,
		Activity:       activity,
		Settings:       settings.Settings,
		CORSOrigins:    c.CORSOrigins,
		TrustProxy:     c.TrustProxy,
		ResolveTimeout: c.Auth.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create website: %w", err)
	}

	handler := httpmiddleware.RequestLogger(log)(site.Handler())
	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.serve(srv, log)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down website")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func (c *WebsiteCmd) serve(srv *http.Server, log zerolog.Logger) error {
	var err error
	if c.Cert != "" || c.Key != "" {
		if c.Cert == "" || c.Key == "" {
			return errors.New("TLS certificate and key must be given together (--cert and --key)")
		}
		if _, statErr := os.Stat(c.Cert); statErr != nil {
			return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, statErr)
		}
		if _, statErr := os.Stat(c.Key); statErr != nil {
			return fmt.Errorf("TLS key not found at %s: %w", c.Key, statErr)
		}

		log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
		err = srv.ListenAndServeTLS(c.Cert, c.Key)
	} else {
		log.Warn().Str("addr", c.Listen).Msg("Starting HTTP server without TLS")
		err = srv.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// createActivityStore returns the configured activity store and a function
// releasing its resources.
func (c *WebsiteCmd) createActivityStore(ctx context.Context, log zerolog.Logger) (store.ActivityStore, func(), error) {
	switch c.StoreType {
	case "postgres":
		pool, err := c.PostgresStore.newPool(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create activity store pool: %w", err)
		}

		s, err := postgresstore.NewActivityStore(ctx, pool, postgresstore.ActivityStoreConfig{
			QueryTimeout: c.PostgresStore.QueryTimeout,
			AutoMigrate:  c.PostgresStore.AutoMigrate,
		})
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to create activity store: %w", err)
		}

		log.Info().Msg("Using PostgreSQL activity store")
		return s, pool.Close, nil

	default:
		log.Info().Msg("Using in-memory activity store")
		return memorystore.NewActivityStore(), func() {}, nil
	}
}

// pruneActivity removes entries older than retention every interval until
// ctx is cancelled.
func pruneActivity(ctx context.Context, activity store.ActivityStore, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := activity.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to prune activity log")
				continue
			}
			zerolog.Ctx(ctx).Debug().Int64("removed", removed).Msg("Pruned activity log")
		}
	}
}
