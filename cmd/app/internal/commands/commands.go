package commands

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vitameals/internal/authclient"
	"github.com/wolfeidau/vitameals/internal/client"
	"github.com/wolfeidau/vitameals/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string
}

// AuthFlags locate the hosted auth service and where the session is kept.
type AuthFlags struct {
	AuthURL     string        `help:"auth service base URL" required:"" env:"VITAMEALS_AUTH_URL"`
	AuthAnonKey string        `help:"auth service anonymous API key" required:"" env:"VITAMEALS_AUTH_ANON_KEY"`
	AuthTimeout time.Duration `help:"timeout for auth service requests" default:"10s" env:"VITAMEALS_AUTH_TIMEOUT"`
	ConfigDir   string        `help:"directory holding the session and HTTP cache, defaults to ~/.vitameals" env:"VITAMEALS_CONFIG_DIR"`
}

func (a *AuthFlags) configDir() (string, error) {
	if a.ConfigDir != "" {
		return a.ConfigDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".vitameals"), nil
}

// newClient builds an auth client that persists its session on disk.
func (a *AuthFlags) newClient() (*authclient.GoTrue, error) {
	dir, err := a.configDir()
	if err != nil {
		return nil, err
	}

	storage, err := authclient.NewFileStorage(filepath.Join(dir, "session"))
	if err != nil {
		return nil, err
	}

	c, err := authclient.New(authclient.Config{
		URL:            a.AuthURL,
		AnonKey:        a.AuthAnonKey,
		Storage:        storage,
		HTTPClient:     &http.Client{Timeout: a.AuthTimeout},
		SettingsClient: client.NewCachingHTTPClient(filepath.Join(dir, "cache"), a.AuthTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}

	return c, nil
}

// setupLogger logs to stderr. Outside debug mode only warnings are shown so
// the log does not interleave with the screens. The level also applies to
// the global logger used by packages logging through zerolog/log.
func setupLogger(debug bool) zerolog.Logger {
	l := logger.Setup(debug)
	if !debug {
		l = l.Level(zerolog.WarnLevel)
		log.Logger = l
		zerolog.DefaultContextLogger = &log.Logger
	}
	return l
}
