package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wolfeidau/vitameals/internal/app"
	"github.com/wolfeidau/vitameals/internal/logger"
	"github.com/wolfeidau/vitameals/internal/routes"
	"github.com/wolfeidau/vitameals/internal/session"
)

// RunCmd starts the interactive app.
type RunCmd struct {
	AuthFlags `embed:""`

	AutoRefresh bool `help:"refresh the session before it expires" default:"true" negatable:"" env:"VITAMEALS_AUTO_REFRESH"`
}

func (c *RunCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals.Debug)
	ctx = log.WithContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	authClient, err := c.newClient()
	if err != nil {
		return err
	}
	defer authClient.Close()

	if c.AutoRefresh {
		authClient.StartAutoRefresh(ctx)
		defer authClient.StopAutoRefresh()
	}

	store := session.NewStore(authClient, logger.Component(log, "session"))
	release, err := store.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer release()

	a, err := app.New(app.Options{
		Store:    store,
		Routes:   routes.Default().App,
		In:       os.Stdin,
		Out:      os.Stdout,
		Settings: authClient.Settings,
		Logger:   logger.Component(log, "app"),
	})
	if err != nil {
		return err
	}

	log.Debug().Str("version", globals.Version).Msg("Starting app")

	return a.Run(ctx)
}
