package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/vitameals/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"VITAMEALS_DEBUG"`
		Version kong.VersionFlag
		Server  commands.WebsiteCmd `cmd:"" default:"withargs" help:"Start the partner dashboard website"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply PostgreSQL activity log migrations"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
