package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/vitameals/cmd/app/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Run     commands.RunCmd    `cmd:"" default:"withargs" help:"Start the interactive app"`
		Status  commands.StatusCmd `cmd:"" help:"Show the stored session"`
		Logout  commands.LogoutCmd `cmd:"" help:"Sign out and remove the stored session"`
		Debug   bool               `help:"Enable debug mode." env:"VITAMEALS_DEBUG"`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("vitameals"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
