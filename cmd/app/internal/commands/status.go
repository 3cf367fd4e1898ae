package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/vitameals/internal/authclient"
)

// StatusCmd prints the stored session.
type StatusCmd struct {
	AuthFlags `embed:""`
}

func (c *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals.Debug)
	ctx = log.WithContext(ctx)

	authClient, err := c.newClient()
	if err != nil {
		return err
	}
	defer authClient.Close()

	return printStatus(ctx, os.Stdout, authClient)
}

func printStatus(ctx context.Context, w io.Writer, c authclient.Client) error {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	if sess == nil {
		fmt.Fprintln(w, "Not signed in.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Email:\t%s\n", sess.Email())
	fmt.Fprintf(tw, "Name:\t%s\n", sess.User.DisplayName())
	if exp := sess.Expiry(); !exp.IsZero() {
		fmt.Fprintf(tw, "Expires:\t%s\n", exp.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}

// LogoutCmd signs out and removes the stored session.
type LogoutCmd struct {
	AuthFlags `embed:""`
}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals.Debug)
	ctx = log.WithContext(ctx)

	authClient, err := c.newClient()
	if err != nil {
		return err
	}
	defer authClient.Close()

	if err := authClient.SignOut(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}

	fmt.Println("Signed out.")
	return nil
}
