package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/vitameals/internal/authclient/authtest"
)

func TestRunCmd_Flags(t *testing.T) {
	t.Setenv("VITAMEALS_AUTH_URL", "https://project.supabase.co")
	t.Setenv("VITAMEALS_AUTH_ANON_KEY", "anon")

	var cli struct {
		Run RunCmd `cmd:""`
	}
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"run", "--no-auto-refresh", "--config-dir=/tmp/vitameals"})
	require.NoError(t, err)

	assert.Equal(t, "https://project.supabase.co", cli.Run.AuthURL)
	assert.Equal(t, "anon", cli.Run.AuthAnonKey)
	assert.Equal(t, 10*time.Second, cli.Run.AuthTimeout)
	assert.False(t, cli.Run.AutoRefresh)
	assert.Equal(t, "/tmp/vitameals", cli.Run.ConfigDir)
}

func TestRunCmd_RequiresAuthService(t *testing.T) {
	var cli struct {
		Run RunCmd `cmd:""`
	}
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"run"})
	require.Error(t, err)
}

func TestStatusAndLogout(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("parent@example.com", "secret1")

	flags := AuthFlags{
		AuthURL:     srv.URL,
		AuthAnonKey: authtest.AnonKey,
		AuthTimeout: 5 * time.Second,
		ConfigDir:   t.TempDir(),
	}
	ctx := context.Background()

	c, err := flags.newClient()
	require.NoError(t, err)
	defer c.Close()

	var out bytes.Buffer
	require.NoError(t, printStatus(ctx, &out, c))
	assert.Equal(t, "Not signed in.\n", out.String())

	require.NoError(t, c.SignIn(ctx, "parent@example.com", "secret1"))

	// a second client reads the session persisted by the first
	other, err := flags.newClient()
	require.NoError(t, err)
	defer other.Close()

	out.Reset()
	require.NoError(t, printStatus(ctx, &out, other))
	assert.Contains(t, out.String(), "parent@example.com")
	assert.Contains(t, out.String(), "Expires:")

	info, err := os.Stat(filepath.Join(flags.ConfigDir, "session"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	require.NoError(t, other.SignOut(ctx))

	out.Reset()
	require.NoError(t, printStatus(ctx, &out, other))
	assert.Equal(t, "Not signed in.\n", out.String())
	assert.Equal(t, 1, srv.Calls("/auth/v1/logout"))
}

func TestNewClient_SettingsCached(t *testing.T) {
	srv := authtest.NewServer(t)
	flags := AuthFlags{
		AuthURL:     srv.URL,
		AuthAnonKey: authtest.AnonKey,
		AuthTimeout: 5 * time.Second,
		ConfigDir:   t.TempDir(),
	}

	c, err := flags.newClient()
	require.NoError(t, err)
	defer c.Close()

	for range 2 {
		settings, err := c.Settings(context.Background())
		require.NoError(t, err)
		assert.True(t, settings.MailerAutoconfirm)
	}
	assert.Equal(t, 1, srv.Calls("/auth/v1/settings"))

	_, err = os.Stat(filepath.Join(flags.ConfigDir, "cache"))
	require.NoError(t, err)
}

func TestAuthFlags_DefaultConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := (&AuthFlags{}).configDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".vitameals"), dir)

}

func TestSetupLogger_QuietsGlobalLogger(t *testing.T) {
	prev, prevCtx := log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.DefaultContextLogger = prevCtx
	})

	l := setupLogger(false)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
	assert.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())
	assert.Equal(t, zerolog.WarnLevel, zerolog.Ctx(context.Background()).GetLevel())

	l = setupLogger(true)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
	assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())
}
