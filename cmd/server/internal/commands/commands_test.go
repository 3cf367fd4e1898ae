package commands

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/vitameals/internal/models"
	memorystore "github.com/wolfeidau/vitameals/internal/store/memory"
)

func TestPostgresStoreFlags_Validate(t *testing.T) {
	flags := PostgresStoreFlags{MaxConns: 10, MinConns: 1}
	require.Error(t, flags.Validate())

	flags.ConnString = "postgres://localhost/vitameals"
	require.NoError(t, flags.Validate())

	flags.MinConns = 11
	require.Error(t, flags.Validate())
}

func TestWebsiteCmd_Flags(t *testing.T) {
	t.Setenv("VITAMEALS_AUTH_URL", "https://project.supabase.co")
	t.Setenv("VITAMEALS_AUTH_ANON_KEY", "anon")
	t.Setenv("VITAMEALS_STORE_TYPE", "postgres")

	var cli struct {
		Server WebsiteCmd `cmd:""`
	}
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"server", "--no-cookie-secure", "--cors-origins=https://a.example,https://b.example"})
	require.NoError(t, err)

	cmd := cli.Server
	assert.Equal(t, "https://project.supabase.co", cmd.Auth.URL)
	assert.Equal(t, "anon", cmd.Auth.AnonKey)
	assert.Equal(t, 10*time.Second, cmd.Auth.Timeout)
	assert.Equal(t, "postgres", cmd.StoreType)
	assert.False(t, cmd.CookieSecure)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cmd.CORSOrigins)
	assert.Equal(t, 90*24*time.Hour, cmd.ActivityRetention)
	assert.Equal(t, 5*time.Second, cmd.PostgresStore.QueryTimeout)
}

func TestPruneActivity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	activity := memorystore.NewActivityStore()
	require.NoError(t, activity.Record(ctx, &models.Activity{
		Email:     "old@example.com",
		Kind:      models.ActivitySignIn,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}))
	require.NoError(t, activity.Record(ctx, &models.Activity{
		Email: "new@example.com",
		Kind:  models.ActivitySignIn,
	}))

	done := make(chan struct{})
	go func() {
		pruneActivity(ctx, activity, time.Hour, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		old, err := activity.ListByEmail(ctx, "old@example.com", 0)
		return err == nil && len(old) == 0
	}, time.Second, 10*time.Millisecond)

	recent, err := activity.ListByEmail(ctx, "new@example.com", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	cancel()
	<-done
}
