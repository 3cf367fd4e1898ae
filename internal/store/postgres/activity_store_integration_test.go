//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/vitameals/internal/models"
	"github.com/wolfeidau/vitameals/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) *pgxpool.Pool {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestIntegration_ActivityStore(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgresContainer(t, ctx)

	s, err := NewActivityStore(ctx, pool, ActivityStoreConfig{AutoMigrate: true})
	require.NoError(t, err)

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, pool))

		var count int
		err := pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("record and list newest first", func(t *testing.T) {
		for i, kind := range []string{models.ActivitySignUp, models.ActivitySignIn, models.ActivitySignOut} {
			err := s.Record(ctx, &models.Activity{
				Email:     "partner@example.com",
				Kind:      kind,
				Path:      "/auth/login",
				IPAddress: "203.0.113.7",
				UserAgent: "test",
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		activities, err := s.ListByEmail(ctx, "partner@example.com", 2)
		require.NoError(t, err)
		require.Len(t, activities, 2)
		assert.Equal(t, models.ActivitySignOut, activities[0].Kind)
		assert.Equal(t, models.ActivitySignIn, activities[1].Kind)
		assert.Equal(t, "203.0.113.7", activities[0].IPAddress)
		assert.True(t, base.Add(2*time.Second).Equal(activities[0].CreatedAt))
	})

	t.Run("invalid address stored as null", func(t *testing.T) {
		err := s.Record(ctx, &models.Activity{
			Email:     "anon@example.com",
			Kind:      models.ActivityGuardRedirect,
			IPAddress: "not-an-ip",
		})
		require.NoError(t, err)

		activities, err := s.ListByEmail(ctx, "anon@example.com", 0)
		require.NoError(t, err)
		require.Len(t, activities, 1)
		assert.Empty(t, activities[0].IPAddress)
	})

	t.Run("duplicate id", func(t *testing.T) {
		a := &models.Activity{Email: "dup@example.com", Kind: models.ActivitySignIn}
		require.NoError(t, s.Record(ctx, a))

		again := *a
		err := s.Record(ctx, &again)
		require.ErrorIs(t, err, store.ErrDuplicateActivity)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		err := s.Record(ctx, &models.Activity{Email: "x@example.com", Kind: "teleport"})
		require.ErrorIs(t, err, store.ErrInvalidActivity)
	})

	t.Run("delete older than", func(t *testing.T) {
		err := s.Record(ctx, &models.Activity{
			Email:     "old@example.com",
			Kind:      models.ActivitySignIn,
			CreatedAt: time.Now().Add(-2 * time.Hour),
		})
		require.NoError(t, err)

		removed, err := s.DeleteOlderThan(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		activities, err := s.ListByEmail(ctx, "old@example.com", 0)
		require.NoError(t, err)
		assert.Empty(t, activities)
	})
}
