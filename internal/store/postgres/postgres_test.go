package postgres

import (
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/vitameals/internal/store"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/10_later.sql":  {Data: []byte("SELECT 10;")},
		"migrations/2_second.sql":  {Data: []byte("SELECT 2;")},
		"migrations/1_first.sql":   {Data: []byte("SELECT 1;")},
		"migrations/README.md":     {Data: []byte("ignored")},
		"migrations/nope.sql":      {Data: []byte("ignored")},
		"migrations/x_invalid.sql": {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].version, migrations[1].version, migrations[2].version})
	assert.Equal(t, "SELECT 2;", migrations[1].content)
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].version)
	assert.Contains(t, migrations[0].content, "CREATE TABLE IF NOT EXISTS activities")
}

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "duplicate primary key",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "activities_pkey"},
			want: store.ErrDuplicateActivity,
		},
		{
			name: "check violation",
			err:  &pgconn.PgError{Code: pgerrcode.CheckViolation, Message: "bad kind"},
			want: store.ErrInvalidActivity,
		},
		{
			name: "connection failure",
			err:  &pgconn.PgError{Code: pgerrcode.CannotConnectNow},
			want: store.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapPostgresError(tt.err), tt.want)
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, mapPostgresError(nil))
	})

	t.Run("non postgres error passes through", func(t *testing.T) {
		err := errors.New("boom")
		assert.Same(t, err, mapPostgresError(err))
	})
}

func TestPoolConfig(t *testing.T) {
	cfg := &PoolConfig{}
	require.Error(t, cfg.Validate())

	cfg.ConnString = "postgres://localhost/db"
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnIdleTime)

	cfg.MinConns = 20
	require.Error(t, cfg.Validate())
}

func TestActivityStoreConfig(t *testing.T) {
	cfg := ActivityStoreConfig{}
	cfg.ApplyDefaults()
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	require.NoError(t, cfg.Validate())

	cfg.QueryTimeout = -time.Second
	require.Error(t, cfg.Validate())
}
