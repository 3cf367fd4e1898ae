package postgres

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vitameals/internal/models"
	"github.com/wolfeidau/vitameals/internal/store"
)

// ActivityStore implements store.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
	cfg  ActivityStoreConfig
	now  func() time.Time
}

var _ store.ActivityStore = (*ActivityStore)(nil)

// NewActivityStore creates a new PostgreSQL-backed activity store, applying
// migrations first when cfg.AutoMigrate is set.
func NewActivityStore(ctx context.Context, pool *pgxpool.Pool, cfg ActivityStoreConfig) (*ActivityStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid activity store config: %w", err)
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			return nil, err
		}
	}

	return &ActivityStore{
		pool: pool,
		cfg:  cfg,
		now:  time.Now,
	}, nil
}

// Record inserts an activity.
func (s *ActivityStore) Record(ctx context.Context, activity *models.Activity) error {
	if err := store.Prepare(activity, s.now()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	query := `
		INSERT INTO activities (
			activity_id, email, kind, path,
			ip_address, user_agent, created_at
		) VALUES (
			$1, $2, $3, $4, $5::inet, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		activity.ActivityID,
		activity.Email,
		activity.Kind,
		activity.Path,
		inetOrNil(activity.IPAddress),
		activity.UserAgent,
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", mapPostgresError(err))
	}

	log.Ctx(ctx).Debug().
		Str("activity_id", activity.ActivityID.String()).
		Str("kind", activity.Kind).
		Msg("Recorded activity")

	return nil
}

// ListByEmail returns up to limit activities for email, newest first.
func (s *ActivityStore) ListByEmail(ctx context.Context, email string, limit int) ([]*models.Activity, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	query := `
		SELECT
			activity_id, email, kind, path,
			COALESCE(host(ip_address), ''), user_agent, created_at
		FROM activities
		WHERE email = $1
		ORDER BY created_at DESC, activity_id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", mapPostgresError(err))
	}

	activities, err := pgx.CollectRows(rows, scanActivity)
	if err != nil {
		return nil, fmt.Errorf("failed to scan activities: %w", mapPostgresError(err))
	}

	return activities, nil
}

// DeleteOlderThan removes activities created before cutoff.
func (s *ActivityStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM activities WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete activities: %w", mapPostgresError(err))
	}

	count := result.RowsAffected()
	if count > 0 {
		log.Info().
			Int64("count", count).
			Time("cutoff", cutoff).
			Msg("Deleted old activities")
	}

	return count, nil
}

func scanActivity(row pgx.CollectableRow) (*models.Activity, error) {
	var a models.Activity
	err := row.Scan(
		&a.ActivityID,
		&a.Email,
		&a.Kind,
		&a.Path,
		&a.IPAddress,
		&a.UserAgent,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// inetOrNil converts an address to a value suitable for an INET column.
// Unparseable addresses are stored as NULL.
func inetOrNil(addr string) any {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return nil
	}
	return ip.String()
}
