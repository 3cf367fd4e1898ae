package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/vitameals/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrInvalidActivity   = errors.New("invalid activity")
	ErrDuplicateActivity = errors.New("activity already recorded")
	ErrUnavailable       = errors.New("activity store unavailable")
)

// DefaultListLimit is used when ListByEmail is called with a non-positive limit.
const DefaultListLimit = 20

// ActivityStore persists the auth activity log.
type ActivityStore interface {
	// Record stores an activity. A zero ActivityID is replaced with a new
	// UUIDv7 and a zero CreatedAt with the current time.
	Record(ctx context.Context, activity *models.Activity) error

	// ListByEmail returns the most recent activities for email, newest first.
	ListByEmail(ctx context.Context, email string, limit int) ([]*models.Activity, error)

	// DeleteOlderThan removes activities created before cutoff and returns
	// how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Prepare validates an activity and fills in its ID and timestamp.
func Prepare(activity *models.Activity, now time.Time) error {
	if activity == nil || activity.Kind == "" {
		return ErrInvalidActivity
	}

	if activity.ActivityID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		activity.ActivityID = id
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = now.UTC()
	}
	return nil
}
