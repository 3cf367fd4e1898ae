package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/vitameals/internal/models"
	"github.com/wolfeidau/vitameals/internal/store"
)

// ActivityStore implements store.ActivityStore using in-memory storage.
// Data is lost on restart.
type ActivityStore struct {
	mu sync.RWMutex

	activities []*models.Activity          // in insertion order
	byEmail    map[string][]*models.Activity // email -> activities, insertion order
	byID       map[uuid.UUID]struct{}
	now        func() time.Time
}

var _ store.ActivityStore = (*ActivityStore)(nil)

// NewActivityStore creates a new in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		byEmail: make(map[string][]*models.Activity),
		byID:    make(map[uuid.UUID]struct{}),
		now:     time.Now,
	}
}

// Record stores a copy of the activity.
func (s *ActivityStore) Record(ctx context.Context, activity *models.Activity) error {
	if err := store.Prepare(activity, s.now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[activity.ActivityID]; ok {
		return store.ErrDuplicateActivity
	}

	// Clone to avoid external modifications
	clone := *activity
	s.activities = append(s.activities, &clone)
	s.byEmail[clone.Email] = append(s.byEmail[clone.Email], &clone)
	s.byID[clone.ActivityID] = struct{}{}

	return nil
}

// ListByEmail returns up to limit activities for email, newest first.
func (s *ActivityStore) ListByEmail(ctx context.Context, email string, limit int) ([]*models.Activity, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.byEmail[email]
	out := make([]*models.Activity, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *entries[i]
		out = append(out, &clone)
	}

	// insertion order is not guaranteed to follow CreatedAt
	slices.SortStableFunc(out, func(a, b *models.Activity) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return out, nil
}

// DeleteOlderThan removes activities created before cutoff.
func (s *ActivityStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := func(a *models.Activity) bool { return !a.CreatedAt.Before(cutoff) }

	var removed int64
	kept := s.activities[:0]
	for _, a := range s.activities {
		if keep(a) {
			kept = append(kept, a)
		} else {
			delete(s.byID, a.ActivityID)
			removed++
		}
	}
	clear(s.activities[len(kept):])
	s.activities = kept

	for email, entries := range s.byEmail {
		entries = slices.DeleteFunc(entries, func(a *models.Activity) bool { return !keep(a) })
		if len(entries) == 0 {
			delete(s.byEmail, email)
			continue
		}
		s.byEmail[email] = entries
	}

	return removed, nil
}
