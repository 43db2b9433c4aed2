package gorm

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/reelrank/pkg/models"
)

// InteractionStore persists the append-only interaction event log.
type InteractionStore struct {
	store *Store
}

// NewInteractionStore creates an InteractionStore backed by the given Store.
func NewInteractionStore(store *Store) *InteractionStore {
	return &InteractionStore{store: store}
}

// Record validates and appends an interaction event, returning its ID.
// Malformed events are rejected with a *models.ValidationError and never
// persisted.
func (s *InteractionStore) Record(ctx context.Context, event *models.InteractionEvent) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	row := InteractionEvent{
		ID:             event.ID,
		UserID:         event.UserID,
		MovieID:        event.MovieID,
		Kind:           string(event.Kind),
		Value:          event.Value,
		CreatedAtEpoch: event.CreatedAtEpoch,
	}

	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "record_interaction")
	defer cancel()

	if err := s.store.DB.WithContext(timeoutCtx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("record interaction: %w", err)
	}
	return row.ID, nil
}

// EventsFor returns a user's events at or after since, ordered by timestamp
// ascending. A zero since returns the full retained history.
func (s *InteractionStore) EventsFor(ctx context.Context, userID string, since time.Time) ([]*models.InteractionEvent, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "events_for")
	defer cancel()

	var rows []InteractionEvent
	q := s.store.DB.WithContext(timeoutCtx).
		Where("user_id = ?", userID).
		Order("created_at_epoch ASC, id ASC")
	if !since.IsZero() {
		q = q.Where("created_at_epoch >= ?", since.UnixMilli())
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("events for user %s: %w", userID, err)
	}

	events := make([]*models.InteractionEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].Domain()
	}
	return events, nil
}

// ForEachEventSince streams all events at or after since to fn in batches,
// ordered by (timestamp, id) ascending. The scan is restartable and keeps
// recomputation memory bounded regardless of log size.
func (s *InteractionStore) ForEachEventSince(ctx context.Context, since time.Time, batchSize int, fn func(*models.InteractionEvent) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	lastEpoch := int64(0)
	if !since.IsZero() {
		lastEpoch = since.UnixMilli()
	}
	lastID := ""

	for {
		var rows []InteractionEvent
		err := s.store.DB.WithContext(ctx).
			Where("created_at_epoch > ? OR (created_at_epoch = ? AND id > ?)", lastEpoch, lastEpoch, lastID).
			Order("created_at_epoch ASC, id ASC").
			Limit(batchSize).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("scan events: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		for i := range rows {
			if err := fn(rows[i].Domain()); err != nil {
				return err
			}
		}

		last := rows[len(rows)-1]
		lastEpoch = last.CreatedAtEpoch
		lastID = last.ID
	}
}

// PruneOlderThan deletes events whose timestamp precedes now-horizon. This is
// the only deletion path for the event log.
func (s *InteractionStore) PruneOlderThan(ctx context.Context, horizon time.Duration) (int64, error) {
	cutoff := time.Now().Add(-horizon).UnixMilli()

	timeoutCtx, cancel := s.store.WithTimeout(ctx, SlowQueryTimeout, "prune_interactions")
	defer cancel()

	res := s.store.DB.WithContext(timeoutCtx).
		Where("created_at_epoch < ?", cutoff).
		Delete(&InteractionEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune interactions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountForUser returns the number of retained events for a user.
func (s *InteractionStore) CountForUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.store.DB.WithContext(ctx).
		Model(&InteractionEvent{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// MovieIDsByKinds returns the distinct movie IDs a user has events of the
// given kinds for. Used to build recommendation exclusion sets.
func (s *InteractionStore) MovieIDsByKinds(ctx context.Context, userID string, kinds ...models.InteractionKind) ([]string, error) {
	raw := make([]string, len(kinds))
	for i, k := range kinds {
		raw[i] = string(k)
	}

	var ids []string
	err := s.store.DB.WithContext(ctx).
		Model(&InteractionEvent{}).
		Distinct("movie_id").
		Where("user_id = ? AND kind IN ?", userID, raw).
		Pluck("movie_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("movie ids by kind: %w", err)
	}
	return ids, nil
}

// FeedbackCounts returns how many recommendations the user accepted and
// dismissed.
func (s *InteractionStore) FeedbackCounts(ctx context.Context, userID string) (accepted, dismissed int64, err error) {
	db := s.store.DB.WithContext(ctx).Model(&InteractionEvent{})
	if err = db.Where("user_id = ? AND kind = ?", userID, string(models.KindAccepted)).
		Count(&accepted).Error; err != nil {
		return 0, 0, fmt.Errorf("count accepted: %w", err)
	}
	db = s.store.DB.WithContext(ctx).Model(&InteractionEvent{})
	if err = db.Where("user_id = ? AND kind = ?", userID, string(models.KindDismissed)).
		Count(&dismissed).Error; err != nil {
		return 0, 0, fmt.Errorf("count dismissed: %w", err)
	}
	return accepted, dismissed, nil
}
