// Package memory contains in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/store"
)

// ItemStore provides an in-memory item repository for development/testing.
type ItemStore struct {
	mu       sync.RWMutex
	items    map[string]pipeline.WorkItem
	attempts map[string]store.PublishAttempt
}

// NewItemStore constructs an empty ItemStore.
func NewItemStore() *ItemStore {
	return &ItemStore{
		items:    make(map[string]pipeline.WorkItem),
		attempts: make(map[string]store.PublishAttempt),
	}
}

// Seed inserts or replaces items, bypassing lifecycle rules. Test helper.
func (s *ItemStore) Seed(items ...pipeline.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.ID] = it
	}
}

// ListItems returns a snapshot of every item matching the selector.
func (s *ItemStore) ListItems(_ context.Context, sel store.Selector) ([]pipeline.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.matchingIDs(sel)
	out := make([]pipeline.WorkItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out, nil
}

// IterItems streams the same snapshot item by item. The snapshot is fixed
// when the iterator opens; later writes are not observed.
func (s *ItemStore) IterItems(ctx context.Context, sel store.Selector) (store.ItemIterator, error) {
	items, err := s.ListItems(ctx, sel)
	if err != nil {
		return nil, err
	}
	return &sliceIterator{items: items}, nil
}

// BatchSetStatus moves every listed item to the target status. Items are
// stamped with the per-stage timestamp matching the status.
func (s *ItemStore) BatchSetStatus(
	_ context.Context,
	ids []string,
	target pipeline.Status,
	at time.Time,
	reason string,
) error {
	if !target.Valid() {
		return errors.New("unknown target status")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		item, ok := s.items[id]
		if !ok {
			return store.ErrNotFound
		}
		item.Status = target
		item.StatusReason = reason
		ts := at
		item.StatusChangedAt = &ts
		switch target {
		case pipeline.StatusAnnotated:
			item.AnnotatedAt = &ts
		case pipeline.StatusValidated:
			item.ValidatedAt = &ts
		case pipeline.StatusPublished:
			item.PublishedAt = &ts
		}
		s.items[id] = item
	}
	return nil
}

// MonthlyStatusCounts tallies items per month for the reporting statuses.
func (s *ItemStore) MonthlyStatusCounts(_ context.Context, trackID int) ([]store.MonthlyCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		month  time.Time
		status pipeline.Status
	}
	counts := make(map[bucket]int64)
	for _, item := range s.items {
		if item.TrackID != trackID {
			continue
		}
		for status, ts := range stageTimestamps(item) {
			if ts == nil {
				continue
			}
			b := bucket{month: monthOf(*ts), status: status}
			counts[b]++
		}
	}

	out := make([]store.MonthlyCount, 0, len(counts))
	for b, n := range counts {
		out = append(out, store.MonthlyCount{Month: b.month, Status: b.status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Month.Equal(out[j].Month) {
			return out[i].Month.Before(out[j].Month)
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// RecordAttempt stores a publish attempt.
func (s *ItemStore) RecordAttempt(_ context.Context, attempt store.PublishAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return errors.New("attempt already exists")
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

// SetAttemptState finalizes an attempt.
func (s *ItemStore) SetAttemptState(
	_ context.Context,
	attemptID string,
	state store.AttemptState,
	reason string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return store.ErrNotFound
	}
	attempt.State = state
	attempt.Reason = reason
	if state != store.AttemptUncertain && state != store.AttemptStarted {
		ts := at
		attempt.ResolvedAt = &ts
	}
	s.attempts[attemptID] = attempt
	return nil
}

// GetAttempt loads one attempt.
func (s *ItemStore) GetAttempt(_ context.Context, attemptID string) (store.PublishAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return store.PublishAttempt{}, store.ErrNotFound
	}
	return attempt, nil
}

// UnresolvedAttempt returns the group's pending uncertain attempt, if any.
func (s *ItemStore) UnresolvedAttempt(
	_ context.Context,
	trackID int,
	key pipeline.GroupKey,
) (store.PublishAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, attempt := range s.attempts {
		if attempt.TrackID == trackID &&
			attempt.GroupKey.Equal(key) &&
			attempt.State == store.AttemptUncertain &&
			attempt.ResolvedAt == nil {
			return attempt, nil
		}
	}
	return store.PublishAttempt{}, store.ErrNotFound
}

// ListAttempts pages through a track's attempts, newest first.
func (s *ItemStore) ListAttempts(_ context.Context, trackID int, limit, offset int) ([]store.PublishAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := make([]store.PublishAttempt, 0, len(s.attempts))
	for _, attempt := range s.attempts {
		if attempt.TrackID == trackID {
			attempts = append(attempts, attempt)
		}
	}
	sort.Slice(attempts, func(i, j int) bool {
		if attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].ID > attempts[j].ID
		}
		return attempts[i].StartedAt.After(attempts[j].StartedAt)
	})
	if offset >= len(attempts) {
		return nil, nil
	}
	attempts = attempts[offset:]
	if len(attempts) > limit {
		attempts = attempts[:limit]
	}
	return attempts, nil
}

func (s *ItemStore) matchingIDs(sel store.Selector) []string {
	ids := make([]string, 0, len(s.items))
	for id, item := range s.items {
		if item.TrackID != sel.TrackID {
			continue
		}
		if len(sel.GroupKey) > 0 && !item.GroupKey.Equal(sel.GroupKey) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func stageTimestamps(item pipeline.WorkItem) map[pipeline.Status]*time.Time {
	var failedAt *time.Time
	if item.Status == pipeline.StatusPublishFailed {
		// Failed publishes keep no dedicated column; the transition stamp
		// places them in a month.
		failedAt = item.StatusChangedAt
	}
	return map[pipeline.Status]*time.Time{
		pipeline.StatusAnnotated:     item.AnnotatedAt,
		pipeline.StatusValidated:     item.ValidatedAt,
		pipeline.StatusPublished:     item.PublishedAt,
		pipeline.StatusPublishFailed: failedAt,
	}
}

func monthOf(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
}

type sliceIterator struct {
	items []pipeline.WorkItem
	pos   int
}

func (s *sliceIterator) Next(ctx context.Context) (pipeline.WorkItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.WorkItem{}, false, err
	}
	if s.pos >= len(s.items) {
		return pipeline.WorkItem{}, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

func (s *sliceIterator) Close() {}
