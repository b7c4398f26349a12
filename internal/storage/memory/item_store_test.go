package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/store"
)

func seedItem(s *ItemStore, id string, key pipeline.GroupKey, st pipeline.Status) {
	s.Seed(pipeline.WorkItem{
		ID:        id,
		TrackID:   7,
		GroupKey:  key,
		Status:    st,
		CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
}

func TestListItemsFiltersBySelector(t *testing.T) {
	t.Parallel()

	s := NewItemStore()
	seedItem(s, "a", pipeline.GroupKey{"P", "1"}, pipeline.StatusPending)
	seedItem(s, "b", pipeline.GroupKey{"P", "2"}, pipeline.StatusPending)
	s.Seed(pipeline.WorkItem{ID: "other", TrackID: 8, GroupKey: pipeline.GroupKey{"P", "1"}})

	all, err := s.ListItems(context.Background(), store.Selector{TrackID: 7})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ID)

	one, err := s.ListItems(context.Background(), store.Selector{TrackID: 7, GroupKey: pipeline.GroupKey{"P", "2"}})
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, "b", one[0].ID)
}

func TestIterItemsSnapshotIsFixed(t *testing.T) {
	t.Parallel()

	s := NewItemStore()
	seedItem(s, "a", pipeline.GroupKey{"P", "1"}, pipeline.StatusPending)

	iter, err := s.IterItems(context.Background(), store.Selector{TrackID: 7})
	require.NoError(t, err)
	defer iter.Close()

	// Writes after the iterator opens are not observed.
	seedItem(s, "b", pipeline.GroupKey{"P", "1"}, pipeline.StatusPending)

	var seen []string
	for {
		item, ok, err := iter.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, item.ID)
	}
	require.Equal(t, []string{"a"}, seen)
}

func TestBatchSetStatusStampsStageTimestamps(t *testing.T) {
	t.Parallel()

	s := NewItemStore()
	seedItem(s, "a", pipeline.GroupKey{"P", "1"}, pipeline.StatusValidated)
	seedItem(s, "b", pipeline.GroupKey{"P", "1"}, pipeline.StatusValidated)

	at := time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)
	err := s.BatchSetStatus(context.Background(), []string{"a", "b"}, pipeline.StatusPublished, at, "")
	require.NoError(t, err)

	items, err := s.ListItems(context.Background(), store.Selector{TrackID: 7})
	require.NoError(t, err)
	for _, it := range items {
		require.Equal(t, pipeline.StatusPublished, it.Status)
		require.NotNil(t, it.PublishedAt)
		require.Equal(t, at, *it.PublishedAt)
		require.NotNil(t, it.StatusChangedAt)
	}
}

func TestBatchSetStatusUnknownID(t *testing.T) {
	t.Parallel()

	s := NewItemStore()
	err := s.BatchSetStatus(context.Background(), []string{"missing"}, pipeline.StatusPublished, time.Now(), "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMonthlyStatusCountsBucketsByStage(t *testing.T) {
	t.Parallel()

	s := NewItemStore()
	april := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	may := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)

	s.Seed(pipeline.WorkItem{
		ID: "a", TrackID: 7, Status: pipeline.StatusValidated,
		AnnotatedAt: &april, ValidatedAt: &may,
	})
	s.Seed(pipeline.WorkItem{
		ID: "b", TrackID: 7, Status: pipeline.StatusPublishFailed,
		AnnotatedAt: &april, StatusChangedAt: &may,
	})

	counts, err := s.MonthlyStatusCounts(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, []store.MonthlyCount{
		{Month: monthOf(april), Status: pipeline.StatusAnnotated, Count: 2},
		{Month: monthOf(may), Status: pipeline.StatusPublishFailed, Count: 1},
		{Month: monthOf(may), Status: pipeline.StatusValidated, Count: 1},
	}, counts)
}

func TestAttemptLifecycle(t *testing.T) {
	t.Parallel()

	s := NewItemStore()
	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	key := pipeline.GroupKey{"P", "1"}

	attempt := store.PublishAttempt{
		ID: "attempt-1", TrackID: 7, GroupKey: key,
		State: store.AttemptStarted, StartedAt: started,
	}
	require.NoError(t, s.RecordAttempt(context.Background(), attempt))
	require.Error(t, s.RecordAttempt(context.Background(), attempt))

	// Uncertain attempts stay unresolved.
	require.NoError(t, s.SetAttemptState(context.Background(), "attempt-1", store.AttemptUncertain, "publish timed out", started))
	got, err := s.UnresolvedAttempt(context.Background(), 7, key)
	require.NoError(t, err)
	require.Equal(t, "attempt-1", got.ID)
	require.Nil(t, got.ResolvedAt)

	// Terminal states stamp ResolvedAt and clear the unresolved marker.
	resolved := started.Add(time.Hour)
	require.NoError(t, s.SetAttemptState(context.Background(), "attempt-1", store.AttemptSucceeded, "operator confirmed", resolved))
	_, err = s.UnresolvedAttempt(context.Background(), 7, key)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.GetAttempt(context.Background(), "attempt-1")
	require.NoError(t, err)
	require.Equal(t, store.AttemptSucceeded, got.State)
	require.NotNil(t, got.ResolvedAt)
	require.Equal(t, resolved, *got.ResolvedAt)
}

func TestListAttemptsOrderAndPaging(t *testing.T) {
	t.Parallel()

	s := NewItemStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordAttempt(context.Background(), store.PublishAttempt{
			ID: id, TrackID: 7, GroupKey: pipeline.GroupKey{"P"},
			State: store.AttemptSucceeded, StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	attempts, err := s.ListAttempts(context.Background(), 7, 2, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, "c", attempts[0].ID)
	require.Equal(t, "b", attempts[1].ID)

	rest, err := s.ListAttempts(context.Background(), 7, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "a", rest[0].ID)

	none, err := s.ListAttempts(context.Background(), 7, 2, 5)
	require.NoError(t, err)
	require.Empty(t, none)
}
