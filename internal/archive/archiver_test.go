package archive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/storage/memory"
	"github.com/JakeFAU/translation-progress/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestArchiveMonthlyStoresReport(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	clock := fixedClock{now: time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)}

	archiver, err := New(blobs, clock)
	require.NoError(t, err)

	counts := []store.MonthlyCount{
		{Month: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), Status: pipeline.StatusPublished, Count: 4},
	}
	groups := []pipeline.Group{
		{
			Key:            pipeline.GroupKey{"ProjectA", "Batch1"},
			TrackID:        7,
			TotalWordCount: 30,
			ResolvedStatus: pipeline.ResolvedPublished,
			ItemIDs:        []string{"item-1", "item-2"},
		},
	}

	uri, err := archiver.ArchiveMonthly(context.Background(), 7, counts, groups)
	require.NoError(t, err)
	require.Equal(t, "memory://reports/track-7/2026-03-15/monthly.json", uri)

	data, ok := blobs.Object("reports/track-7/2026-03-15/monthly.json")
	require.True(t, ok)

	var report MonthlyReport
	require.NoError(t, json.Unmarshal(data, &report))
	require.Equal(t, 7, report.TrackID)
	require.Equal(t, clock.now, report.GeneratedAt)
	require.Len(t, report.Counts, 1)
	require.Equal(t, "PUBLISHED", report.Counts[0].Status)
	require.Equal(t, int64(4), report.Counts[0].Count)
	require.Len(t, report.Groups, 1)
	require.Equal(t, []string{"ProjectA", "Batch1"}, report.Groups[0].GroupKey)
	require.Equal(t, 2, report.Groups[0].Items)
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, fixedClock{})
	require.Error(t, err)

	_, err = New(memory.NewBlobStore(), nil)
	require.Error(t, err)
}
