package aggregate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/progress"
	"github.com/JakeFAU/translation-progress/internal/storage/memory"
	"github.com/JakeFAU/translation-progress/internal/store"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(ev progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) Events() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Event, len(c.events))
	copy(out, c.events)
	return out
}

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func seedRollerItems(s *memory.ItemStore) {
	for i, st := range []pipeline.Status{pipeline.StatusValidated, pipeline.StatusValidated, pipeline.StatusAnnotated} {
		s.Seed(pipeline.WorkItem{
			ID:        string(rune('a' + i)),
			TrackID:   7,
			GroupKey:  pipeline.GroupKey{"P", "1"},
			Payload:   map[string]string{"source_text": "one two"},
			Status:    st,
			CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		})
	}
}

func TestRollerGroupsEmitsMilestones(t *testing.T) {
	t.Parallel()

	s := memory.NewItemStore()
	seedRollerItems(s)
	emitter := &captureEmitter{}
	clock := &tickClock{now: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)}

	r := NewRoller(s, emitter, clock, false)
	groups, err := r.Groups(context.Background(), 7, testTrack)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	events := emitter.Events()
	require.Len(t, events, 2)
	require.Equal(t, progress.StageAggregateStart, events[0].Stage)
	require.Equal(t, progress.StageAggregateDone, events[1].Stage)
	require.Equal(t, int64(1), events[1].Groups)
	require.Equal(t, int64(3), events[1].Items)
	require.Equal(t, int64(6), events[1].Words)
	require.Greater(t, events[1].Dur, time.Duration(0))
}

func TestRollerGroupMatchesStreamingAndList(t *testing.T) {
	t.Parallel()

	s := memory.NewItemStore()
	seedRollerItems(s)
	clock := &tickClock{now: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)}

	listRoller := NewRoller(s, nil, clock, false)
	streamRoller := NewRoller(s, nil, clock, true)

	key := pipeline.GroupKey{"P", "1"}
	fromList, err := listRoller.Group(context.Background(), 7, key, testTrack)
	require.NoError(t, err)
	fromStream, err := streamRoller.Group(context.Background(), 7, key, testTrack)
	require.NoError(t, err)

	require.Equal(t, fromList.Percentages, fromStream.Percentages)
	require.Equal(t, fromList.ResolvedStatus, fromStream.ResolvedStatus)
	require.Equal(t, fromList.TotalWordCount, fromStream.TotalWordCount)
}

func TestRollerGroupNotFound(t *testing.T) {
	t.Parallel()

	s := memory.NewItemStore()
	clock := &tickClock{now: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)}
	r := NewRoller(s, nil, clock, false)

	_, err := r.Group(context.Background(), 7, pipeline.GroupKey{"missing"}, testTrack)
	require.ErrorIs(t, err, store.ErrNotFound)
}
