package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/translation-progress/internal/metrics"
	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/progress"
	"github.com/JakeFAU/translation-progress/internal/store"
)

// Roller binds the pure aggregation pass to the item store: one filtered
// read per invocation, then one pass over the snapshot.
type Roller struct {
	repo    store.ItemRepository
	emitter progress.Emitter
	clock   pipeline.Clock
	// streaming switches the roller to the chunked read path for
	// deployments whose snapshots exceed memory.
	streaming bool
}

// NewRoller constructs a Roller. A nil emitter disables milestone events.
func NewRoller(repo store.ItemRepository, emitter progress.Emitter, clock pipeline.Clock, streaming bool) *Roller {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	metrics.Init()
	return &Roller{repo: repo, emitter: emitter, clock: clock, streaming: streaming}
}

// Groups rolls up every group of a track from a single snapshot read.
func (r *Roller) Groups(ctx context.Context, trackID int, track pipeline.TrackConfig) ([]pipeline.Group, error) {
	return r.roll(ctx, store.Selector{TrackID: trackID}, track)
}

// Group rolls up a single group identified by its key. It returns
// store.ErrNotFound when no items match.
func (r *Roller) Group(
	ctx context.Context,
	trackID int,
	key pipeline.GroupKey,
	track pipeline.TrackConfig,
) (pipeline.Group, error) {
	groups, err := r.roll(ctx, store.Selector{TrackID: trackID, GroupKey: key}, track)
	if err != nil {
		return pipeline.Group{}, err
	}
	for _, g := range groups {
		if g.Key.Equal(key) {
			return g, nil
		}
	}
	return pipeline.Group{}, store.ErrNotFound
}

func (r *Roller) roll(ctx context.Context, sel store.Selector, track pipeline.TrackConfig) ([]pipeline.Group, error) {
	started := r.clock.Now()
	r.emitter.Emit(progress.Event{
		TS:      started,
		Stage:   progress.StageAggregateStart,
		TrackID: sel.TrackID,
	})

	var groups []pipeline.Group
	if r.streaming {
		metrics.ObserveStoreRead("stream")
		iter, err := r.repo.IterItems(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("open item stream: %w", err)
		}
		groups, err = BuildStream(ctx, iter, track)
		if err != nil {
			return nil, err
		}
	} else {
		metrics.ObserveStoreRead("list")
		items, err := r.repo.ListItems(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		groups = Build(items, track)
	}

	var items, words int64
	for _, g := range groups {
		items += int64(len(g.ItemIDs))
		words += int64(g.TotalWordCount)
	}
	r.emitter.Emit(progress.Event{
		TS:      r.clock.Now(),
		Stage:   progress.StageAggregateDone,
		TrackID: sel.TrackID,
		Groups:  int64(len(groups)),
		Items:   items,
		Words:   words,
		Dur:     durationSince(r.clock, started),
	})
	return groups, nil
}

func durationSince(clock pipeline.Clock, started time.Time) time.Duration {
	d := clock.Now().Sub(started)
	if d < 0 {
		return 0
	}
	return d
}
