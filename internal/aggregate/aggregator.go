// Package aggregate rolls work items up into per-group progress records.
//
// Aggregation is read-only over a snapshot: the caller loads the relevant
// item set once (or opens one streaming read) and the accumulator makes a
// single grouping pass. It never issues one filtered read per status and
// never mutates the item store.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/status"
	"github.com/JakeFAU/translation-progress/internal/store"
)

// accumulator carries the running totals for one group during the pass.
type accumulator struct {
	key            pipeline.GroupKey
	trackID        int
	totalWords     int
	wordsByStatus  map[pipeline.Status]int
	lastInsertion  time.Time
	lastAnnotation *time.Time
	itemIDs        []string
}

// Build makes a single grouping pass over a loaded snapshot and returns one
// Group per distinct group key, ordered by key for deterministic output.
// A malformed item (nil payload, missing text field) contributes zero words
// to its status bucket and never aborts the rest of the pass.
func Build(items []pipeline.WorkItem, track pipeline.TrackConfig) []pipeline.Group {
	accs := make(map[string]*accumulator)
	order := make([]string, 0)

	for _, item := range items {
		key := item.GroupKey
		if len(key) == 0 {
			key = track.GroupKeyFor(item.Payload)
		}
		mapKey := key.String()
		acc, ok := accs[mapKey]
		if !ok {
			acc = &accumulator{
				key:           key.Clone(),
				trackID:       item.TrackID,
				wordsByStatus: make(map[pipeline.Status]int, 6),
			}
			accs[mapKey] = acc
			order = append(order, mapKey)
		}
		acc.observe(item, track)
	}

	sort.Strings(order)
	groups := make([]pipeline.Group, 0, len(order))
	for _, mapKey := range order {
		groups = append(groups, accs[mapKey].finish())
	}
	return groups
}

// BuildStream is the chunked variant of Build: it consumes a store iterator
// so only the per-group accumulators are resident, preserving the
// single-logical-pass guarantee for datasets too large to load whole.
// Cancellation discards the in-flight accumulation; nothing is persisted.
func BuildStream(ctx context.Context, iter store.ItemIterator, track pipeline.TrackConfig) ([]pipeline.Group, error) {
	defer iter.Close()

	accs := make(map[string]*accumulator)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aggregation canceled: %w", err)
		}
		item, ok, err := iter.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("iterate items: %w", err)
		}
		if !ok {
			break
		}
		key := item.GroupKey
		if len(key) == 0 {
			key = track.GroupKeyFor(item.Payload)
		}
		mapKey := key.String()
		acc, found := accs[mapKey]
		if !found {
			acc = &accumulator{
				key:           key.Clone(),
				trackID:       item.TrackID,
				wordsByStatus: make(map[pipeline.Status]int, 6),
			}
			accs[mapKey] = acc
		}
		acc.observe(item, track)
	}

	keys := make([]string, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	groups := make([]pipeline.Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, accs[k].finish())
	}
	return groups, nil
}

func (a *accumulator) observe(item pipeline.WorkItem, track pipeline.TrackConfig) {
	words := item.WordCount
	if words <= 0 {
		words = track.WordCount(item.Payload)
	}
	a.totalWords += words
	a.wordsByStatus[item.Status] += words
	a.itemIDs = append(a.itemIDs, item.ID)
	if item.CreatedAt.After(a.lastInsertion) {
		a.lastInsertion = item.CreatedAt
	}
	if item.AnnotatedAt != nil {
		if a.lastAnnotation == nil || item.AnnotatedAt.After(*a.lastAnnotation) {
			ts := *item.AnnotatedAt
			a.lastAnnotation = &ts
		}
	}
}

func (a *accumulator) finish() pipeline.Group {
	percentages := make(map[pipeline.Status]float64, len(a.wordsByStatus))
	for _, s := range pipeline.Statuses() {
		percentages[s] = Percentage(a.wordsByStatus[s], a.totalWords)
	}
	resolved := status.Resolve(status.FromCounts(percentages))

	return pipeline.Group{
		Key:             a.key,
		TrackID:         a.trackID,
		TotalWordCount:  a.totalWords,
		WordCounts:      a.wordsByStatus,
		Percentages:     percentages,
		LastInsertion:   a.lastInsertion,
		LastAnnotation:  a.lastAnnotation,
		ResolvedStatus:  resolved,
		PublishEligible: status.PublishEligible(resolved),
		ItemIDs:         a.itemIDs,
	}
}

// Percentage computes part/total*100 rounded to two decimals, or 0 when
// total is zero.
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
