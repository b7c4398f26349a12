// Package store declares interfaces for reading and mutating work items.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Selector narrows a filtered read. TrackID is required; GroupKey, when
// set, limits the read to one group's members.
type Selector struct {
	TrackID  int
	GroupKey pipeline.GroupKey
}

// ItemIterator streams work items for chunked aggregation. Next returns
// false with a nil error once the set is exhausted. Close releases the
// underlying cursor and is safe to call more than once.
type ItemIterator interface {
	Next(ctx context.Context) (pipeline.WorkItem, bool, error)
	Close()
}

// AttemptState marks the outcome bookkeeping of one publish attempt.
type AttemptState string

// Publish attempt states. Uncertain attempts block re-publish until a
// human resolves them.
const (
	AttemptStarted   AttemptState = "started"
	AttemptSucceeded AttemptState = "succeeded"
	AttemptFailed    AttemptState = "failed"
	AttemptUncertain AttemptState = "uncertain"
)

// PublishAttempt records one invocation of the external publish
// collaborator for a group.
type PublishAttempt struct {
	ID        string
	TrackID   int
	GroupKey  pipeline.GroupKey
	State     AttemptState
	Reason    string
	StartedAt time.Time
	// ResolvedAt is nil while an uncertain attempt awaits manual
	// verification.
	ResolvedAt *time.Time
}

// MonthlyCount is one month's tally of items that reached a status.
type MonthlyCount struct {
	Month  time.Time
	Status pipeline.Status
	Count  int64
}

// ItemRepository is the durable item store collaborator. Aggregation uses
// exactly one filtered read per invocation; the orchestrator uses the
// batch write for atomic member transitions.
type ItemRepository interface {
	// ListItems loads the full snapshot matching the selector.
	ListItems(ctx context.Context, sel Selector) ([]pipeline.WorkItem, error)
	// IterItems opens a streaming read over the same set for datasets too
	// large to hold in memory.
	IterItems(ctx context.Context, sel Selector) (ItemIterator, error)
	// BatchSetStatus moves every listed item to status at the given time,
	// recording reason (empty for success transitions).
	BatchSetStatus(ctx context.Context, ids []string, status pipeline.Status, at time.Time, reason string) error
	// MonthlyStatusCounts returns month-bucketed counts of items reaching
	// the reporting statuses for one track.
	MonthlyStatusCounts(ctx context.Context, trackID int) ([]MonthlyCount, error)
}

// AttemptRepository persists publish attempt bookkeeping.
type AttemptRepository interface {
	// RecordAttempt stores a new attempt in its initial state.
	RecordAttempt(ctx context.Context, attempt PublishAttempt) error
	// SetAttemptState finalizes an attempt's state (and reason).
	SetAttemptState(ctx context.Context, attemptID string, state AttemptState, reason string, at time.Time) error
	// GetAttempt loads a single attempt or returns ErrNotFound.
	GetAttempt(ctx context.Context, attemptID string) (PublishAttempt, error)
	// UnresolvedAttempt returns the pending uncertain attempt for a group,
	// or ErrNotFound when the group has none.
	UnresolvedAttempt(ctx context.Context, trackID int, key pipeline.GroupKey) (PublishAttempt, error)
	// ListAttempts pages through a track's attempts, newest first.
	ListAttempts(ctx context.Context, trackID int, limit, offset int) ([]PublishAttempt, error)
}
