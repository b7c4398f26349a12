// Package publishing orchestrates publish attempts for eligible groups.
//
// The orchestrator is the only component that mutates item state. Publish
// attempts serialize on a per-group lease, run the external call under a
// bounded timeout, and record a distinct "uncertain" sub-state when the
// outcome is ambiguous instead of guessing success or failure. There are
// no automatic retries; failed and uncertain attempts surface to the
// reporting layer for explicit human action.
package publishing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/translation-progress/internal/aggregate"
	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/progress"
	"github.com/JakeFAU/translation-progress/internal/status"
	"github.com/JakeFAU/translation-progress/internal/store"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrNotEligible rejects a publish on a group whose resolved status is
	// outside {VALIDATED, PUBLISH_FAILED}. No side effects occurred.
	ErrNotEligible = errors.New("group is not publish eligible")
	// ErrLeaseHeld rejects a publish racing another attempt on the same
	// group. Exactly one external invocation happens.
	ErrLeaseHeld = errors.New("publish already in progress for group")
	// ErrAttemptUnresolved rejects a publish while an earlier attempt for
	// the group awaits manual verification.
	ErrAttemptUnresolved = errors.New("unresolved publish attempt for group")
)

// AmbiguousOutcomeError reports a publish whose outcome is unknown: the
// external call timed out or returned indeterminately. Member items keep
// their status; the attempt is parked uncertain until verified.
type AmbiguousOutcomeError struct {
	AttemptID string
	Cause     error
}

func (e *AmbiguousOutcomeError) Error() string {
	return fmt.Sprintf("publish outcome uncertain (attempt %s): %v", e.AttemptID, e.Cause)
}

func (e *AmbiguousOutcomeError) Unwrap() error { return e.Cause }

// TransportError reports a definite publish failure; member items moved to
// PUBLISH_FAILED with the reason recorded.
type TransportError struct {
	AttemptID string
	Cause     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("publish failed (attempt %s): %v", e.AttemptID, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Config controls orchestrator behavior.
type Config struct {
	// Topic is the destination passed to the publish collaborator.
	Topic string
	// PublishTimeout bounds each external call.
	PublishTimeout time.Duration
}

// Result reports a successful publish.
type Result struct {
	AttemptID string
	MessageID string
	Items     int
}

// Verdict is the manual classification of an uncertain attempt.
type Verdict string

// Verdicts accepted by ResolveAttempt.
const (
	VerdictSucceeded Verdict = "succeeded"
	VerdictFailed    Verdict = "failed"
)

// Orchestrator coordinates publish attempts against the item store, the
// lease, and the external publish collaborator.
type Orchestrator struct {
	roller    *aggregate.Roller
	items     store.ItemRepository
	attempts  store.AttemptRepository
	publisher pipeline.Publisher
	lease     pipeline.Lease
	clock     pipeline.Clock
	idGen     pipeline.IDGenerator
	emitter   progress.Emitter
	logger    *zap.Logger
	cfg       Config
}

// New constructs an Orchestrator.
func New(
	roller *aggregate.Roller,
	items store.ItemRepository,
	attempts store.AttemptRepository,
	publisher pipeline.Publisher,
	lease pipeline.Lease,
	clock pipeline.Clock,
	idGen pipeline.IDGenerator,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}
	return &Orchestrator{
		roller:    roller,
		items:     items,
		attempts:  attempts,
		publisher: publisher,
		lease:     lease,
		clock:     clock,
		idGen:     idGen,
		emitter:   emitter,
		logger:    logger,
		cfg:       cfg,
	}
}

// Publish runs one publish attempt for the group identified by (key,
// trackID). Preconditions are rechecked against a fresh snapshot so a
// stale caller cannot publish a group that drifted out of eligibility.
func (o *Orchestrator) Publish(
	ctx context.Context,
	trackID int,
	key pipeline.GroupKey,
	track pipeline.TrackConfig,
) (Result, error) {
	group, err := o.roller.Group(ctx, trackID, key, track)
	if err != nil {
		return Result{}, fmt.Errorf("load group: %w", err)
	}
	if !status.PublishEligible(group.ResolvedStatus) {
		return Result{}, fmt.Errorf("%w: resolved status %s", ErrNotEligible, group.ResolvedStatus)
	}

	if _, err := o.attempts.UnresolvedAttempt(ctx, trackID, key); err == nil {
		return Result{}, ErrAttemptUnresolved
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("check unresolved attempts: %w", err)
	}

	release, held, err := o.lease.TryAcquire(ctx, leaseKey(trackID, key))
	if err != nil {
		return Result{}, fmt.Errorf("acquire group lease: %w", err)
	}
	if !held {
		return Result{}, ErrLeaseHeld
	}
	defer release()

	return o.attempt(ctx, group)
}

func (o *Orchestrator) attempt(ctx context.Context, group pipeline.Group) (Result, error) {
	attemptID, err := o.idGen.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate attempt id: %w", err)
	}
	started := o.clock.Now()
	if err := o.attempts.RecordAttempt(ctx, store.PublishAttempt{
		ID:        attemptID,
		TrackID:   group.TrackID,
		GroupKey:  group.Key.Clone(),
		State:     store.AttemptStarted,
		StartedAt: started,
	}); err != nil {
		return Result{}, fmt.Errorf("record attempt: %w", err)
	}
	o.emit(progress.StagePublishStart, group, attemptID, 0, "")

	pubCtx, cancel := context.WithTimeout(ctx, o.cfg.PublishTimeout)
	defer cancel()
	msgID, pubErr := o.publisher.Publish(pubCtx, o.cfg.Topic, publishPayload(group, attemptID))
	elapsed := o.clock.Now().Sub(started)

	switch {
	case pubErr == nil:
		return o.finishSuccess(ctx, group, attemptID, msgID, elapsed)
	case isAmbiguous(pubCtx, pubErr):
		return Result{}, o.finishUncertain(ctx, group, attemptID, elapsed, pubErr)
	default:
		return Result{}, o.finishFailure(ctx, group, attemptID, elapsed, pubErr)
	}
}

func (o *Orchestrator) finishSuccess(
	ctx context.Context,
	group pipeline.Group,
	attemptID, msgID string,
	elapsed time.Duration,
) (Result, error) {
	now := o.clock.Now()
	if err := o.items.BatchSetStatus(ctx, group.ItemIDs, pipeline.StatusPublished, now, ""); err != nil {
		// The external publish went out but the bookkeeping write failed;
		// park the attempt uncertain so a retry cannot double-publish.
		reason := fmt.Sprintf("published but status write failed: %v", err)
		return Result{}, o.finishUncertain(ctx, group, attemptID, elapsed, errors.New(reason))
	}
	if err := o.attempts.SetAttemptState(ctx, attemptID, store.AttemptSucceeded, "", now); err != nil {
		o.logger.Warn("attempt state write failed after successful publish",
			zap.String("attempt_id", attemptID), zap.Error(err))
	}
	o.emit(progress.StagePublishDone, group, attemptID, elapsed, "")
	o.logger.Info("group published",
		zap.String("attempt_id", attemptID),
		zap.Int("track_id", group.TrackID),
		zap.String("group_key", group.Key.String()),
		zap.Int("items", len(group.ItemIDs)),
	)
	return Result{AttemptID: attemptID, MessageID: msgID, Items: len(group.ItemIDs)}, nil
}

func (o *Orchestrator) finishFailure(
	ctx context.Context,
	group pipeline.Group,
	attemptID string,
	elapsed time.Duration,
	cause error,
) error {
	now := o.clock.Now()
	reason := cause.Error()
	if err := o.items.BatchSetStatus(ctx, group.ItemIDs, pipeline.StatusPublishFailed, now, reason); err != nil {
		o.logger.Error("failed-status write failed",
			zap.String("attempt_id", attemptID), zap.Error(err))
	}
	if err := o.attempts.SetAttemptState(ctx, attemptID, store.AttemptFailed, reason, now); err != nil {
		o.logger.Warn("attempt state write failed",
			zap.String("attempt_id", attemptID), zap.Error(err))
	}
	o.emit(progress.StagePublishFailed, group, attemptID, elapsed, reason)
	return &TransportError{AttemptID: attemptID, Cause: cause}
}

func (o *Orchestrator) finishUncertain(
	ctx context.Context,
	group pipeline.Group,
	attemptID string,
	elapsed time.Duration,
	cause error,
) error {
	reason := cause.Error()
	// No item transitions: guessing either way risks duplicate external
	// effects on retry.
	if err := o.attempts.SetAttemptState(ctx, attemptID, store.AttemptUncertain, reason, o.clock.Now()); err != nil {
		o.logger.Error("uncertain attempt write failed",
			zap.String("attempt_id", attemptID), zap.Error(err))
	}
	o.emit(progress.StagePublishUncertain, group, attemptID, elapsed, reason)
	return &AmbiguousOutcomeError{AttemptID: attemptID, Cause: cause}
}

// ResolveAttempt applies a human verdict to an uncertain attempt: verified
// success moves the members to PUBLISHED, verified failure to
// PUBLISH_FAILED. Resolution unblocks future publishes for the group.
func (o *Orchestrator) ResolveAttempt(
	ctx context.Context,
	attemptID string,
	verdict Verdict,
	note string,
) error {
	attempt, err := o.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("load attempt: %w", err)
	}
	if attempt.State != store.AttemptUncertain {
		return fmt.Errorf("attempt %s is %s, not uncertain", attemptID, attempt.State)
	}

	items, err := o.items.ListItems(ctx, store.Selector{TrackID: attempt.TrackID, GroupKey: attempt.GroupKey})
	if err != nil {
		return fmt.Errorf("load group items: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	now := o.clock.Now()
	var target pipeline.Status
	var state store.AttemptState
	switch verdict {
	case VerdictSucceeded:
		target, state = pipeline.StatusPublished, store.AttemptSucceeded
	case VerdictFailed:
		target, state = pipeline.StatusPublishFailed, store.AttemptFailed
	default:
		return fmt.Errorf("unknown verdict %q", verdict)
	}
	if err := o.items.BatchSetStatus(ctx, ids, target, now, note); err != nil {
		return fmt.Errorf("apply verdict transition: %w", err)
	}
	if err := o.attempts.SetAttemptState(ctx, attemptID, state, note, now); err != nil {
		return fmt.Errorf("resolve attempt: %w", err)
	}
	o.emitter.Emit(progress.Event{
		TS:        now,
		Stage:     progress.StageAttemptResolution,
		TrackID:   attempt.TrackID,
		GroupKey:  attempt.GroupKey.String(),
		AttemptID: attemptID,
		Note:      string(verdict),
	})
	return nil
}

func (o *Orchestrator) emit(stage progress.Stage, group pipeline.Group, attemptID string, dur time.Duration, note string) {
	if dur < 0 {
		dur = 0
	}
	o.emitter.Emit(progress.Event{
		TS:        o.clock.Now(),
		Stage:     stage,
		TrackID:   group.TrackID,
		GroupKey:  group.Key.String(),
		AttemptID: attemptID,
		Items:     int64(len(group.ItemIDs)),
		Words:     int64(group.TotalWordCount),
		Dur:       dur,
		Note:      note,
	})
}

func publishPayload(group pipeline.Group, attemptID string) map[string]any {
	return map[string]any{
		"action":          group.PublishActionToken(),
		"group_key":       group.Key,
		"track_id":        group.TrackID,
		"attempt_id":      attemptID,
		"item_ids":        group.ItemIDs,
		"total_words":     group.TotalWordCount,
		"resolved_status": group.ResolvedStatus,
	}
}

func leaseKey(trackID int, key pipeline.GroupKey) string {
	return fmt.Sprintf("publish/%d/%s", trackID, key.String())
}

func isAmbiguous(pubCtx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		pubCtx.Err() != nil
}
