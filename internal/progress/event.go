// Package progress defines the milestone events emitted by the roll-up
// pipeline and the hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageAggregateStart    Stage = "AGGREGATE_START"
	StageAggregateDone     Stage = "AGGREGATE_DONE"
	StagePublishStart      Stage = "PUBLISH_START"
	StagePublishDone       Stage = "PUBLISH_DONE"
	StagePublishFailed     Stage = "PUBLISH_FAILED"
	StagePublishUncertain  Stage = "PUBLISH_UNCERTAIN"
	StageAttemptResolution Stage = "ATTEMPT_RESOLUTION"
)

// Event captures a single pipeline milestone.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// TrackID scopes the event to one track.
	TrackID int
	// GroupKey optionally scopes publish events to one group (joined form).
	GroupKey string
	// AttemptID identifies the publish attempt for publish stages.
	AttemptID string
	// Groups and Items carry aggregation output sizes.
	Groups int64
	Items  int64
	// Words is the total word count observed by an aggregation pass.
	Words int64
	// Dur captures execution latency for completed stages.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. failure reason).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageAggregateStart, StageAggregateDone:
	case StagePublishStart, StagePublishDone, StagePublishFailed, StagePublishUncertain:
		if e.GroupKey == "" {
			return errors.New("publish stages require a group key")
		}
	case StageAttemptResolution:
		if e.AttemptID == "" {
			return errors.New("attempt resolution requires an attempt id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
