package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Resolved is the single status label computed for a group from its
// per-status percentage vector.
type Resolved string

// Resolved group statuses. WIP covers every mixed vector that matches no
// priority rule.
const (
	ResolvedPending       Resolved = "PENDING"
	ResolvedAnnotated     Resolved = "ANNOTATED"
	ResolvedValidated     Resolved = "VALIDATED"
	ResolvedPublished     Resolved = "PUBLISHED"
	ResolvedPublishFailed Resolved = "PUBLISH_FAILED"
	ResolvedWIP           Resolved = "WIP"
)

// Group is the derived roll-up bucket for work items sharing a group key
// within one track. Groups are recomputed from snapshots and never stored.
type Group struct {
	Key     GroupKey `json:"group_key"`
	TrackID int      `json:"track_id"`

	TotalWordCount int                `json:"total_word_count"`
	WordCounts     map[Status]int     `json:"word_counts"`
	Percentages    map[Status]float64 `json:"percentages"`

	LastInsertion  time.Time  `json:"last_insertion"`
	LastAnnotation *time.Time `json:"last_annotation,omitempty"`

	ResolvedStatus  Resolved `json:"resolved_status"`
	PublishEligible bool     `json:"publish_eligible"`

	// ItemIDs are the member item ids in snapshot order; the publish
	// orchestrator transitions exactly this set.
	ItemIDs []string `json:"item_ids,omitempty"`
}

// publishActionPrefix is the fixed leading token of the publish-action
// string; downstream consumers parse the format byte for byte.
const publishActionPrefix = "publishaction"

// PublishActionToken returns the compact publish-eligibility token:
// "publishaction;<key1>;...;<keyN>;<track_id>" for publish-eligible groups
// and the empty string otherwise.
func (g Group) PublishActionToken() string {
	if !g.PublishEligible {
		return ""
	}
	parts := make([]string, 0, len(g.Key)+2)
	parts = append(parts, publishActionPrefix)
	parts = append(parts, g.Key...)
	parts = append(parts, fmt.Sprintf("%d", g.TrackID))
	return strings.Join(parts, ";")
}
